package ticket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	repository "TicketChat/internal/database"
	"TicketChat/internal/lib/api/response"
)

type UpdateFieldRequest struct {
	Field string `json:"field" validate:"required,oneof=status priority assigned_agent_id"`
	Value string `json:"value"`
}

// UpdateField changes a ticket-level field such as status or priority and
// pushes the update into the ticket's room.
func UpdateField(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateFieldRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Unknown ticket field"))
			return
		}

		ticketID := chi.URLParam(r, "ticket_id")
		if err := handler.UpdateTicketField(ticketID, req.Field, req.Value); err != nil {
			if errors.Is(err, repository.ErrTicketNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("Ticket not found"))
				return
			}
			log.Error("failed to update ticket field",
				slog.String("field", req.Field),
				slog.Any("error", err),
			)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to update ticket field"))
			return
		}

		render.JSON(w, r, response.Ok(nil))
	}
}
