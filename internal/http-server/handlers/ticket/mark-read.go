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

type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

func MarkRead(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MarkReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		ticketID := chi.URLParam(r, "ticket_id")
		if err := handler.MarkRead(ticketID, req.MessageIDs); err != nil {
			if errors.Is(err, repository.ErrTicketNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("Ticket not found"))
				return
			}
			log.Error("failed to mark messages read", slog.Any("error", err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to mark messages read"))
			return
		}

		render.JSON(w, r, response.Ok(nil))
	}
}
