package ticket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"TicketChat/entity"
	repository "TicketChat/internal/database"
	"TicketChat/internal/lib/api/response"
)

type SendRequest struct {
	Body           string `json:"body" validate:"required"`
	IsInternalNote bool   `json:"is_internal_note"`
}

type sendResponse struct {
	Success bool                `json:"success"`
	Message *entity.ChatMessage `json:"message"`
}

var validate = validator.New()

func SendMessage(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Message body is required"))
			return
		}

		ticketID := chi.URLParam(r, "ticket_id")
		msg, err := handler.SendMessage(ticketID, req.Body, fromAgent(r.Header.Get("X-Privileged")))
		if err != nil {
			if errors.Is(err, repository.ErrTicketNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("Ticket not found"))
				return
			}
			log.Error("failed to send message", slog.Any("error", err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to send message"))
			return
		}

		render.JSON(w, r, sendResponse{Success: true, Message: &msg})
	}
}
