package ticket

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"TicketChat/entity"
	repository "TicketChat/internal/database"
	"TicketChat/internal/lib/api/response"
)

type conversationResponse struct {
	Success      bool                 `json:"success"`
	Conversation *entity.Conversation `json:"conversation"`
}

func GetConversation(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID := chi.URLParam(r, "ticket_id")
		if ticketID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("ticket_id is required"))
			return
		}

		conv, err := handler.GetConversation(ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrTicketNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("Ticket not found"))
				return
			}
			log.Error("failed to get conversation", slog.Any("error", err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to get conversation"))
			return
		}

		render.JSON(w, r, conversationResponse{Success: true, Conversation: &conv})
	}
}
