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

type uploadResponse struct {
	Success    bool               `json:"success"`
	Attachment *entity.Attachment `json:"attachment"`
}

func UploadAttachment(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(entity.MaxFileSize + 1<<20); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid multipart form"))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Form field 'file' is required"))
			return
		}
		defer func() {
			_ = file.Close()
		}()

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		ticketID := chi.URLParam(r, "ticket_id")
		att, err := handler.SaveAttachment(ticketID, header.Filename, mimeType, header.Size, fromAgent(r.Header.Get("X-Privileged")))
		if err != nil {
			switch {
			case errors.Is(err, entity.ErrFileTooLarge):
				render.Status(r, http.StatusRequestEntityTooLarge)
				render.JSON(w, r, response.Error(err.Error()))
			case errors.Is(err, repository.ErrTicketNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("Ticket not found"))
			default:
				log.Error("failed to save attachment",
					slog.String("filename", header.Filename),
					slog.Any("error", err),
				)
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("Failed to save attachment"))
			}
			return
		}

		render.JSON(w, r, uploadResponse{Success: true, Attachment: &att})
	}
}
