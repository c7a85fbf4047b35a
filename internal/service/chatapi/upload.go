package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"TicketChat/entity"
)

type uploadResponse struct {
	Success    bool               `json:"success"`
	Error      string             `json:"error,omitempty"`
	Attachment *entity.Attachment `json:"attachment,omitempty"`
}

// UploadAttachment uploads a single file as multipart form data. One call
// per file keeps failures independently reportable.
func (c *Client) UploadAttachment(ctx context.Context, ticketID, filename string, content io.Reader) (*entity.Attachment, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	// Read at most one byte past the limit so an oversized input is
	// rejected without buffering all of it.
	size, err := io.Copy(part, io.LimitReader(content, entity.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file content: %w", err)
	}
	if size > entity.MaxFileSize {
		return nil, entity.FileTooLargeError(filename, size)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ticketURL(ticketID, "attachments"), &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp uploadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse upload response: %w", err)
	}
	if !resp.Success || resp.Attachment == nil {
		return nil, fmt.Errorf("upload failed: %s", resp.Error)
	}

	c.log.With(
		slog.String("ticket_id", ticketID),
		slog.String("filename", filename),
		slog.Int64("size", size),
	).Debug("attachment uploaded")

	return resp.Attachment, nil
}
