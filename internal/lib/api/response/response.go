// Package response holds the JSON envelope used by every API handler.
package response

// Response is the common {success, error} envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ok wraps a successful payload.
func Ok(data any) Response {
	return Response{Success: true, Data: data}
}

// Error wraps a failure message.
func Error(msg string) Response {
	return Response{Success: false, Error: msg}
}
