package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"TicketChat/internal/config"
	"TicketChat/internal/http-server/handlers/errors"
	"TicketChat/internal/http-server/handlers/ticket"
	"TicketChat/internal/http-server/middleware/authenticate"
	"TicketChat/internal/lib/sl"
	"TicketChat/internal/ws"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	ticket.Core
}

// NewRouter builds the REST routes plus the websocket endpoint. The
// websocket route sits outside the bearer middleware; it authenticates
// with its own first-frame handshake.
func NewRouter(log *slog.Logger, handler Handler, hub *ws.Hub) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Get("/ws/chat", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, handler, log, w, r)
	})

	router.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(authenticate.New(log, handler))
		v1.Route("/tickets/{ticket_id}", func(r chi.Router) {
			r.Get("/conversation", ticket.GetConversation(log, handler))
			r.Post("/messages", ticket.SendMessage(log, handler))
			r.Post("/attachments", ticket.UploadAttachment(log, handler))
			r.Post("/read", ticket.MarkRead(log, handler))
			r.Post("/field", ticket.UpdateField(log, handler))
		})
	})

	return router
}

// New starts the backend API server and blocks serving it.
func New(conf *config.Config, log *slog.Logger, handler Handler, hub *ws.Hub) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := NewRouter(log, handler, hub)

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:  router,
		ErrorLog: httpLog,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIP, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
