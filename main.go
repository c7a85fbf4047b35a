package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"TicketChat/entity"
	"TicketChat/impl/core"
	"TicketChat/internal/config"
	repository "TicketChat/internal/database"
	"TicketChat/internal/http-server/api"
	"TicketChat/internal/lib/logger"
	"TicketChat/internal/lib/sl"
	"TicketChat/internal/service/chatapi"
	"TicketChat/internal/service/credentials"
	"TicketChat/internal/service/session"
	"TicketChat/internal/ws"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	ticketID := flag.String("ticket", "demo-ticket", "ticket to open")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)

	lg.Info("starting ticketchat", slog.String("config", *configPath), slog.String("env", conf.Env))
	lg.Debug("debug messages enabled")

	// Optional in-process backend for demos and local development. The
	// client below talks to it over loopback exactly as it would to a
	// remote deployment.
	if conf.Listen.Enabled {
		store := repository.NewStore(lg)
		store.SeedTicket(*ticketID, "open", "normal", "")

		hub := ws.NewHub(lg)
		backend := core.New(store, hub, lg)
		backend.SetAuthKey(conf.Listen.ApiKey)
		hub.SetHandler(backend)

		go func() {
			if err := api.New(conf, lg, backend, hub); err != nil {
				lg.Error("server start", sl.Err(err))
				os.Exit(1)
			}
		}()

		lg.With(
			slog.String("bind_ip", conf.Listen.BindIP),
			slog.String("port", conf.Listen.Port),
		).Info("embedded backend enabled")
	}

	creds := credentials.NewStatic(conf.Auth.Token, conf.Auth.UserID, conf.Auth.Privileged)
	apiClient := chatapi.New(conf, creds, lg)

	sess := session.New(conf, creds, apiClient, lg)
	sess.OnChange = func() {
		fmt.Printf("[%s] %d messages\n", sess.Status(), len(sess.Messages()))
	}
	sess.OnTyping = func(info entity.TypingPayload) {
		fmt.Printf("%s is typing...\n", info.UserID)
	}
	sess.OnUploadError = func(filename string, err error) {
		fmt.Printf("upload of %s failed: %v\n", filename, err)
	}
	sess.OnError = func(err error) {
		lg.With(sl.Err(err)).Warn("chat session error")
	}

	ctx := context.Background()
	if err := sess.Open(ctx, *ticketID); err != nil {
		lg.With(sl.Err(err)).Error("open chat session")
		os.Exit(1)
	}
	defer sess.Close()

	lg.With(
		slog.String("ticket", *ticketID),
	).Info("chat session opened")

	// Console loop: each line is sent as a message, a few commands are
	// recognized for exercising the session.
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/status":
			fmt.Println(sess.Status())
			continue
		case line == "/reconnect":
			sess.ForceReconnect()
			continue
		case line == "/read":
			sess.MarkVisibleRead(sess.UnreadIDs())
			continue
		case strings.HasPrefix(line, "/file "):
			path := strings.TrimPrefix(line, "/file ")
			f, err := os.Open(path)
			if err != nil {
				fmt.Printf("open %s: %v\n", path, err)
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err = sess.Send(sendCtx, "", []session.Upload{{Filename: path, Content: f}})
			cancel()
			_ = f.Close()
			if err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := sess.Send(sendCtx, line, nil); err != nil {
			fmt.Printf("send failed: %v\n", err)
		}
		cancel()
	}
}
