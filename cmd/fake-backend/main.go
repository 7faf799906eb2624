// ABOUTME: Standalone fake chat backend for trying the widget harness end to end.
// ABOUTME: Usage: fake-backend [-addr :8090] [-key demo] [-intro] [-confidence 0.9]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/fakebackend"
	"github.com/2389/coven-widget/internal/logging"
)

func main() {
	addr := flag.String("addr", ":8090", "HTTP listen address")
	key := flag.String("key", "demo", "Widget key to serve")
	botName := flag.String("bot-name", "Coven", "Bot display name")
	welcome := flag.String("welcome", "Hi! Ask me anything.", "Welcome message")
	confidence := flag.Float64("confidence", 0.9, "Confidence attached to every bot reply")
	withIntro := flag.Bool("intro", false, "Require the intro form (name and email)")
	warnAfter := flag.Duration("warn-after", 25*time.Minute, "Inactivity before the warning threshold")
	expireAfter := flag.Duration("expire-after", 30*time.Minute, "Inactivity before a conversation expires")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := logging.New(*logLevel, "text", os.Stderr)

	cfg := backend.WidgetConfig{
		BotName:        *botName,
		WelcomeMessage: *welcome,
		Compliance:     backend.Compliance{EmailSummaries: true},
	}
	if *withIntro {
		cfg.IntroEnabled = true
		cfg.IntroQuestions = []backend.IntroQuestion{
			{ID: "name", Prompt: "What's your name?", Required: true, Type: "text"},
			{ID: "email", Prompt: "What's your email?", Required: true, Type: "email"},
		}
	}

	if err := run(*addr, *key, cfg, *confidence, *warnAfter, *expireAfter, logger); err != nil {
		log.Fatal(err)
	}
}

func run(addr, key string, cfg backend.WidgetConfig, confidence float64, warnAfter, expireAfter time.Duration, logger *slog.Logger) error {
	fake := fakebackend.New(logger)
	fake.AddWidget(key, cfg)
	fake.SetResponder(fakebackend.EchoResponder(confidence))
	fake.SetThresholds(warnAfter, expireAfter)

	mux := http.NewServeMux()
	mux.Handle("/", fake)
	// Lets an operator play the live agent from curl:
	//   curl -d '{"text":"hello","agent_name":"Sam"}' localhost:8090/debug/conversations/<id>/agent
	mux.HandleFunc("POST /debug/conversations/{id}/agent", agentMessageHandler(fake, backend.MessageHuman))
	mux.HandleFunc("POST /debug/conversations/{id}/system", agentMessageHandler(fake, backend.MessageSystem))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake backend listening", "addr", addr, "widget_key", key)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("fake backend stopped")
	return nil
}

type injectRequest struct {
	Text      string `json:"text"`
	AgentName string `json:"agent_name"`
}

func agentMessageHandler(fake *fakebackend.Server, kind backend.MessageType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := backend.ID(r.PathValue("id"))
		if _, ok := fake.Conversation(id); !ok {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}

		var req injectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			http.Error(w, "body must be {\"text\": ...}", http.StatusBadRequest)
			return
		}

		msg := fake.AddMessage(id, backend.Message{
			Type:      kind,
			Text:      req.Text,
			AgentName: req.AgentName,
		})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(msg)
	}
}
