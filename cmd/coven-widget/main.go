// ABOUTME: Terminal harness that drives one widget session against a chat backend.
// ABOUTME: Type messages to chat; slash commands stand in for the widget's buttons.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/config"
	"github.com/2389/coven-widget/internal/logging"
	"github.com/2389/coven-widget/internal/present"
	"github.com/2389/coven-widget/internal/storage"
	"github.com/2389/coven-widget/internal/widget"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	configPath := flag.String("config", os.Getenv("COVEN_WIDGET_CONFIG"), "Path to a YAML or TOML config file")
	server := flag.String("server", "", "Backend URL (overrides backend.url)")
	key := flag.String("key", "", "Widget key (overrides widget.key)")
	durable := flag.String("storage", "", "Durable storage driver: memory, sqlite, redis (overrides storage.durable)")
	sqlitePath := flag.String("sqlite", "", "SQLite file for durable storage (overrides storage.sqlite_path)")
	logLevel := flag.String("log-level", "", "Log level (overrides logging.level)")
	transcriptPath := flag.String("transcript", "", "Append an HTML transcript of the conversation to this file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *server, *key, *durable, *sqlitePath, *logLevel)
	if token := os.Getenv("COVEN_WIDGET_TOKEN"); token != "" && cfg.Backend.Token == "" {
		cfg.Backend.Token = token
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("coven-widget connected to %s (widget %s)\n", cfg.Backend.URL, cfg.Widget.Key)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var transcript io.Writer
	if *transcriptPath != "" {
		f, err := os.OpenFile(*transcriptPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: opening transcript: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		transcript = f
	}

	if err := run(ctx, cfg, os.Stdin, os.Stdout, transcript); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// loadConfig reads path when set, otherwise starts from defaults so the
// harness can run from flags alone.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, server, key, durable, sqlitePath, level string) {
	if server != "" {
		cfg.Backend.URL = server
	}
	if key != "" {
		cfg.Widget.Key = key
	}
	if durable != "" {
		cfg.Storage.Durable = durable
	}
	if sqlitePath != "" {
		cfg.Storage.SQLitePath = sqlitePath
	}
	if level != "" {
		cfg.Logging.Level = level
	}
}

// run drives one session until in is exhausted or /quit. When transcript is
// non-nil the conversation is also written to it as HTML.
func run(ctx context.Context, cfg *config.Config, in io.Reader, out, transcript io.Writer) error {
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	store := storage.Open(ctx, cfg.Storage, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	client := backend.NewClient(cfg.Backend.URL, cfg.Widget.Key,
		backend.WithToken(cfg.Backend.Token),
		backend.WithTimeout(cfg.Backend.Timeout),
	)

	var sink present.Presenter = present.NewConsole(out)
	if transcript != nil {
		sink = present.Tee{sink, present.NewHTML(transcript)}
	}
	presenter := newTracker(sink)
	session := widget.New(ctx, widget.Options{
		Config:    cfg,
		Backend:   client,
		Storage:   store,
		Presenter: presenter,
		Logger:    logger,
	})
	defer session.Shutdown()

	if err := session.Open(ctx); err != nil {
		fmt.Fprintf(out, "[error] %v\n", err)
	}

	h := &harness{session: session, prompts: presenter, out: out}
	return h.loop(ctx, in)
}

type harness struct {
	session *widget.Session
	prompts *tracker
	out     io.Writer
}

func (h *harness) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
		}
	}()

	for {
		fmt.Fprint(h.out, "> ")

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return fmt.Errorf("reading input: %w", err)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input = strings.TrimSpace(line)
		}

		if input == "" {
			continue
		}

		quit, err := h.handle(ctx, input)
		if err != nil {
			h.report(err)
		}
		if quit {
			return nil
		}
	}
}

// handle dispatches one input line. It reports quit=true for /quit.
func (h *harness) handle(ctx context.Context, input string) (bool, error) {
	cmd, args := splitCommand(input)
	switch cmd {
	case "":
		return false, h.session.Send(ctx, input)
	case "quit", "exit", "q":
		return true, nil
	case "help":
		printHelp(h.out)
		return false, nil
	case "intro":
		answers, err := parseAnswers(args)
		if err != nil {
			return false, err
		}
		return false, h.session.SubmitIntro(ctx, answers)
	case "reopen":
		yes, err := parseChoice(args, "yes", "no")
		if err != nil {
			return false, err
		}
		return false, h.session.AnswerReopen(ctx, yes)
	case "helpful":
		yes, err := parseChoice(args, "yes", "no")
		if err != nil {
			return false, err
		}
		ref := h.prompts.Last(present.PromptHelpful)
		if ref == "" {
			return false, errors.New("no answer is waiting for feedback")
		}
		return false, h.session.AnswerHelpful(ctx, ref, yes)
	case "reactivate":
		return false, h.session.ReactivateOrClose(ctx, args != "close")
	case "human":
		outcome, err := h.session.RequestHandover(ctx)
		if err == nil {
			fmt.Fprintf(h.out, "handover: %s\n", outcome)
		}
		return false, err
	case "close":
		return false, h.session.Close(ctx)
	case "min":
		h.session.Minimize()
		fmt.Fprintln(h.out, "minimized")
		return false, nil
	case "open":
		return false, h.session.Open(ctx)
	case "hide":
		h.session.SetVisible(false)
		return false, nil
	case "show":
		h.session.SetVisible(true)
		return false, nil
	case "position":
		if args != "" {
			h.session.SavePosition(ctx, args)
		}
		if pos, ok := h.session.Position(ctx); ok {
			fmt.Fprintf(h.out, "position: %s\n", pos)
		} else {
			fmt.Fprintln(h.out, "position: default")
		}
		return false, nil
	case "status":
		h.printStatus()
		return false, nil
	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", cmd)
	}
}

// report prints errors the session has not already surfaced as a notice.
func (h *harness) report(err error) {
	switch {
	case errors.Is(err, widget.ErrIntroRequired):
		// the intro form is already on screen
	case errors.Is(err, widget.ErrReopenPending):
		// the reopen prompt is already on screen
	case errors.Is(err, widget.ErrRateLimited):
		// the wait notice is already on screen
	default:
		fmt.Fprintf(h.out, "[error] %v\n", err)
	}
}

func (h *harness) printStatus() {
	s := h.session
	conv := s.ConversationID()
	if conv == "" {
		conv = "none"
	}
	fmt.Fprintf(h.out, "visitor:      %s\n", s.VisitorID())
	fmt.Fprintf(h.out, "tab:          %s\n", s.TabID())
	fmt.Fprintf(h.out, "conversation: %s\n", conv)
	if c := s.ReopenCandidate(); c != "" {
		fmt.Fprintf(h.out, "reopenable:   %s\n", c)
	}
	fmt.Fprintf(h.out, "intro:        %s\n", s.IntroState())
	fmt.Fprintf(h.out, "handoff:      %t\n", s.HandoffActive())
	fmt.Fprintf(h.out, "polling:      %t\n", s.Polling())
	fmt.Fprintf(h.out, "monitoring:   %t\n", s.Monitoring())
	fmt.Fprintf(h.out, "unread:       %d\n", s.Unread())
	fmt.Fprintf(h.out, "sends left:   %d\n", s.SendsRemaining())
	durable, ephemeral := s.StorageDegraded()
	switch {
	case durable && ephemeral:
		fmt.Fprintln(h.out, "storage:      degraded (all scopes in memory)")
	case durable:
		fmt.Fprintln(h.out, "storage:      degraded (durable scope in memory)")
	case ephemeral:
		fmt.Fprintln(h.out, "storage:      degraded (ephemeral scope in memory)")
	default:
		fmt.Fprintln(h.out, "storage:      ok")
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /intro id=value; id=value  Answer the intro form")
	fmt.Fprintln(out, "  /reopen yes|no             Continue or drop a previous conversation")
	fmt.Fprintln(out, "  /helpful yes|no            Rate the last bot answer")
	fmt.Fprintln(out, "  /reactivate [close]        Keep chatting after the agent stopped, or close")
	fmt.Fprintln(out, "  /human                     Ask for a live agent")
	fmt.Fprintln(out, "  /close                     End the conversation")
	fmt.Fprintln(out, "  /min, /open                Minimize or reopen the widget")
	fmt.Fprintln(out, "  /hide, /show               Simulate the tab losing or regaining focus")
	fmt.Fprintln(out, "  /position [corner]         Show or save the widget position")
	fmt.Fprintln(out, "  /status                    Show session state")
	fmt.Fprintln(out, "  /help                      Show this help")
	fmt.Fprintln(out, "  /quit, /exit, /q           Exit")
}
