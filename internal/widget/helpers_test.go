// ABOUTME: Shared fixtures for widget session tests
// ABOUTME: Fake backend over httptest, recording presenter, tab-scoped storage

package widget

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/config"
	"github.com/2389/coven-widget/internal/fakebackend"
	"github.com/2389/coven-widget/internal/logging"
	"github.com/2389/coven-widget/internal/present"
	"github.com/2389/coven-widget/internal/storage"
)

// clock is a settable time source shared by the fake backend and sessions.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	t       *testing.T
	fake    *fakebackend.Server
	srv     *httptest.Server
	url     string
	clock   *clock
	durable *storage.MemoryDriver
}

func newFixture(t *testing.T, wc backend.WidgetConfig) *fixture {
	t.Helper()
	fake := fakebackend.New(logging.Discard())
	fake.AddWidget("wk", wc)
	clk := newClock()
	fake.SetClock(clk.Now)

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return &fixture{t: t, fake: fake, srv: srv, url: srv.URL, clock: clk, durable: storage.NewMemoryDriver()}
}

func defaultWidget() backend.WidgetConfig {
	return backend.WidgetConfig{BotName: "Coven", WelcomeMessage: "Hi! How can I help?"}
}

func introWidget() backend.WidgetConfig {
	wc := defaultWidget()
	wc.IntroEnabled = true
	wc.IntroQuestions = []backend.IntroQuestion{
		{ID: "name", Prompt: "What's your name?", Required: true, Type: "text"},
		{ID: "email", Prompt: "Email", Required: true, Type: "email"},
	}
	return wc
}

func (f *fixture) config() *config.Config {
	cfg := config.Defaults()
	cfg.Widget.Key = "wk"
	cfg.Backend.URL = f.url
	cfg.Lifecycle.InactivityCheck = time.Hour
	cfg.Sync.Ladder = []time.Duration{time.Hour}
	cfg.Handover.ConfirmDelay = time.Hour
	return cfg
}

// tab opens a new browser tab: durable storage is shared with earlier tabs,
// ephemeral storage is fresh.
func (f *fixture) tab(cfg *config.Config) (*Session, *present.Recorder) {
	f.t.Helper()
	if cfg == nil {
		cfg = f.config()
	}
	rec := present.NewRecorder()
	s := New(context.Background(), Options{
		Config:    cfg,
		Backend:   backend.NewClient(f.url, "wk"),
		Storage:   storage.NewAdapter(f.durable, storage.NewMemoryDriver(), logging.Discard()),
		Presenter: rec,
		Logger:    logging.Discard(),
	})
	f.t.Cleanup(s.Shutdown)
	return s, rec
}

func hasNotice(rec *present.Recorder, substr string) bool {
	return countNotices(rec, substr) > 0
}

func countNotices(rec *present.Recorder, substr string) int {
	n := 0
	for _, notice := range rec.Notices() {
		if strings.Contains(notice.Text, substr) {
			n++
		}
	}
	return n
}
