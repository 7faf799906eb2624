// ABOUTME: Two-scope key-value adapter with silent fallback
// ABOUTME: Durable failures fall back to ephemeral, ephemeral failures to process memory

package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Scope selects which key-value scope an operation targets.
type Scope int

const (
	// Durable survives restarts and is shared across tabs.
	Durable Scope = iota
	// Ephemeral is cleared when the tab goes away.
	Ephemeral
)

func (s Scope) String() string {
	switch s {
	case Durable:
		return "durable"
	case Ephemeral:
		return "ephemeral"
	case fallbackScope:
		return "memory"
	default:
		return "unknown"
	}
}

// Keys written by the widget.
const (
	KeyVisitorSession    = "visitor_session_id"
	KeyConversation      = "conversation_id"
	KeyWidgetPosition    = "widget_position"
	KeyTabSession        = "tab_session_id"
	KeyClosedThisSession = "closed_this_session"
	KeyWelcomeShown      = "welcome_shown"
	KeyIntroShown        = "intro_shown"
)

// ErrUnavailable is returned by drivers that cannot serve requests at all,
// for example a store opened in a mode that forbids persistence.
var ErrUnavailable = errors.New("storage unavailable")

// Driver is a raw key-value backend. Get reports a missing key as ("", false, nil).
type Driver interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Adapter gives uniform, never-failing access to both scopes.
type Adapter struct {
	namespace string
	durable   Driver
	ephemeral Driver
	fallback  *MemoryDriver
	logger    *slog.Logger
	health    *health
}

// health records which scopes have failed. Shared by namespaced adapters.
type health struct {
	mu     sync.Mutex
	broken map[Scope]bool
}

// NewAdapter wires the two scope drivers. Either may be nil, in which case the
// scope is served from the fallback chain directly.
func NewAdapter(durable, ephemeral Driver, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		durable:   durable,
		ephemeral: ephemeral,
		fallback:  NewMemoryDriver(),
		logger:    logger.With("component", "storage"),
		health:    &health{broken: make(map[Scope]bool)},
	}
}

// WithNamespace returns an adapter sharing the same drivers whose keys are
// prefixed with ns. The widget namespaces its keys by widget key so two
// widgets on one page never see each other's state.
func (a *Adapter) WithNamespace(ns string) *Adapter {
	return &Adapter{
		namespace: ns,
		durable:   a.durable,
		ephemeral: a.ephemeral,
		fallback:  a.fallback,
		logger:    a.logger,
		health:    a.health,
	}
}

// Read returns the value stored under key in scope.
func (a *Adapter) Read(ctx context.Context, scope Scope, key string) (string, bool) {
	key = a.key(key)
	for _, d := range a.chain(scope) {
		val, ok, err := d.driver.Get(ctx, key)
		if err != nil {
			a.markBroken(d.scope, err, "read", key)
			continue
		}
		return val, ok
	}
	return "", false
}

// Write stores value under key in scope.
func (a *Adapter) Write(ctx context.Context, scope Scope, key, value string) {
	key = a.key(key)
	for _, d := range a.chain(scope) {
		if err := d.driver.Set(ctx, key, value); err != nil {
			a.markBroken(d.scope, err, "write", key)
			continue
		}
		return
	}
}

// Remove deletes key from scope and from every fallback below it, so a
// value written during an outage cannot resurface.
func (a *Adapter) Remove(ctx context.Context, scope Scope, key string) {
	key = a.key(key)
	for _, d := range a.chain(scope) {
		if err := d.driver.Delete(ctx, key); err != nil {
			a.markBroken(d.scope, err, "remove", key)
		}
	}
}

// ReadFlag reports whether key holds "true".
func (a *Adapter) ReadFlag(ctx context.Context, scope Scope, key string) bool {
	v, ok := a.Read(ctx, scope, key)
	return ok && v == "true"
}

// WriteFlag stores a boolean flag. Clearing a flag removes the key.
func (a *Adapter) WriteFlag(ctx context.Context, scope Scope, key string, on bool) {
	if on {
		a.Write(ctx, scope, key, "true")
		return
	}
	a.Remove(ctx, scope, key)
}

// Degraded reports whether scope has failed and is being served by a fallback.
func (a *Adapter) Degraded(scope Scope) bool {
	a.health.mu.Lock()
	defer a.health.mu.Unlock()
	return a.health.broken[scope]
}

// Close closes both drivers.
func (a *Adapter) Close() error {
	var errs []error
	if a.durable != nil {
		errs = append(errs, a.durable.Close())
	}
	if a.ephemeral != nil && a.ephemeral != a.durable {
		errs = append(errs, a.ephemeral.Close())
	}
	return errors.Join(errs...)
}

type link struct {
	scope  Scope
	driver Driver
}

// fallbackScope tags the process-lifetime map in the chain.
const fallbackScope Scope = -1

// chain returns the healthy drivers to try for scope, in fallback order.
// The process-lifetime map is always last.
func (a *Adapter) chain(scope Scope) []link {
	a.health.mu.Lock()
	defer a.health.mu.Unlock()

	var out []link
	if scope == Durable && a.durable != nil && !a.health.broken[Durable] {
		out = append(out, link{Durable, a.durable})
	}
	if a.ephemeral != nil && !a.health.broken[Ephemeral] {
		out = append(out, link{Ephemeral, a.ephemeral})
	}
	return append(out, link{fallbackScope, a.fallback})
}

func (a *Adapter) markBroken(scope Scope, err error, op, key string) {
	if scope == fallbackScope {
		// The process map cannot fail; nothing to record.
		return
	}

	a.health.mu.Lock()
	first := !a.health.broken[scope]
	a.health.broken[scope] = true
	a.health.mu.Unlock()

	if first {
		a.logger.Warn("storage scope failed, falling back",
			"scope", scope.String(),
			"op", op,
			"key", key,
			"error", err)
	}
}

func (a *Adapter) key(k string) string {
	if a.namespace == "" {
		return k
	}
	return a.namespace + ":" + k
}
