// Package plugin discovers, configures and runs ltm plugins.
//
// A plugin is a YAML manifest in the plugins directory that declares one or
// more capabilities:
//
//   - ACTION     runs before translation; may signal bypass to skip it
//   - PROMPT     contributes text appended to the translation system prompt
//   - EXTENSION  runs after translation (or after a bypass)
//
// Capabilities may co-occur in one manifest. ACTION and EXTENSION entry
// points are either a registered Go handler (builtin) or an external
// executable (exec). PROMPT bodies are read as text and never executed.
package plugin

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
)

// Capability is a role a plugin declares.
type Capability string

const (
	Action    Capability = "ACTION"
	Prompt    Capability = "PROMPT"
	Extension Capability = "EXTENSION"
)

// AllCapabilities lists capabilities in canonical order.
var AllCapabilities = []Capability{Action, Prompt, Extension}

// ParseCapability parses a capability token case-insensitively.
func ParseCapability(s string) (Capability, bool) {
	switch Capability(strings.ToUpper(strings.TrimSpace(s))) {
	case Action:
		return Action, true
	case Prompt:
		return Prompt, true
	case Extension:
		return Extension, true
	}
	return "", false
}

// normalizeCapabilities drops unknown tokens and duplicates and returns the
// rest in canonical order.
func normalizeCapabilities(tokens []string) []Capability {
	seen := make(map[Capability]bool, len(tokens))
	for _, tok := range tokens {
		if c, ok := ParseCapability(tok); ok {
			seen[c] = true
		}
	}
	var out []Capability
	for _, c := range AllCapabilities {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}

func capabilityStrings(caps []Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

func hasCapability(caps []Capability, c Capability) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}

// Descriptor describes one discovered plugin.
type Descriptor struct {
	Name           string
	Path           string
	Description    string
	Capabilities   []Capability
	Enabled        bool
	AutoDiscovered bool
}

// Has reports whether the plugin declares c.
func (d Descriptor) Has(c Capability) bool {
	return hasCapability(d.Capabilities, c)
}

// ---------------------------------------------------------------------------
// Plugin contract
// ---------------------------------------------------------------------------

var (
	// ErrNoEntryPoint is returned when a plugin has no entry point for
	// the requested capability. Runners skip such plugins silently.
	ErrNoEntryPoint = errors.New("no entry point for capability")
	// ErrNotExecutable is returned when PROMPT is passed to Run.
	ErrNotExecutable = errors.New("capability is not executable")
	// ErrUnknownBuiltin is returned for a builtin name nobody registered.
	ErrUnknownBuiltin = errors.New("unknown builtin handler")
)

// Env is what an invoked entry point gets to see.
type Env struct {
	Plugin     string
	Capability Capability
	InputPath  string
	OutputPath string
	ReportsDir string
	Options    map[string]string
	Logger     *slog.Logger
}

// Option returns an option value or def when unset.
func (e Env) Option(key, def string) string {
	if v, ok := e.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// Result is the outcome of one invocation. Bypass is only honored for
// ACTION.
type Result struct {
	Bypass bool
}

// Plugin is a loaded plugin.
type Plugin interface {
	Name() string
	Capabilities() []Capability
	HasEntryPoint(c Capability) bool
	Invoke(ctx context.Context, c Capability, env Env) (Result, error)
	PromptContent() (string, error)
}

// Loader builds a Plugin by name.
type Loader interface {
	Load(name string) (Plugin, error)
}

// ---------------------------------------------------------------------------
// Builtin handlers
// ---------------------------------------------------------------------------

// Handler is a Go entry point referenced from manifests as builtin.
type Handler func(ctx context.Context, env Env) (Result, error)

// Registry maps builtin names to handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Registering the same name twice panics; it is
// meant to be called from init.
func (r *Registry) Register(name string, h Handler) {
	if h == nil {
		panic("plugin: Register handler is nil")
	}
	if _, dup := r.handlers[name]; dup {
		panic("plugin: Register called twice for " + name)
	}
	r.handlers[name] = h
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtins is the process-wide registry the bundled handlers add to.
var Builtins = NewRegistry()

// Register adds h to Builtins.
func Register(name string, h Handler) {
	Builtins.Register(name, h)
}
