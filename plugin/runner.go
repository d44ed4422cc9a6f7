package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Runner executes plugins of one capability in order, isolating failures.
type Runner struct {
	Loader Loader
	// Env carries the paths every invocation sees.
	Env    Env
	Logger *slog.Logger
	// FailOnError makes Run return the joined plugin errors once the
	// phase has finished. Sibling plugins still run.
	FailOnError bool
}

// NewRunner returns a runner over loader.
func NewRunner(loader Loader, env Env, logger *slog.Logger) *Runner {
	return &Runner{Loader: loader, Env: env, Logger: logger}
}

func (r *Runner) log() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run executes the named plugins for c. For ACTION the first plugin that
// signals bypass stops the phase and Run returns true; the remaining ACTION
// plugins are neither loaded nor invoked. For EXTENSION every plugin runs
// and bypass is never reported. Plugins without an entry point for c are
// skipped. Load errors, invoke errors and panics are logged and do not stop
// the phase.
func (r *Runner) Run(ctx context.Context, names []string, c Capability) (bool, error) {
	if c != Action && c != Extension {
		return false, fmt.Errorf("%w: %s", ErrNotExecutable, c)
	}

	var errs []error
	for _, name := range names {
		p, err := r.Loader.Load(name)
		if err != nil {
			r.log().Error("plugin failed to load", "plugin", name, "capability", c, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if !p.HasEntryPoint(c) {
			r.log().Debug("plugin has no entry point, skipping", "plugin", name, "capability", c)
			continue
		}

		r.log().Info("running plugin", "plugin", name, "capability", c)
		res, err := r.invoke(ctx, p, c)
		if err != nil {
			if errors.Is(err, ErrNoEntryPoint) {
				continue
			}
			r.log().Error("plugin failed", "plugin", name, "capability", c, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if c == Action && res.Bypass {
			r.log().Info("plugin requested bypass", "plugin", name)
			return true, r.result(errs)
		}
	}
	return false, r.result(errs)
}

func (r *Runner) result(errs []error) error {
	if !r.FailOnError || len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// invoke calls the plugin and converts a panic into an error.
func (r *Runner) invoke(ctx context.Context, p Plugin, c Capability) (res Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	env := r.Env
	env.Plugin = p.Name()
	env.Capability = c
	if env.Logger == nil {
		env.Logger = r.log()
	}
	env.Logger = env.Logger.With("plugin", p.Name())
	return p.Invoke(ctx, c, env)
}

// LoadPromptContent reads the prompt bodies of the named plugins and joins
// them with a single space. A plugin whose body cannot be read contributes
// nothing.
func (r *Runner) LoadPromptContent(names []string) string {
	var parts []string
	for _, name := range names {
		text, err := r.promptOf(name)
		if err != nil {
			r.log().Error("prompt plugin failed", "plugin", name, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
			r.log().Debug("loaded prompt addon", "plugin", name, "chars", len(text))
		}
	}
	return strings.Join(parts, " ")
}

func (r *Runner) promptOf(name string) (text string, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	p, err := r.Loader.Load(name)
	if err != nil {
		return "", err
	}
	return p.PromptContent()
}
