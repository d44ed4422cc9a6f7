package plugin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultExecTimeout bounds exec entry points without their own timeout.
const DefaultExecTimeout = 5 * time.Minute

// ManifestLoader loads plugins from manifests in Dir.
type ManifestLoader struct {
	Dir         string
	Registry    *Registry
	ExecTimeout time.Duration
}

// NewManifestLoader returns a loader resolving builtins from Builtins.
func NewManifestLoader(dir string) *ManifestLoader {
	return &ManifestLoader{Dir: dir, Registry: Builtins, ExecTimeout: DefaultExecTimeout}
}

// Load reads the manifest called name.
func (l *ManifestLoader) Load(name string) (Plugin, error) {
	path := filepath.Join(l.Dir, name)
	m, err := ReadManifest(path)
	if err != nil {
		return nil, fmt.Errorf("loading plugin %s: %w", name, err)
	}
	reg := l.Registry
	if reg == nil {
		reg = Builtins
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = l.ExecTimeout
	}
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	return &manifestPlugin{
		name:     name,
		dir:      l.Dir,
		manifest: m,
		registry: reg,
		timeout:  timeout,
	}, nil
}

type manifestPlugin struct {
	name     string
	dir      string
	manifest *Manifest
	registry *Registry
	timeout  time.Duration
}

func (p *manifestPlugin) Name() string { return p.name }

func (p *manifestPlugin) Capabilities() []Capability { return p.manifest.Caps() }

func (p *manifestPlugin) HasEntryPoint(c Capability) bool {
	return hasCapability(p.manifest.Caps(), c) && p.manifest.entryFor(c) != nil
}

func (p *manifestPlugin) Invoke(ctx context.Context, c Capability, env Env) (Result, error) {
	ep := p.manifest.entryFor(c)
	if ep == nil || !hasCapability(p.manifest.Caps(), c) {
		return Result{}, ErrNoEntryPoint
	}
	env.Options = ep.Options

	if ep.Builtin != "" {
		h, ok := p.registry.Lookup(ep.Builtin)
		if !ok {
			return Result{}, fmt.Errorf("%w %q", ErrUnknownBuiltin, ep.Builtin)
		}
		return h(ctx, env)
	}
	return runExec(ctx, p.dir, ep.Exec, env, p.timeout)
}

// PromptContent returns the inline prompt, or the prompt file relative to
// the plugins directory.
func (p *manifestPlugin) PromptContent() (string, error) {
	if !hasCapability(p.manifest.Caps(), Prompt) {
		return "", ErrNoEntryPoint
	}
	if text := strings.TrimSpace(p.manifest.Prompt); text != "" {
		return text, nil
	}
	if p.manifest.PromptFile == "" {
		return "", nil
	}
	path := p.manifest.PromptFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ---------------------------------------------------------------------------
// exec entry points
// ---------------------------------------------------------------------------

// runExec runs an external entry point in dir. For ACTION, a last stdout
// line of "bypass" or "true" signals bypass.
func runExec(ctx context.Context, dir string, argv []string, env Env, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"LTM_PLUGIN="+env.Plugin,
		"LTM_CAPABILITY="+string(env.Capability),
		"LTM_INPUT="+env.InputPath,
		"LTM_OUTPUT="+env.OutputPath,
		"LTM_REPORTS_DIR="+env.ReportsDir,
	)
	for k, v := range env.Options {
		cmd.Env = append(cmd.Env, "LTM_OPT_"+envName(k)+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if env.Logger != nil && stderr.Len() > 0 {
		env.Logger.Debug("plugin stderr", "plugin", env.Plugin, "output", truncate(stderr.String(), 500))
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, fmt.Errorf("%s timed out after %s", argv[0], timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Result{}, fmt.Errorf("%s: %w: %s", argv[0], err, truncate(msg, 200))
		}
		return Result{}, fmt.Errorf("%s: %w", argv[0], err)
	}

	if env.Capability != Action {
		return Result{}, nil
	}
	return Result{Bypass: isBypassSignal(lastLine(stdout.String()))}, nil
}

func isBypassSignal(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bypass", "true":
		return true
	}
	return false
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func envName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, key)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
