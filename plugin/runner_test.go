package plugin

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	name    string
	caps    []Capability
	entries map[Capability]bool
	bypass  bool
	err     error
	panics  bool
	prompt  string
	calls   *[]string
}

func (f *fakePlugin) Name() string               { return f.name }
func (f *fakePlugin) Capabilities() []Capability { return f.caps }
func (f *fakePlugin) HasEntryPoint(c Capability) bool {
	return f.entries[c]
}

func (f *fakePlugin) Invoke(_ context.Context, c Capability, env Env) (Result, error) {
	*f.calls = append(*f.calls, f.name+":"+string(c))
	if f.panics {
		panic("boom")
	}
	return Result{Bypass: f.bypass}, f.err
}

func (f *fakePlugin) PromptContent() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.prompt, nil
}

type fakeLoader struct {
	plugins map[string]*fakePlugin
	loaded  []string
}

func (l *fakeLoader) Load(name string) (Plugin, error) {
	l.loaded = append(l.loaded, name)
	p, ok := l.plugins[name]
	if !ok {
		return nil, errors.New("no such plugin")
	}
	return p, nil
}

func newFakeLoader(calls *[]string, plugins ...*fakePlugin) *fakeLoader {
	l := &fakeLoader{plugins: make(map[string]*fakePlugin)}
	for _, p := range plugins {
		p.calls = calls
		l.plugins[p.name] = p
	}
	return l
}

func action(name string) *fakePlugin {
	return &fakePlugin{name: name, caps: []Capability{Action}, entries: map[Capability]bool{Action: true}}
}

func extension(name string) *fakePlugin {
	return &fakePlugin{name: name, caps: []Capability{Extension}, entries: map[Capability]bool{Extension: true}}
}

func TestActionBypassShortCircuits(t *testing.T) {
	var calls []string
	first := action("a")
	second := action("b")
	second.bypass = true
	third := action("c")
	loader := newFakeLoader(&calls, first, second, third)

	r := NewRunner(loader, Env{}, discardLogger())
	bypass, err := r.Run(context.Background(), []string{"a", "b", "c"}, Action)

	require.NoError(t, err)
	assert.True(t, bypass)
	assert.Equal(t, []string{"a:ACTION", "b:ACTION"}, calls)
	assert.Equal(t, []string{"a", "b"}, loader.loaded, "plugins after the bypass are not loaded")
}

func TestExtensionAlwaysRunsAllAndNeverBypasses(t *testing.T) {
	var calls []string
	a := extension("a")
	a.bypass = true
	b := extension("b")
	r := NewRunner(newFakeLoader(&calls, a, b), Env{}, discardLogger())

	bypass, err := r.Run(context.Background(), []string{"a", "b"}, Extension)
	require.NoError(t, err)
	assert.False(t, bypass)
	assert.Equal(t, []string{"a:EXTENSION", "b:EXTENSION"}, calls)
}

func TestFailuresAreIsolated(t *testing.T) {
	var calls []string
	failing := extension("failing")
	failing.err = errors.New("disk full")
	panicking := extension("panicking")
	panicking.panics = true
	last := extension("last")
	r := NewRunner(newFakeLoader(&calls, failing, panicking, last), Env{}, discardLogger())

	bypass, err := r.Run(context.Background(), []string{"failing", "unloadable", "panicking", "last"}, Extension)
	require.NoError(t, err)
	assert.False(t, bypass)
	assert.Equal(t, []string{"failing:EXTENSION", "panicking:EXTENSION", "last:EXTENSION"}, calls)
}

func TestFailedActionDoesNotBypass(t *testing.T) {
	var calls []string
	broken := action("broken")
	broken.bypass = true
	broken.err = errors.New("boom")
	r := NewRunner(newFakeLoader(&calls, broken, action("next")), Env{}, discardLogger())

	bypass, err := r.Run(context.Background(), []string{"broken", "next"}, Action)
	require.NoError(t, err)
	assert.False(t, bypass)
	assert.Equal(t, []string{"broken:ACTION", "next:ACTION"}, calls)
}

func TestFailOnErrorReturnsJoinedErrorsAfterPhase(t *testing.T) {
	var calls []string
	bad := extension("bad")
	bad.err = errors.New("boom")
	r := NewRunner(newFakeLoader(&calls, bad, extension("good")), Env{}, discardLogger())
	r.FailOnError = true

	_, err := r.Run(context.Background(), []string{"bad", "good"}, Extension)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, []string{"bad:EXTENSION", "good:EXTENSION"}, calls)
}

func TestMissingEntryPointSkippedSilently(t *testing.T) {
	var calls []string
	promptOnly := &fakePlugin{name: "prompt", caps: []Capability{Action, Prompt}, entries: map[Capability]bool{}}
	r := NewRunner(newFakeLoader(&calls, promptOnly, action("real")), Env{}, discardLogger())
	r.FailOnError = true

	bypass, err := r.Run(context.Background(), []string{"prompt", "real"}, Action)
	require.NoError(t, err)
	assert.False(t, bypass)
	assert.Equal(t, []string{"real:ACTION"}, calls)
}

func TestRunRejectsPromptCapability(t *testing.T) {
	r := NewRunner(&fakeLoader{}, Env{}, discardLogger())
	_, err := r.Run(context.Background(), nil, Prompt)
	assert.ErrorIs(t, err, ErrNotExecutable)
}

func TestLoadPromptContent(t *testing.T) {
	var calls []string
	a := &fakePlugin{name: "a", caps: []Capability{Prompt}, prompt: "Keep brand names."}
	b := &fakePlugin{name: "b", caps: []Capability{Prompt}, err: errors.New("unreadable")}
	c := &fakePlugin{name: "c", caps: []Capability{Prompt}, prompt: "  Use formal register.\n"}
	r := NewRunner(newFakeLoader(&calls, a, b, c), Env{}, discardLogger())

	got := r.LoadPromptContent([]string{"a", "b", "c", "missing"})
	assert.Equal(t, "Keep brand names. Use formal register.", got)
	assert.Empty(t, calls, "prompt bodies are never executed")
}

func TestManifestLoaderBuiltin(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "inject.yaml", `
capabilities: [ACTION, PROMPT]
prompt: Never translate PayNow.
action:
  builtin: test-inject
  options:
    file: reviewed.csv
`)
	reg := NewRegistry()
	var gotEnv Env
	reg.Register("test-inject", func(_ context.Context, env Env) (Result, error) {
		gotEnv = env
		return Result{Bypass: true}, nil
	})
	loader := &ManifestLoader{Dir: dir, Registry: reg}
	r := NewRunner(loader, Env{OutputPath: "out.csv"}, discardLogger())

	bypass, err := r.Run(context.Background(), []string{"inject.yaml"}, Action)
	require.NoError(t, err)
	assert.True(t, bypass)
	assert.Equal(t, "inject.yaml", gotEnv.Plugin)
	assert.Equal(t, Action, gotEnv.Capability)
	assert.Equal(t, "out.csv", gotEnv.OutputPath)
	assert.Equal(t, "reviewed.csv", gotEnv.Option("file", "default.csv"))
	assert.Equal(t, "fallback", gotEnv.Option("absent", "fallback"))

	assert.Equal(t, "Never translate PayNow.", r.LoadPromptContent([]string{"inject.yaml"}))

	p, err := loader.Load("inject.yaml")
	require.NoError(t, err)
	assert.False(t, p.HasEntryPoint(Extension))
}

func TestManifestLoaderUnknownBuiltinIsIsolated(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "x.yaml", "capabilities: [EXTENSION]\nextension:\n  builtin: nobody\n")
	r := NewRunner(&ManifestLoader{Dir: dir, Registry: NewRegistry()}, Env{}, discardLogger())
	r.FailOnError = true

	_, err := r.Run(context.Background(), []string{"x.yaml"}, Extension)
	assert.ErrorIs(t, err, ErrUnknownBuiltin)
}

func TestPromptFileRelativeToPluginsDir(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "brand.txt", "Keep MyApp untranslated.\n")
	writeManifest(t, dir, "brand.yaml", "capabilities: [PROMPT]\nprompt_file: brand.txt\n")
	writeManifest(t, dir, "lost.yaml", "capabilities: [PROMPT]\nprompt_file: "+filepath.Join(dir, "absent.txt")+"\n")

	r := NewRunner(&ManifestLoader{Dir: dir}, Env{}, discardLogger())
	assert.Equal(t, "Keep MyApp untranslated.", r.LoadPromptContent([]string{"lost.yaml", "brand.yaml"}))
}

func TestExecEntryPoint(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	writeManifest(t, dir, "bypass.yaml", `
capabilities: [ACTION]
action:
  exec: ["sh", "-c", "echo checking $LTM_OPT_MODE; echo bypass"]
  options:
    mode: strict
`)
	writeManifest(t, dir, "quiet.yaml", "capabilities: [ACTION]\naction:\n  exec: [\"sh\", \"-c\", \"echo nothing to do\"]\n")
	writeManifest(t, dir, "fails.yaml", "capabilities: [EXTENSION]\nextension:\n  exec: [\"sh\", \"-c\", \"echo broken >&2; exit 3\"]\n")

	r := NewRunner(&ManifestLoader{Dir: dir}, Env{}, discardLogger())

	bypass, err := r.Run(context.Background(), []string{"quiet.yaml"}, Action)
	require.NoError(t, err)
	assert.False(t, bypass)

	bypass, err = r.Run(context.Background(), []string{"quiet.yaml", "bypass.yaml"}, Action)
	require.NoError(t, err)
	assert.True(t, bypass)

	r.FailOnError = true
	_, err = r.Run(context.Background(), []string{"fails.yaml"}, Extension)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	h := func(context.Context, Env) (Result, error) { return Result{}, nil }
	reg.Register("x", h)
	assert.Panics(t, func() { reg.Register("x", h) })
	assert.Equal(t, []string{"x"}, reg.Names())
}

func TestParseCapability(t *testing.T) {
	c, ok := ParseCapability(" prompt ")
	assert.True(t, ok)
	assert.Equal(t, Prompt, c)
	_, ok = ParseCapability("FILTER")
	assert.False(t, ok)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "ok", truncate("ok", 5))
	assert.Equal(t, "日...", truncate("日本語", 4))
	assert.Equal(t, "...", truncate("日本語", 2))
}
