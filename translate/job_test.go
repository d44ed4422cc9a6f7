package translate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokalise-tm/ltm/csvfile"
	"github.com/lokalise-tm/ltm/plugin"
	"github.com/lokalise-tm/ltm/progress"
	"github.com/lokalise-tm/ltm/retry"
)

type call struct {
	Text, Lang, Addons string
}

// fakeTranslator answers from a table keyed by "text/lang" and records calls.
type fakeTranslator struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	calls   []call
	onCall  func(n int)
}

func (f *fakeTranslator) Translate(_ context.Context, text, lang, addons string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{text, lang, addons})
	n := len(f.calls)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(n)
	}
	if err, ok := f.errs[text+"/"+lang]; ok {
		return "", err
	}
	return f.answers[text+"/"+lang], nil
}

type fakePlugins struct {
	enabled map[plugin.Capability][]string
	bypass  bool
	prompt  string
	extErr  error
	runs    []plugin.Capability
}

func (f *fakePlugins) EnabledByCapability(c plugin.Capability) ([]string, error) {
	return f.enabled[c], nil
}

func (f *fakePlugins) Run(_ context.Context, _ []string, c plugin.Capability) (bool, error) {
	f.runs = append(f.runs, c)
	switch c {
	case plugin.Action:
		return f.bypass, nil
	case plugin.Extension:
		return false, f.extErr
	}
	return false, nil
}

func (f *fakePlugins) LoadPromptContent([]string) string { return f.prompt }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type waits struct {
	mu sync.Mutex
	d  []time.Duration
}

func (w *waits) sleep(_ context.Context, d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.d = append(w.d, d)
	return nil
}

func writeQueue(t *testing.T, dir string, rows ...[]string) string {
	t.Helper()
	path := filepath.Join(dir, "ready_to_translations.csv")
	var m []map[string]string
	for _, r := range rows {
		m = append(m, map[string]string{
			csvfile.ColKeyName:       r[0],
			csvfile.ColKeyID:         r[1],
			csvfile.ColLanguages:     r[2],
			csvfile.ColTranslationID: r[3],
			csvfile.ColSource:        r[4],
		})
	}
	require.NoError(t, csvfile.WriteFile(path, csvfile.QueueHeader, m))
	return path
}

func newJob(t *testing.T, input string, tr Translator, plugins *fakePlugins) (*Job, *waits) {
	t.Helper()
	w := &waits{}
	j := &Job{
		InputPath:  input,
		OutputPath: filepath.Join(filepath.Dir(input), "translation_done.csv"),
		Translator: tr,
		Retry:      retry.Default(),
		Sleep:      w.sleep,
		Logger:     quietLogger(),
	}
	if plugins != nil {
		j.Catalog = plugins
		j.Plugins = plugins
	}
	return j, w
}

func readOutput(t *testing.T, path string) *csvfile.Table {
	t.Helper()
	table, err := csvfile.ReadFile(path)
	require.NoError(t, err)
	return table
}

func TestJob_TranslatesEveryLanguageInOrder(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir, []string{"greeting", "1", "it,de", "11,12", "Hello"})
	tr := &fakeTranslator{answers: map[string]string{"Hello/it": "Ciao", "Hello/de": "Hallo"}}

	job, _ := newJob(t, input, tr, nil)
	sum, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []call{{"Hello", "it", ""}, {"Hello", "de", ""}}, tr.calls)
	assert.Equal(t, 1, sum.Persisted)
	assert.Equal(t, 2, sum.Translated)

	out := readOutput(t, job.OutputPath)
	assert.Equal(t, csvfile.OutputHeader, out.Header)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "Ciao|Hallo", out.Rows[0].Value(csvfile.ColTranslated))
	assert.Equal(t, "11,12", out.Rows[0].Value(csvfile.ColTranslationID))
}

func TestJob_SkipsKeysAlreadyInOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir, []string{"greeting", "1", "it", "11", "Hello"})
	tr := &fakeTranslator{}
	plugins := &fakePlugins{enabled: map[plugin.Capability][]string{plugin.Extension: {"report"}}}
	job, _ := newJob(t, input, tr, plugins)

	existing := []map[string]string{{
		csvfile.ColKeyName: "greeting", csvfile.ColKeyID: "1", csvfile.ColLanguages: "it",
		csvfile.ColTranslationID: "11", csvfile.ColSource: "Hello", csvfile.ColTranslated: "Ciao",
	}}
	require.NoError(t, csvfile.WriteFile(job.OutputPath, csvfile.OutputHeader, existing))
	before, err := os.ReadFile(job.OutputPath)
	require.NoError(t, err)

	var states []State
	job.OnState = func(s State) { states = append(states, s) }

	sum, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tr.calls)
	assert.Equal(t, 0, sum.Pending)

	after, err := os.ReadFile(job.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	assert.Equal(t, []State{StateInit, StateActionPhase, StatePrepare, StateExtensionPhase, StateDone}, states)
	assert.Equal(t, []plugin.Capability{plugin.Extension}, plugins.runs)
}

func TestJob_RetranslatesRowCutByCrash(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir,
		[]string{"greet", "1", "it", "t1", "Hello"},
		[]string{"bye", "2", "it", "t2", "Bye"},
	)
	tr := &fakeTranslator{answers: map[string]string{"Bye/it": "Ciao ciao"}}
	job, _ := newJob(t, input, tr, nil)

	// The previous run died while writing key 2.
	require.NoError(t, os.WriteFile(job.OutputPath, []byte(
		"key_name,key_id,languages,translation_id,translation,translated\n"+
			"greet,1,it,t1,Hello,Ciao\n"+
			"bye,2,it,t2"), 0644))

	sum, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []call{{"Bye", "it", ""}}, tr.calls)
	assert.Equal(t, 1, sum.Persisted)

	out := readOutput(t, job.OutputPath)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "Ciao", out.Rows[0].Value(csvfile.ColTranslated))
	assert.Equal(t, "2", out.Rows[1].Value(csvfile.ColKeyID))
	assert.Equal(t, "Ciao ciao", out.Rows[1].Value(csvfile.ColTranslated))
}

func TestJob_ResumeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir,
		[]string{"a", "1", "it", "11", "One"},
		[]string{"b", "2", "it,fr", "21,22", "Two"},
	)
	tr := &fakeTranslator{answers: map[string]string{"One/it": "Uno", "Two/it": "Due", "Two/fr": "Deux"}}
	job, _ := newJob(t, input, tr, nil)

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(job.OutputPath)
	require.NoError(t, err)
	calls := len(tr.calls)

	sum, err := job.Run(context.Background())
	require.NoError(t, err)
	second, err := os.ReadFile(job.OutputPath)
	require.NoError(t, err)

	assert.Equal(t, calls, len(tr.calls), "second run must not call the provider")
	assert.Equal(t, 0, sum.Persisted)
	assert.Equal(t, string(first), string(second))
}

func TestJob_RetryExhaustionLeavesBlank(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir, []string{"a", "1", "it,de", "11,12", "Hello"})
	tr := &fakeTranslator{
		answers: map[string]string{"Hello/de": "Hallo"},
		errs:    map[string]error{"Hello/it": &TransientError{Err: errors.New("503")}},
	}
	job, w := newJob(t, input, tr, nil)

	sum, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Translated)
	assert.Len(t, tr.calls, 6, "five attempts for it, one for de")
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}, w.d)

	out := readOutput(t, job.OutputPath)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "|Hallo", out.Rows[0].Value(csvfile.ColTranslated))
}

func TestJob_FatalErrorIsNotRetried(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir, []string{"a", "1", "it", "11", "Hello"})
	tr := &fakeTranslator{errs: map[string]error{"Hello/it": errors.New("invalid request")}}
	job, w := newJob(t, input, tr, nil)

	sum, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, tr.calls, 1)
	assert.Empty(t, w.d)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, "", readOutput(t, job.OutputPath).Rows[0].Value(csvfile.ColTranslated))
}

func TestJob_BlankSourceSkipsProvider(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir, []string{"a", "1", "it,de", "11,12", "   "})
	tr := &fakeTranslator{}
	job, _ := newJob(t, input, tr, nil)

	sum, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tr.calls)
	assert.Equal(t, 2, sum.Empty)
	assert.Equal(t, "|", readOutput(t, job.OutputPath).Rows[0].Value(csvfile.ColTranslated))
}

func TestJob_MalformedRowIsSkippedAndRetriedLater(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir,
		[]string{"bad", "", "it", "11", "Hello"},
		[]string{"good", "2", "it", "21", "Bye"},
	)
	tr := &fakeTranslator{answers: map[string]string{"Bye/it": "Ciao"}}
	job, _ := newJob(t, input, tr, nil)

	sum, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Persisted)

	out := readOutput(t, job.OutputPath)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "2", out.Rows[0].Value(csvfile.ColKeyID))

	sum, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pending, "the malformed row stays pending")
}

func TestJob_BypassSkipsTranslation(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTranslator{}
	plugins := &fakePlugins{
		enabled: map[plugin.Capability][]string{
			plugin.Action:    {"inject"},
			plugin.Extension: {"report"},
		},
		bypass: true,
	}
	// The queue does not exist; a bypassed run never reads it.
	job, _ := newJob(t, filepath.Join(dir, "missing.csv"), tr, plugins)

	var states []State
	job.OnState = func(s State) { states = append(states, s) }

	sum, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Bypassed)
	assert.Empty(t, tr.calls)
	assert.Equal(t, []State{StateInit, StateActionPhase, StateBypassed, StateExtensionPhase, StateDone}, states)
	assert.Equal(t, []plugin.Capability{plugin.Action, plugin.Extension}, plugins.runs)
}

func TestJob_MissingInputIsFatal(t *testing.T) {
	dir := t.TempDir()
	plugins := &fakePlugins{enabled: map[plugin.Capability][]string{plugin.Extension: {"report"}}}
	job, _ := newJob(t, filepath.Join(dir, "missing.csv"), &fakeTranslator{}, plugins)

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading input queue")
	assert.NotContains(t, plugins.runs, plugin.Extension)
}

func TestJob_PromptAddonsReachProvider(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir, []string{"a", "1", "it", "11", "Hello"})
	tr := &fakeTranslator{answers: map[string]string{"Hello/it": "Ciao"}}
	plugins := &fakePlugins{
		enabled: map[plugin.Capability][]string{plugin.Prompt: {"tone", "glossary"}},
		prompt:  "Be formal. Keep brand names.",
	}
	job, _ := newJob(t, input, tr, plugins)

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, tr.calls, 1)
	assert.Equal(t, "Be formal. Keep brand names.", tr.calls[0].Addons)
}

func TestJob_InterruptKeepsPersistedRecords(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir,
		[]string{"a", "1", "it", "11", "One"},
		[]string{"b", "2", "it", "21", "Two"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	tr := &fakeTranslator{answers: map[string]string{"One/it": "Uno", "Two/it": "Due"}}
	tr.onCall = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	counter := &progress.Counter{}
	job, _ := newJob(t, input, tr, nil)
	job.Progress = counter.Starter()

	_, err := job.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, counter.Closed, "reporter must be closed on interrupt")

	out := readOutput(t, job.OutputPath)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "Uno", out.Rows[0].Value(csvfile.ColTranslated))

	tr.onCall = nil
	sum, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Persisted)
	assert.Len(t, readOutput(t, job.OutputPath).Rows, 2)
}

func TestJob_ExtensionErrorsAreReported(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir, []string{"a", "1", "it", "11", "Hello"})
	plugins := &fakePlugins{
		enabled: map[plugin.Capability][]string{plugin.Extension: {"report"}},
		extErr:  errors.New("report: boom"),
	}
	job, _ := newJob(t, input, &fakeTranslator{answers: map[string]string{"Hello/it": "Ciao"}}, plugins)

	sum, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, sum.Persisted, "translation completed before the extension phase")
}

func TestJob_ProgressCountsEveryPendingRow(t *testing.T) {
	dir := t.TempDir()
	input := writeQueue(t, dir,
		[]string{"a", "1", "it", "11", "One"},
		[]string{"b", "", "it", "21", "Two"},
		[]string{"c", "3", "it", "31", "Three"},
	)
	counter := &progress.Counter{}
	job, _ := newJob(t, input, &fakeTranslator{}, nil)
	job.Progress = counter.Starter()

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counter.Total)
	assert.Equal(t, 3, counter.Done)
	assert.True(t, counter.Closed)
}

func TestJob_KeepsExtraQueueColumns(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "queue.csv")
	data := "key_name;key_id;languages;translation_id;translation;project\n" +
		"a;1;it;11;Hello;web\n"
	require.NoError(t, os.WriteFile(input, []byte(data), 0644))

	job, _ := newJob(t, input, &fakeTranslator{answers: map[string]string{"Hello/it": "Ciao"}}, nil)
	_, err := job.Run(context.Background())
	require.NoError(t, err)

	raw, err := os.ReadFile(job.OutputPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, "key_name,key_id,languages,translation_id,translation,project,translated", lines[0])
	assert.Equal(t, "a,1,it,11,Hello,web,Ciao", lines[1])
}
