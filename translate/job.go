package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lokalise-tm/ltm/csvfile"
	"github.com/lokalise-tm/ltm/plugin"
	"github.com/lokalise-tm/ltm/progress"
	"github.com/lokalise-tm/ltm/retry"
)

// State is a phase of a translation run.
type State string

const (
	StateInit           State = "INIT"
	StateActionPhase    State = "ACTION_PHASE"
	StateBypassed       State = "BYPASSED"
	StatePrepare        State = "PREPARE"
	StateTranslateLoop  State = "TRANSLATE_LOOP"
	StateExtensionPhase State = "EXTENSION_PHASE"
	StateDone           State = "DONE"
)

// PluginSource lists enabled plugins per capability.
type PluginSource interface {
	EnabledByCapability(c plugin.Capability) ([]string, error)
}

// PluginExecutor runs plugin phases and collects prompt addons.
type PluginExecutor interface {
	Run(ctx context.Context, names []string, c plugin.Capability) (bool, error)
	LoadPromptContent(names []string) string
}

// Summary reports what a run did.
type Summary struct {
	Bypassed bool
	// Pending is the number of queue rows not yet in the output store.
	Pending   int
	Attempted int
	Persisted int
	// Skipped counts malformed rows; they are retried on the next run.
	Skipped int
	// Translated and Failed count provider calls per language.
	Translated int
	Failed     int
	// Empty counts languages left blank because the source was blank.
	Empty   int
	Elapsed time.Duration
}

// Job is one translation run over an input queue and an output store.
type Job struct {
	InputPath  string
	OutputPath string

	Translator Translator
	Retry      retry.Policy
	// Sleep replaces real backoff waits when set.
	Sleep retry.Sleeper

	Catalog PluginSource
	Plugins PluginExecutor

	Progress progress.Starter
	Logger   *slog.Logger
	// OnState observes state transitions.
	OnState func(State)
}

func (j *Job) log() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func (j *Job) enter(s State) {
	j.log().Debug("state", "state", s)
	if j.OnState != nil {
		j.OnState(s)
	}
}

func (j *Job) progress() progress.Starter {
	if j.Progress == nil {
		return progress.Nop
	}
	return j.Progress
}

func (j *Job) enabled(c plugin.Capability) []string {
	if j.Catalog == nil {
		return nil
	}
	names, err := j.Catalog.EnabledByCapability(c)
	if err != nil {
		j.log().Error("listing plugins failed", "capability", c, "error", err)
		return nil
	}
	return names
}

func (j *Job) runPlugins(ctx context.Context, c plugin.Capability) (bool, error) {
	if j.Plugins == nil {
		return false, nil
	}
	names := j.enabled(c)
	if len(names) == 0 {
		return false, nil
	}
	return j.Plugins.Run(ctx, names, c)
}

// Run executes the whole run. Per-record provider failures never fail the
// run; an error is returned only when the input queue or output store is
// unusable, the context is cancelled, or plugins failed with
// fail_on_plugin_error set.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	start := time.Now()
	defer func() { sum.Elapsed = time.Since(start) }()

	j.enter(StateInit)
	done, err := csvfile.CompletedKeys(j.OutputPath)
	if err != nil {
		j.log().Warn("output store unreadable, starting from scratch", "path", j.OutputPath, "error", err)
	}
	j.log().Info("resuming", "completed_keys", len(done))

	j.enter(StateActionPhase)
	bypass, actionErr := j.runPlugins(ctx, plugin.Action)

	if bypass {
		j.enter(StateBypassed)
		sum.Bypassed = true
		j.log().Info("translation bypassed by ACTION plugin")
	} else {
		j.enter(StatePrepare)
		addons := ""
		if j.Plugins != nil {
			if names := j.enabled(plugin.Prompt); len(names) > 0 {
				addons = j.Plugins.LoadPromptContent(names)
			}
		}

		table, err := csvfile.ReadFile(j.InputPath)
		if err != nil {
			return sum, fmt.Errorf("reading input queue: %w", err)
		}
		// ACTION plugins may have written to the store.
		if refreshed, err := csvfile.CompletedKeys(j.OutputPath); err == nil {
			done = refreshed
		}

		var pending []csvfile.Row
		for _, row := range table.Rows {
			if _, ok := done[strings.TrimSpace(row.Value(csvfile.ColKeyID))]; ok {
				continue
			}
			pending = append(pending, row)
		}
		sum.Pending = len(pending)
		j.log().Info("queue loaded", "rows", len(table.Rows), "pending", len(pending))

		if len(pending) > 0 {
			j.enter(StateTranslateLoop)
			if err := j.translateAll(ctx, table.Header, pending, done, addons, &sum); err != nil {
				return sum, err
			}
		}
	}

	j.enter(StateExtensionPhase)
	_, extErr := j.runPlugins(ctx, plugin.Extension)

	j.enter(StateDone)
	sum.Elapsed = time.Since(start)
	j.log().Info("translation run finished",
		"bypassed", sum.Bypassed,
		"persisted", sum.Persisted,
		"skipped", sum.Skipped,
		"translated", sum.Translated,
		"failed", sum.Failed,
		"elapsed", sum.Elapsed.Round(time.Millisecond))

	return sum, errors.Join(actionErr, extErr)
}

func outputHeader(input []string) []string {
	if len(input) == 0 {
		return csvfile.OutputHeader
	}
	header := append([]string{}, input...)
	for _, col := range header {
		if col == csvfile.ColTranslated {
			return header
		}
	}
	return append(header, csvfile.ColTranslated)
}

// translateAll is the translation loop. Each record is persisted before
// the next one starts.
func (j *Job) translateAll(ctx context.Context, header []string, pending []csvfile.Row, done map[string]struct{}, addons string, sum *Summary) error {
	out, err := csvfile.OpenOutput(j.OutputPath, outputHeader(header))
	if err != nil {
		return err
	}
	defer out.Close()

	bar := j.progress()(len(pending), "translating")
	defer bar.Close()

	for _, row := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Attempted++

		rec, err := row.Record()
		if err != nil {
			sum.Skipped++
			j.log().Warn("skipping malformed record", "key_id", row.Value(csvfile.ColKeyID), "error", err)
			bar.Add(1)
			continue
		}
		if _, ok := done[rec.KeyID]; ok {
			// Same key queued twice.
			bar.Add(1)
			continue
		}

		translated, err := j.translateRecord(ctx, rec, addons, sum)
		if err != nil {
			return err
		}

		values := row.Map()
		values[csvfile.ColTranslated] = csvfile.JoinTranslated(translated)
		if err := out.Append(values); err != nil {
			return fmt.Errorf("persisting key %s: %w", rec.KeyID, err)
		}
		done[rec.KeyID] = struct{}{}
		sum.Persisted++
		bar.Add(1)
	}
	return nil
}

// translateRecord returns one result per language. A blank source yields
// blanks without calling the provider; an exhausted or fatal provider error
// yields a blank for that language. Only context cancellation is returned.
func (j *Job) translateRecord(ctx context.Context, rec csvfile.Record, addons string, sum *Summary) ([]string, error) {
	results := make([]string, len(rec.Languages))
	if strings.TrimSpace(rec.SourceText) == "" {
		sum.Empty += len(rec.Languages)
		j.log().Debug("blank source, nothing to translate", "key_id", rec.KeyID)
		return results, nil
	}

	for i, lang := range rec.Languages {
		text, attempts, err := retry.Do(ctx, j.Retry,
			func(ctx context.Context) (string, error) {
				return j.Translator.Translate(ctx, rec.SourceText, lang, addons)
			},
			IsTransient,
			retry.Options{
				Sleep: j.Sleep,
				OnRetry: func(attempt int, wait time.Duration, err error) {
					j.log().Warn("provider call failed, retrying",
						"key_id", rec.KeyID, "lang", lang, "attempt", attempt+1, "wait", wait, "error", err)
				},
			})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			sum.Failed++
			j.log().Error("translation failed, leaving blank",
				"key_id", rec.KeyID, "key", rec.KeyName, "lang", lang, "attempts", attempts,
				"source", truncate(rec.SourceText, 60), "error", err)
			continue
		}
		sum.Translated++
		results[i] = text
		j.log().Debug("translated", "key_id", rec.KeyID, "lang", lang)
	}
	return results, nil
}
