package bundled

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lokalise-tm/ltm/csvfile"
	"github.com/lokalise-tm/ltm/plugin"
)

// Columns of a reviewed-translations file.
const (
	colLanguageISO    = "language_iso"
	colNewTranslation = "new_translation"
)

// DefaultReviewedFile is read when the manifest sets no file option.
const DefaultReviewedFile = "reviewed_translations.csv"

type reviewedKey struct {
	keyID          string
	keyName        string
	languages      []string
	translationIDs []string
	translations   []string
}

// injectReviewed copies human-reviewed translations into the output store
// and signals bypass, so the provider is not called for this run. Without
// a reviewed file it does nothing.
func injectReviewed(_ context.Context, env plugin.Env) (plugin.Result, error) {
	path := resolve(env, env.Option("file", DefaultReviewedFile))
	table, err := csvfile.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			env.Logger.Info("no reviewed translations found", "path", path)
			return plugin.Result{}, nil
		}
		return plugin.Result{}, fmt.Errorf("reading reviewed translations: %w", err)
	}

	keys := groupReviewed(table)
	if len(keys) == 0 {
		env.Logger.Warn("reviewed translations file has no usable rows", "path", path)
		return plugin.Result{}, nil
	}

	done, err := csvfile.CompletedKeys(env.OutputPath)
	if err != nil {
		env.Logger.Warn("output store unreadable, treating as empty", "path", env.OutputPath, "error", err)
	}

	out, err := csvfile.OpenOutput(env.OutputPath, csvfile.OutputHeader)
	if err != nil {
		return plugin.Result{}, err
	}
	defer out.Close()

	injected := 0
	for _, k := range keys {
		if _, ok := done[k.keyID]; ok {
			continue
		}
		err := out.Append(map[string]string{
			csvfile.ColKeyName:       k.keyName,
			csvfile.ColKeyID:         k.keyID,
			csvfile.ColLanguages:     csvfile.JoinList(k.languages),
			csvfile.ColTranslationID: csvfile.JoinList(k.translationIDs),
			csvfile.ColTranslated:    csvfile.JoinTranslated(k.translations),
		})
		if err != nil {
			return plugin.Result{}, err
		}
		injected++
	}

	env.Logger.Info("injected reviewed translations", "keys", injected, "already_done", len(keys)-injected)
	return plugin.Result{Bypass: true}, nil
}

// groupReviewed folds one-row-per-language into one entry per key, in file
// order.
func groupReviewed(table *csvfile.Table) []*reviewedKey {
	var order []*reviewedKey
	byID := make(map[string]*reviewedKey)
	for _, row := range table.Rows {
		id := strings.TrimSpace(row.Value(csvfile.ColKeyID))
		lang := strings.TrimSpace(row.Value(colLanguageISO))
		if id == "" || lang == "" {
			continue
		}
		k, ok := byID[id]
		if !ok {
			k = &reviewedKey{keyID: id, keyName: row.Value(csvfile.ColKeyName)}
			byID[id] = k
			order = append(order, k)
		}
		k.languages = append(k.languages, lang)
		k.translationIDs = append(k.translationIDs, strings.TrimSpace(row.Value(csvfile.ColTranslationID)))
		k.translations = append(k.translations, row.Value(colNewTranslation))
	}
	return order
}
