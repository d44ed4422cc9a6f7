package bundled

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/lokalise-tm/ltm/csvfile"
	"github.com/lokalise-tm/ltm/plugin"
)

// optRemove is the keyword-filter option that drops matched rows from the
// output store after reporting them.
const optRemove = "remove"

// defaultPatterns apply when a manifest configures none.
var defaultPatterns = map[string]string{
	"softpos": `(?i)soft-?pos`,
	"url":     `https?://`,
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

// keywordFilter writes one report per pattern with the output rows whose
// source or translated text matches it: <reports>/<name>_translations.csv.
func keywordFilter(_ context.Context, env plugin.Env) (plugin.Result, error) {
	patterns, err := compilePatterns(env.Options)
	if err != nil {
		return plugin.Result{}, err
	}

	table, err := csvfile.ReadFile(env.OutputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			env.Logger.Info("nothing to filter, output store missing", "path", env.OutputPath)
			return plugin.Result{}, nil
		}
		return plugin.Result{}, err
	}

	matched := make(map[int]bool)
	for _, p := range patterns {
		var rows []map[string]string
		for i, row := range table.Rows {
			if p.re.MatchString(row.Value(csvfile.ColSource)) || p.re.MatchString(row.Value(csvfile.ColTranslated)) {
				rows = append(rows, row.Map())
				matched[i] = true
			}
		}
		report := filepath.Join(env.ReportsDir, p.name+"_translations.csv")
		if err := csvfile.WriteFile(report, table.Header, rows); err != nil {
			return plugin.Result{}, fmt.Errorf("writing %s: %w", report, err)
		}
		env.Logger.Info("keyword filter", "pattern", p.name, "matches", len(rows), "report", report)
	}

	remove, _ := strconv.ParseBool(env.Option(optRemove, "false"))
	if !remove || len(matched) == 0 {
		return plugin.Result{}, nil
	}

	kept := &csvfile.Table{Header: table.Header, Delimiter: table.Delimiter}
	for i, row := range table.Rows {
		if !matched[i] {
			kept.Rows = append(kept.Rows, row)
		}
	}
	if err := csvfile.Replace(env.OutputPath, kept); err != nil {
		return plugin.Result{}, fmt.Errorf("rewriting output store: %w", err)
	}
	env.Logger.Info("removed filtered rows from output store", "rows", len(matched))
	return plugin.Result{}, nil
}

func compilePatterns(opts map[string]string) ([]namedPattern, error) {
	src := make(map[string]string)
	for k, v := range opts {
		if k != optRemove {
			src[k] = v
		}
	}
	if len(src) == 0 {
		src = defaultPatterns
	}

	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]namedPattern, 0, len(names))
	for _, name := range names {
		re, err := regexp.Compile(src[name])
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", name, err)
		}
		out = append(out, namedPattern{name: name, re: re})
	}
	return out, nil
}
