// Package bundled registers the plugin handlers shipped with ltm.
//
// Manifests refer to them by name:
//
//	action:
//	  builtin: inject-reviewed
//	extension:
//	  builtin: keyword-filter
//
// Importing the package for its side effects is enough.
package bundled

import (
	"path/filepath"

	"github.com/lokalise-tm/ltm/plugin"
)

const (
	InjectReviewed = "inject-reviewed"
	KeywordFilter  = "keyword-filter"
)

func init() {
	Register(plugin.Builtins)
}

// Register adds every bundled handler to reg.
func Register(reg *plugin.Registry) {
	reg.Register(InjectReviewed, injectReviewed)
	reg.Register(KeywordFilter, keywordFilter)
}

// resolve makes a relative option path relative to the reports directory.
func resolve(env plugin.Env, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(env.ReportsDir, path)
}
