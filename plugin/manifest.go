package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EntryPoint is how an ACTION or EXTENSION capability is executed.
// Exactly one of Builtin and Exec should be set.
type EntryPoint struct {
	Builtin string            `yaml:"builtin,omitempty"`
	Exec    []string          `yaml:"exec,omitempty"`
	Options map[string]string `yaml:"options,omitempty"`
}

// Manifest is the on-disk plugin definition.
type Manifest struct {
	Description  string        `yaml:"description,omitempty"`
	Capabilities []string      `yaml:"capabilities"`
	Prompt       string        `yaml:"prompt,omitempty"`
	PromptFile   string        `yaml:"prompt_file,omitempty"`
	Action       *EntryPoint   `yaml:"action,omitempty"`
	Extension    *EntryPoint   `yaml:"extension,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// ReadManifest parses the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return &m, nil
}

// Caps returns the declared capabilities in canonical order.
func (m *Manifest) Caps() []Capability {
	return normalizeCapabilities(m.Capabilities)
}

func (m *Manifest) entryFor(c Capability) *EntryPoint {
	var ep *EntryPoint
	switch c {
	case Action:
		ep = m.Action
	case Extension:
		ep = m.Extension
	}
	if ep == nil || (ep.Builtin == "" && len(ep.Exec) == 0) {
		return nil
	}
	return ep
}

// isManifestFile reports whether a directory entry is a plugin candidate.
// Names starting with "_" or "." are reserved.
func isManifestFile(name string) bool {
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
