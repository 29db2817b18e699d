// Package overlay loads per-source rule overlays: extra blacklist terms and
// custom code patterns keyed by channel or publisher.
package overlay

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/promo-scout/internal/model"
)

// File is the on-disk overlay document.
type File struct {
	Defaults Defaults                     `yaml:"defaults"`
	Sources  map[string]model.SourceRules `yaml:"sources"`
}

// Defaults apply to every source listed in the file.
type Defaults struct {
	ExtraBlacklist []string `yaml:"extra_blacklist"`
}

// Registry resolves a source key to its overlay. The zero value and a nil
// Registry are valid and hold no overlays.
type Registry struct {
	sources map[string]*model.SourceRules
}

// Load reads an overlay file. A missing file yields an empty registry.
// Patterns that do not compile are kept and reported at extraction time.
func Load(path string) (*Registry, error) {
	if path == "" {
		return &Registry{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			zap.L().Debug("overlay: no overlay file", zap.String("path", path))
			return &Registry{}, nil
		}
		return nil, eris.Wrapf(err, "overlay: read %s", path)
	}
	return Parse(data)
}

// Parse builds a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "overlay: parse")
	}

	r := &Registry{sources: make(map[string]*model.SourceRules, len(f.Sources))}
	for key, rules := range f.Sources {
		rules.Key = key
		rules.ExtraBlacklist = append(append([]string(nil), f.Defaults.ExtraBlacklist...), rules.ExtraBlacklist...)
		for name, pattern := range rules.CustomPatterns {
			if _, err := regexp.Compile(pattern); err != nil {
				zap.L().Warn("overlay: pattern does not compile",
					zap.String("source_key", key),
					zap.String("pattern", name),
					zap.Error(err),
				)
			}
		}
		r.sources[key] = &rules
	}
	return r, nil
}

// Lookup returns the overlay for key. Absence is normal.
func (r *Registry) Lookup(key string) (*model.SourceRules, bool) {
	if r == nil || key == "" {
		return nil, false
	}
	rules, ok := r.sources[key]
	return rules, ok
}

// Keys returns the configured source keys in sorted order.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.sources))
	for k := range r.sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of configured sources.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sources)
}
