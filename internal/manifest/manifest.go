// Package manifest loads the declarative fixture work list. The manifest is
// read once at startup and treated as immutable afterward; fixture order is
// the processing order.
package manifest

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// FixtureSpec declares one remote resource and its local destination.
// Identity is structural; specs are never mutated after load.
type FixtureSpec struct {
	URL         string `mapstructure:"url"`
	FixturePath string `mapstructure:"fixture_path"`
	Validator   string `mapstructure:"validator"`
	Phase       string `mapstructure:"phase"`
}

// Manifest is the ordered fixture work list plus its shared settings.
type Manifest struct {
	BaseURL   string            `mapstructure:"base_url"`
	OutputDir string            `mapstructure:"output_dir"`
	Phases    map[string]string `mapstructure:"phases"`
	Fixtures  []FixtureSpec     `mapstructure:"fixtures"`
}

// Load reads and validates a manifest file. Viper infers the format from the
// file extension, so YAML, JSON, and TOML manifests all work.
func Load(path string) (Manifest, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// validate enforces required fields once at the deserialization boundary so
// the rest of the pipeline can trust the values.
func (m Manifest) validate() error {
	if strings.TrimSpace(m.BaseURL) == "" {
		return fmt.Errorf("base_url is required")
	}
	if _, err := url.Parse(m.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if strings.TrimSpace(m.OutputDir) == "" {
		return fmt.Errorf("output_dir is required")
	}
	if len(m.Fixtures) == 0 {
		return fmt.Errorf("at least one fixture is required")
	}
	for i, f := range m.Fixtures {
		if strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("fixture %d: url is required", i)
		}
		if strings.TrimSpace(f.FixturePath) == "" {
			return fmt.Errorf("fixture %d (%s): fixture_path is required", i, f.URL)
		}
		if f.Phase != "" {
			if _, ok := m.Phases[f.Phase]; !ok && len(m.Phases) > 0 {
				return fmt.Errorf("fixture %d (%s): unknown phase %q", i, f.URL, f.Phase)
			}
		}
	}
	return nil
}

// FilterByPhase returns the fixtures whose phase starts with prefix,
// preserving manifest order. An empty prefix returns every fixture.
func (m Manifest) FilterByPhase(prefix string) []FixtureSpec {
	if prefix == "" {
		return append([]FixtureSpec(nil), m.Fixtures...)
	}
	var out []FixtureSpec
	for _, f := range m.Fixtures {
		if strings.HasPrefix(f.Phase, prefix) {
			out = append(out, f)
		}
	}
	return out
}
