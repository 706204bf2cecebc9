package reliablellm

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// BackendInfo describes the defaults of a known backend.
type BackendInfo struct {
	Name                  string  `yaml:"name" json:"name"`
	DisplayName           string  `yaml:"display_name" json:"display_name"`
	DefaultModel          string  `yaml:"default_model" json:"default_model"`
	NativeJSON            bool    `yaml:"native_json" json:"native_json"`
	TextTemperature       float64 `yaml:"text_temperature" json:"text_temperature"`
	StructuredTemperature float64 `yaml:"structured_temperature" json:"structured_temperature"`
	MaxTokens             int     `yaml:"max_tokens" json:"max_tokens"`
	Local                 bool    `yaml:"local" json:"local"`
}

//go:embed catalog.yaml
var catalogYAML []byte

var (
	catalog     []BackendInfo
	catalogOnce sync.Once
	catalogErr  error
)

func loadCatalog() ([]BackendInfo, error) {
	catalogOnce.Do(func() {
		var doc struct {
			Backends []BackendInfo `yaml:"backends"`
		}
		if err := yaml.Unmarshal(catalogYAML, &doc); err != nil {
			catalogErr = fmt.Errorf("failed to unmarshal backend catalog: %w", err)
			return
		}
		catalog = doc.Backends
	})
	return catalog, catalogErr
}

// LookupBackendInfo returns the catalog entry for a backend name. Unknown
// names get generic defaults and ok=false.
func LookupBackendInfo(name string) (BackendInfo, bool) {
	entries, err := loadCatalog()
	if err == nil {
		for _, info := range entries {
			if info.Name == name {
				return info, true
			}
		}
	}
	return BackendInfo{
		Name:                  name,
		DisplayName:           name,
		TextTemperature:       DefaultTextTemperature,
		StructuredTemperature: DefaultStructuredTemperature,
		MaxTokens:             DefaultMaxTokens,
	}, false
}

// KnownBackends returns every backend name in the catalog, in catalog order.
func KnownBackends() []string {
	entries, _ := loadCatalog()
	names := make([]string, len(entries))
	for i, info := range entries {
		names[i] = info.Name
	}
	return names
}
