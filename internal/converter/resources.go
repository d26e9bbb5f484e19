package converter

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/bnema/dnr-filters/internal/models"
)

// Resources maps `rewrite=abp-resource:<key>` keys to redirect targets. A
// target starting with "/" is a path inside the extension package, anything
// else is used as a URL.
type Resources map[string]string

// DefaultResources returns the built-in resource table
func DefaultResources() Resources {
	return Resources{
		"blank-text":            "data:text/plain,",
		"blank-css":             "data:text/css,",
		"blank-js":              "data:application/javascript,",
		"blank-html":            "data:text/html,",
		"blank-mp3":             "data:audio/mpeg;base64,",
		"1x1-transparent-gif":   "data:image/gif;base64,R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7",
		"2x2-transparent-png":   "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAIAAAACCAYAAABytg0kAAAAC0lEQVQI12NgQAcAABIAAe+JVKQAAAAASUVORK5CYII=",
		"3x2-transparent-png":   "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAMAAAACCAYAAACddGYaAAAAC0lEQVQI12NgwAUAABoAASRETuUAAAAASUVORK5CYII=",
		"32x32-transparent-png": "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAACAAAAAgCAYAAABzenr0AAAAGklEQVRYw+3BAQEAAACCIP+vbkhAAQAAAO8GECAAAZf3V9cAAAAASUVORK5CYII=",
	}
}

// Redirect resolves key to a redirect action payload
func (r Resources) Redirect(key string) (*models.Redirect, bool) {
	target, ok := r[key]
	if !ok || target == "" {
		return nil, false
	}
	if strings.HasPrefix(target, "/") {
		return &models.Redirect{ExtensionPath: target}, true
	}
	return &models.Redirect{URL: target}, true
}

// LoadResources reads a YAML `key: target` file and merges it over the
// built-in table. An empty target removes a built-in key.
func LoadResources(fs afero.Fs, path string) (Resources, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resources file: %w", err)
	}
	return LoadResourcesFromBytes(data)
}

// LoadResourcesFromBytes parses YAML bytes into a resource table
func LoadResourcesFromBytes(data []byte) (Resources, error) {
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse resources YAML: %w", err)
	}

	res := DefaultResources()
	for key, target := range overrides {
		if target == "" {
			delete(res, key)
			continue
		}
		res[key] = target
	}
	return res, nil
}
