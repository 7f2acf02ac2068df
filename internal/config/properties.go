package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Properties is a read-only key/value property source.
// Reads are advisory: a missing key is reported with ok=false, never an error.
type Properties interface {
	Get(key string) (value string, ok bool)
}

// MapProperties is an in-memory property source.
type MapProperties map[string]string

// Get returns the value stored for key.
func (m MapProperties) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// EnvProperties resolves property keys from the environment.
// "vendor.display.disable_ext_anim" is looked up as
// EXTANIM_VENDOR_DISPLAY_DISABLE_EXT_ANIM when Prefix is "EXTANIM".
type EnvProperties struct {
	Prefix string
}

// EnvName returns the environment variable consulted for key.
func (e EnvProperties) EnvName(key string) string {
	name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	if e.Prefix == "" {
		return name
	}
	return e.Prefix + "_" + name
}

// Get returns the environment value for key.
func (e EnvProperties) Get(key string) (string, bool) {
	return os.LookupEnv(e.EnvName(key))
}

// FileProperties is a property source backed by a flat TOML table:
//
//	"vendor.display.disable_ext_anim" = "1"
//	"vendor.display.qdframework_logs" = true
//
// Non-string scalars are stored in their canonical text form.
type FileProperties struct {
	Path   string
	values map[string]string
}

// LoadFileProperties reads a property file.
// A missing file yields an empty source, not an error.
func LoadFileProperties(path string) (*FileProperties, error) {
	fp := &FileProperties{Path: path, values: make(map[string]string)}
	if path == "" {
		return fp, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fp, nil
		}
		return nil, fmt.Errorf("failed to read properties %s: %w", path, err)
	}

	raw := make(map[string]any)
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse properties %s: %w", path, err)
	}

	flatten("", raw, fp.values)
	return fp, nil
}

// flatten stores scalar values of raw under their dotted key path, so
// `vendor.display.x = 1` and `"vendor.display.x" = "1"` read the same.
func flatten(prefix string, raw map[string]any, out map[string]string) {
	for k, v := range raw {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case bool:
			out[key] = strconv.FormatBool(val)
		case int64:
			out[key] = strconv.FormatInt(val, 10)
		case float64:
			out[key] = strconv.FormatFloat(val, 'g', -1, 64)
		case map[string]any:
			flatten(key, val, out)
		default:
			// Arrays are not properties
		}
	}
}

// Get returns the value stored for key.
func (f *FileProperties) Get(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.values[key]
	return v, ok
}

// Len returns the number of properties loaded.
func (f *FileProperties) Len() int {
	if f == nil {
		return 0
	}
	return len(f.values)
}

// Chain consults each source in order and returns the first hit.
type Chain []Properties

// Get returns the first value found for key.
func (c Chain) Get(key string) (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if v, ok := p.Get(key); ok {
			return v, true
		}
	}
	return "", false
}

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "EXTANIM"

// LoadProperties returns the standard property chain: environment overrides
// first, then the property file at path (the default location when empty).
func LoadProperties(path string) (Properties, error) {
	if path == "" {
		p, err := PropertiesPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get properties path: %w", err)
		}
		path = p
	}

	file, err := LoadFileProperties(path)
	if err != nil {
		return nil, err
	}
	return Chain{EnvProperties{Prefix: EnvPrefix}, file}, nil
}
