// Package config handles feature flags, property sources and daemon configuration.
package config

import "strings"

// Property keys read at startup.
const (
	PropDisableExtAnimation = "vendor.display.disable_ext_anim"
	PropAllowHDRFallback    = "vendor.display.hwc_disable_hdr"
	PropDebugLogs           = "vendor.display.qdframework_logs"
)

// FeatureConfig holds the process-wide feature flags.
// It is established once at startup and passed by value afterwards.
type FeatureConfig struct {
	SuppressExternalAnimation bool `json:"suppress_external_animation" yaml:"suppress_external_animation"`
	AllowHDRFallback          bool `json:"allow_hdr_fallback" yaml:"allow_hdr_fallback"`
	DebugLogging              bool `json:"debug_logging" yaml:"debug_logging"`
}

// LoadFeatures resolves the feature flags from props.
// Absent or malformed values resolve to false; a nil source yields all-false.
func LoadFeatures(props Properties) FeatureConfig {
	if props == nil {
		return FeatureConfig{}
	}
	return FeatureConfig{
		SuppressExternalAnimation: propBool(props, PropDisableExtAnimation),
		AllowHDRFallback:          propBool(props, PropAllowHDRFallback),
		DebugLogging:              propBool(props, PropDebugLogs),
	}
}

func propBool(props Properties, key string) bool {
	v, ok := props.Get(key)
	if !ok {
		return false
	}
	return ParseFlag(v)
}

// ParseFlag reports whether v is "1" or "true" (case-insensitive).
func ParseFlag(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}
