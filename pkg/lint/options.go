package lint

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// SettingsValidator is implemented by family settings that need checks
// beyond type decoding.
type SettingsValidator interface {
	Validate() error
}

// DecodeSettings decodes a raw [settings] table into a copy of defaults.
// Keys absent from settings keep their default value. Unknown keys are
// ignored because some keys (e.g. case_insensitive) are read by the engine.
// The result is validated when it implements SettingsValidator.
func DecodeSettings[T any](settings map[string]any, defaults T) (T, error) {
	out := defaults
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "settings",
		WeaklyTypedInput: true,
		ZeroFields:       false,
	})
	if err != nil {
		return defaults, err
	}
	if err := dec.Decode(settings); err != nil {
		return defaults, fmt.Errorf("invalid settings: %w", err)
	}
	if v, ok := any(&out).(SettingsValidator); ok {
		if err := v.Validate(); err != nil {
			return defaults, fmt.Errorf("invalid settings: %w", err)
		}
	}
	return out, nil
}

// GetBoolSetting extracts a bool setting, tolerating string forms.
func GetBoolSetting(settings map[string]any, key string, defaultVal bool) bool {
	if settings == nil {
		return defaultVal
	}
	switch v := settings[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes" || v == "1"
	default:
		return defaultVal
	}
}
