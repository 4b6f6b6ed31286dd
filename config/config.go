// Package config applies defaults, merges feature-set-supplied values, and
// validates plugin and service configuration structs. Prepare is the only
// entry point a host needs — it combines all three steps behind one call so
// a plugin author's Config struct is always fully populated and validated
// before the plugin's Initialize runs.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	registerCustomValidators()
}

// Prepare combines default application, raw-value merging, and validation
// into one call. config must be a pointer to a struct; raw holds the values
// a feature set declared for this plugin/service in its descriptor, keyed
// by the struct's yaml tags.
func Prepare(config any, raw map[string]any) error {
	if err := ApplyDefaults(config); err != nil {
		slog.Error("config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("apply defaults: %w", err)
	}

	if len(raw) > 0 {
		if err := mergeRaw(raw, config); err != nil {
			slog.Error("config: failed to merge values",
				"config_type", reflect.TypeOf(config).String(),
				"raw", raw,
				"error", err)
			return fmt.Errorf("merge values: %w", err)
		}
	}

	value := reflect.ValueOf(config)
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}

	if err := validateConfig(value.Interface()); err != nil {
		slog.Error("config: validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("validate: %w", err)
	}

	return nil
}

// ApplyDefaults sets struct-tagged default values via creasty/defaults.
func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config: cannot be nil")
	}
	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("config: apply defaults: %w", err)
	}
	return nil
}

// mergeRaw decodes raw (keyed by yaml tag, the convention every descriptor
// in a feature-set bundle uses for plugin/service config blocks) onto the
// already-defaulted config struct, overwriting only the keys raw supplies.
func mergeRaw(raw map[string]any, config any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           config,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("config: build decoder: %w", err)
	}
	return decoder.Decode(raw)
}

func validateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("config: cannot be nil")
	}
	if err := validate.Struct(config); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			messages := make([]string, 0, len(validationErrors))
			for _, fieldErr := range validationErrors {
				messages = append(messages, fmt.Sprintf(
					"field '%s' failed validation: %s (rule: %s)",
					fieldErr.Field(), fieldErr.Error(), fieldErr.Tag(),
				))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(messages, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// RegisterCustomValidator exposes the underlying validator's registration
// hook so a plugin can add a domain-specific validation tag before Prepare
// runs against its Config struct.
func RegisterCustomValidator(tag string, fn validator.Func) error {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("config: register validator %q: %w", tag, err)
	}
	return nil
}

func registerCustomValidators() {
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		host, port, err := net.SplitHostPort(addr)
		if err != nil || host == "" || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})

	validate.RegisterValidation("dsn", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if strings.Contains(s, "://") {
			_, err := url.Parse(s)
			return err == nil
		}
		return strings.Contains(s, "@") && strings.Contains(s, "/")
	})
}
