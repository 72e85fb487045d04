// Package config loads the host tool's settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"rtc64/host/serial"
	"rtc64/rtc"
	"rtc64/rtc/joybusrtc"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// DefaultPath is read when no path is given.
const DefaultPath = "rtc64.toml"

// Values are the settings. Zero values in the file keep the defaults.
type Values struct {
	Device        string `toml:"device" validate:"required_without=Simulate"`
	Baud          int    `toml:"baud" validate:"gte=0,lte=4000000"`
	ReadTimeoutMs int    `toml:"read_timeout_ms" validate:"gte=0,lte=10000"`
	Cart          string `toml:"cart" validate:"cart"`
	SettleMs      uint32 `toml:"settle_ms" validate:"lte=1000"`
	Debug         bool   `toml:"debug"`
	Source        string `toml:"source" validate:"omitempty,source"`
	Simulate      bool   `toml:"simulate"`
}

// Defaults returns the built-in settings.
func Defaults() Values {
	return Values{
		Baud:          serial.DefaultBaud,
		ReadTimeoutMs: 100,
		Cart:          joybusrtc.CartUnknown.String(),
		SettleMs:      joybusrtc.DefaultSettleMs,
	}
}

// SerialConfig converts the port settings.
func (v Values) SerialConfig() *serial.Config {
	return &serial.Config{Device: v.Device, Baud: v.Baud, ReadTimeout: v.ReadTimeoutMs}
}

// CartType returns the parsed cart setting. Validate has already rejected
// unknown names.
func (v Values) CartType() joybusrtc.CartType {
	c, _ := joybusrtc.ParseCartType(v.Cart)
	return c
}

// PreferredSource returns the configured source and whether one was set.
func (v Values) PreferredSource() (rtc.Source, bool) {
	if v.Source == "" {
		return rtc.SourceNone, false
	}
	src, err := rtc.ParseSource(v.Source)
	return src, err == nil
}

var validate = mustValidator()

func mustValidator() *validator.Validate {
	v, err := newValidator()
	if err != nil {
		panic(err)
	}
	return v
}

func newValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	rules := map[string]validator.Func{
		"cart": func(fl validator.FieldLevel) bool {
			_, err := joybusrtc.ParseCartType(fl.Field().String())
			return err == nil
		},
		"source": func(fl validator.FieldLevel) bool {
			_, err := rtc.ParseSource(fl.Field().String())
			return err == nil
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("register %s rule: %w", tag, err)
		}
	}
	return v, nil
}

// Validate checks v against the field rules.
func (v Values) Validate() error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Load reads path from fs on top of the defaults. A missing file is not an
// error; the defaults are returned after validation.
func Load(fs afero.Fs, path string) (Values, error) {
	vals := Defaults()
	data, err := afero.ReadFile(fs, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return vals, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &vals); err != nil {
			return vals, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return vals, vals.Validate()
}

// Save writes v to path as TOML.
func Save(fs afero.Fs, path string, v Values) error {
	if err := v.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(&v)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
