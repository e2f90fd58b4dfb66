package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/logging"
)

var Module = fx.Module("config",
	fx.Provide(
		New,
	),
)

type Params struct {
	fx.In

	Logger *logging.Logger
}

type Result struct {
	fx.Out

	Viper *viper.Viper
}

var validate = validator.New()

func New(p Params) (Result, error) {
	log := p.Logger.GetLogger("config")
	v := viper.New()

	v.SetEnvPrefix("seraph")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Info("no configuration file found")
		} else {
			log.Error("error reading config file", "error", err)
			return Result{}, err
		}
	} else {
		log.Info("loaded configuration file", "file", v.ConfigFileUsed())
	}

	p.Logger.SetConsole(v.GetBool("log.console"))
	if err := p.Logger.SetLevelName(v.GetString("log.level")); err != nil {
		return Result{}, err
	}

	return Result{
		Viper: v,
	}, nil
}

// Unmarshal decodes the section at key into cfg and validates it using the
// `validate` struct tags. Durations may be given as strings ("2s").
// Defaults, config file, environment and overrides are merged per key.
func Unmarshal(v *viper.Viper, key string, cfg any) error {
	var section any = v.AllSettings()
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, _ := section.(map[string]any)
		section = m[part]
	}
	if section == nil {
		section = map[string]any{}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(section); err != nil {
		return fmt.Errorf("while decoding configuration %q: %w", key, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(key, err)
	}
	return nil
}

func formatValidationError(key string, err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: %s: validation failed on '%s' tag (value: %v)",
			key, e.Namespace(), e.Tag(), e.Value())
	}
	return fmt.Errorf("%s: %w", key, err)
}
