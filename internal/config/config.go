// Package config loads asmcheck settings from an optional YAML file and
// ASMCHECK_* environment variables.
package config

import (
	"os"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config is the asmcheck configuration. The jsonschema tags feed the hidden
// schema command.
type Config struct {
	Compiler       string   `json:"compiler" mapstructure:"compiler" jsonschema:"title=Compiler,description=C compiler driver used to build fragments,default=cc"`
	CompilerFlags  []string `json:"compiler_flags" mapstructure:"compiler_flags" jsonschema:"title=Compiler Flags,description=Extra flags passed to every toolchain step"`
	Language       string   `json:"language" mapstructure:"language" jsonschema:"title=Language,description=Source language passed to the driver with -x,default=c"`
	TargetMethod   string   `json:"target_method" mapstructure:"target_method" jsonschema:"title=Target Method,description=Function whose instructions are extracted,default=run"`
	TargetField    string   `json:"target_field" mapstructure:"target_field" jsonschema:"title=Target Field,description=Data object whose initializer is extracted instead of a method"`
	PrintOnExtract bool     `json:"print_on_extract" mapstructure:"print_on_extract" jsonschema:"title=Print On Extract,description=Print the selected listing after each extraction"`
	NoColor        bool     `json:"no_color" mapstructure:"no_color" jsonschema:"title=No Color,description=Disable listing colorization"`
}

// EnvPrefix prefixes every environment override, e.g. ASMCHECK_COMPILER.
const EnvPrefix = "ASMCHECK"

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "asmcheck.yaml"

func setDefaults(v *viper.Viper) {
	v.SetDefault("compiler", "cc")
	v.SetDefault("compiler_flags", []string{"-O0"})
	v.SetDefault("language", "c")
	v.SetDefault("target_method", "")
	v.SetDefault("target_field", "")
	v.SetDefault("print_on_extract", false)
	v.SetDefault("no_color", false)
}

// Load reads path, or DefaultFile when path is empty and it exists, and
// applies environment overrides on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "Read config failed: "+path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.DecodeHookFuncType(stringListHook))); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}

// stringListHook decodes []string fields through stringList.
func stringListHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}
	return stringList(data)
}

// stringList accepts a YAML list or a whitespace separated string, the form
// environment variables take.
func stringList(val any) ([]string, error) {
	if s, ok := val.(string); ok {
		return strings.Fields(s), nil
	}
	return cast.ToStringSliceE(val)
}
