package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "MOLBAYES"

var (
	ErrConfigFileNotFound = errors.New("config: file not found")
	ErrConfigParseError   = errors.New("config: parse error")
	ErrConfigValidation   = errors.New("config: validation failed")
)

var global atomic.Pointer[Config]

// Get returns the configuration most recently produced by Load, or nil.
func Get() *Config {
	return global.Load()
}

type loadOptions struct {
	configPath  string
	searchPaths []string
	overrides   map[string]interface{}
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

// WithConfigPath reads exactly the file at path.
func WithConfigPath(path string) LoadOption {
	return func(o *loadOptions) { o.configPath = path }
}

// WithSearchPaths looks for config.yaml in each directory in turn.  A missing
// file is not an error when only search paths are given.
func WithSearchPaths(dirs ...string) LoadOption {
	return func(o *loadOptions) { o.searchPaths = append(o.searchPaths, dirs...) }
}

// WithOverrides sets keys ("model.kind") with the highest precedence, above
// environment variables.  The CLI uses this for flags.
func WithOverrides(values map[string]interface{}) LoadOption {
	return func(o *loadOptions) { o.overrides = values }
}

// newViper builds a Viper instance with YAML file type, MOLBAYES_ env prefix,
// automatic env binding and a "." → "_" key replacer, so that "cache.addr"
// resolves to MOLBAYES_CACHE_ADDR.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v)
	return v
}

// bindEnvKeys registers every known key so AutomaticEnv can see variables for
// keys absent from the file; Unmarshal only visits keys viper knows about.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"log.level", "log.format", "log.output_paths",
		"model.kind", "model.folding", "model.validation", "model.parallelism",
		"metrics.namespace", "metrics.enable_go_metrics", "metrics.textfile_path",
		"storage.enabled", "storage.endpoint", "storage.access_key", "storage.secret_key",
		"storage.use_ssl", "storage.region", "storage.bucket", "storage.prefix", "storage.connect_timeout",
		"cache.enabled", "cache.addr", "cache.username", "cache.password", "cache.db", "cache.pool_size",
		"cache.dial_timeout", "cache.read_timeout", "cache.write_timeout", "cache.ttl", "cache.key_prefix",
		"events.enabled", "events.brokers", "events.topic", "events.source", "events.acks",
		"events.max_retries", "events.batch_timeout", "events.write_timeout", "events.compression",
		"server.addr", "server.read_timeout", "server.write_timeout", "server.idle_timeout",
		"server.shutdown_timeout", "server.max_body_bytes",
	} {
		_ = v.BindEnv(key)
	}
}

// Load reads the configuration file (if any), merges MOLBAYES_* environment
// variables and overrides, applies defaults and validates the result.  The
// result is also published through Get.
func Load(opts ...LoadOption) (*Config, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	v := newViper()
	if err := readConfig(v, o); err != nil {
		return nil, err
	}
	for k, val := range o.overrides {
		v.Set(k, val)
	}

	cfg, err := unmarshalAndFinalize(v)
	if err != nil {
		return nil, err
	}
	global.Store(cfg)
	return cfg, nil
}

func readConfig(v *viper.Viper, o *loadOptions) error {
	switch {
	case o.configPath != "":
		v.SetConfigFile(o.configPath)
	case len(o.searchPaths) > 0:
		v.SetConfigName("config")
		for _, dir := range o.searchPaths {
			v.AddConfigPath(dir)
		}
	default:
		return nil
	}

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		if o.configPath == "" {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrConfigFileNotFound, o.configPath)
	}
	var parseErr viper.ConfigParseError
	if errors.As(err, &parseErr) {
		return fmt.Errorf("%w: %v", ErrConfigParseError, err)
	}
	// SetConfigFile with a missing path surfaces as an *fs.PathError.
	return fmt.Errorf("%w: %v", ErrConfigFileNotFound, err)
}

// LoadFromFile is shorthand for Load(WithConfigPath(path)).
func LoadFromFile(path string) (*Config, error) {
	return Load(WithConfigPath(path))
}

// LoadFromEnv builds a Config from MOLBAYES_* environment variables and
// defaults, with no config file:
//
//	MOLBAYES_<SECTION>_<FIELD>   e.g.  MOLBAYES_MODEL_KIND, MOLBAYES_CACHE_ADDR
func LoadFromEnv() (*Config, error) {
	return Load()
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	return cfg, nil
}

// Watch reloads configPath whenever it changes on disk and passes the new
// Config to onChange.  Invalid intermediate states are skipped.  Watch is
// non-blocking; the watcher goroutine is owned by viper.
func Watch(configPath string, onChange func(*Config)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigFileNotFound, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		global.Store(cfg)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad is Load that panics on error, for main().
func MustLoad(opts ...LoadOption) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
