// Package config loads the service configuration from built-in defaults, an
// optional YAML file and XRKCONV_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "XRKCONV_"

// PathEnv names the variable that points at the config file when --config is not given.
const PathEnv = EnvPrefix + "CONFIG"

// Config is the full service configuration.
type Config struct {
	Listen         string        `mapstructure:"listen"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	Timeout        time.Duration `mapstructure:"timeout"`

	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Executable ExecutableConfig `mapstructure:"executable"`
	Results    ResultsConfig    `mapstructure:"results"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
}

type WorkspaceConfig struct {
	Root         string        `mapstructure:"root"`
	OutputDir    string        `mapstructure:"output_dir"`
	SweepOnStart bool          `mapstructure:"sweep_on_start"`
	MinAge       time.Duration `mapstructure:"min_age"`
}

// RuntimeConfig locates the native runtime the converter links against.
// Empty SearchVar and Paths fall back to per-OS defaults.
type RuntimeConfig struct {
	Root      string            `mapstructure:"root"`
	SearchVar string            `mapstructure:"search_var"`
	Paths     []string          `mapstructure:"paths"`
	Env       map[string]string `mapstructure:"env"`
}

// ExecutableConfig describes the converter and the support files staged next to it.
type ExecutableConfig struct {
	Root   string   `mapstructure:"root"`
	Path   string   `mapstructure:"path"`
	Args   []string `mapstructure:"args"`
	Assets []string `mapstructure:"assets"`
}

type ResultsConfig struct {
	Dir string `mapstructure:"dir"`
}

// RedisConfig enables the shared session registry when Addr is set.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Prefix     string        `mapstructure:"prefix"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func defaults() map[string]any {
	return map[string]any{
		"listen":           ":5000",
		"max_upload_bytes": int64(100 << 20),
		"max_concurrent":   runtime.NumCPU(),
		"timeout":          "10m",
		"workspace": map[string]any{
			"root":           "tmp",
			"output_dir":     "data",
			"sweep_on_start": true,
			"min_age":        "0s",
		},
		"runtime": map[string]any{
			"env": map[string]any{
				"MCR_CACHE_ROOT": "{workspace}/.mcrCache",
			},
		},
		"executable": map[string]any{
			"path": "matlab",
			"args": []any{"-batch", "main"},
		},
		"redis": map[string]any{
			"prefix":      "xrkconv:",
			"session_ttl": "1h",
		},
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
	}
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	cfg, err := decode(defaults())
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Load resolves the configuration. An empty path skips the file layer.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	raw := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		var file map[string]any
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		merge(raw, file)
	}

	for _, key := range keys(reflect.TypeOf(Config{}), nil) {
		name := EnvPrefix + strings.ToUpper(strings.Join(key, "_"))
		if v, ok := lookup(name); ok {
			set(raw, key, v)
		}
	}

	cfg, err := decode(raw)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(raw map[string]any) (Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToPairsHook,
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// stringToPairsHook lets map values be given as "K=V,K2=V2" in the environment.
func stringToPairsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Map {
		return data, nil
	}
	out := map[string]any{}
	s := data.(string)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed pair %q", pair)
		}
		out[k] = v
	}
	return out, nil
}

// keys lists every leaf key path of t by its mapstructure tags.
func keys(t reflect.Type, prefix []string) [][]string {
	var out [][]string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		path := append(append([]string{}, prefix...), f.Tag.Get("mapstructure"))
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			out = append(out, keys(f.Type, path)...)
			continue
		}
		out = append(out, path)
	}
	return out
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		sub, isMap := v.(map[string]any)
		cur, curIsMap := dst[k].(map[string]any)
		if isMap && curIsMap {
			merge(cur, sub)
			continue
		}
		dst[k] = v
	}
}

func set(raw map[string]any, path []string, value string) {
	m := raw
	for _, k := range path[:len(path)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Executable.Path == "" {
		errs = append(errs, errors.New("executable.path is required"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max_upload_bytes must be positive"))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("max_concurrent must be positive"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.Workspace.Root == "" {
		errs = append(errs, errors.New("workspace.root is required"))
	}
	if c.Workspace.OutputDir == "" {
		errs = append(errs, errors.New("workspace.output_dir is required"))
	}
	if c.Workspace.MinAge < 0 {
		errs = append(errs, errors.New("workspace.min_age must not be negative"))
	}
	// A registration must outlive the conversion it protects.
	if c.Redis.Addr != "" && c.Redis.SessionTTL > 0 && c.Redis.SessionTTL < c.Timeout {
		errs = append(errs, fmt.Errorf("redis.session_ttl (%s) must be at least timeout (%s)", c.Redis.SessionTTL, c.Timeout))
	}
	return errors.Join(errs...)
}

// EnvNames lists every recognized override variable, sorted.
func EnvNames() []string {
	var names []string
	for _, key := range keys(reflect.TypeOf(Config{}), nil) {
		names = append(names, EnvPrefix+strings.ToUpper(strings.Join(key, "_")))
	}
	sort.Strings(names)
	return names
}
