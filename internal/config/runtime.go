package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
)

// RuntimeConfig is the ambient/operational tier: settings an operator may
// want to tune without a restart. It never carries credentials — those
// live only in Topology.
type RuntimeConfig struct {
	LogLevel string      `mapstructure:"log_level" toml:"log_level"`
	Trace    TraceConfig `mapstructure:"trace"     toml:"trace"`
}

// TraceConfig controls the optional OpenTelemetry exporter.
type TraceConfig struct {
	Exporter   string  `mapstructure:"exporter"    toml:"exporter"`    // "", "stdout", "otlp-grpc", "otlp-http"
	Endpoint   string  `mapstructure:"endpoint"    toml:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" toml:"sample_rate"`
}

func defaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		LogLevel: "info",
		Trace: TraceConfig{
			Exporter:   "",
			SampleRate: 0,
		},
	}
}

var runtimePtr atomic.Pointer[RuntimeConfig]

// Get returns the current RuntimeConfig. Safe for concurrent use; returns
// the documented defaults if LoadRuntime has not been called yet.
func Get() *RuntimeConfig {
	if c := runtimePtr.Load(); c != nil {
		return c
	}
	d := defaultRuntimeConfig()
	runtimePtr.Store(d)
	return d
}

// candidatePaths returns, in precedence order, the TOML files LoadRuntime
// considers when explicitPath is empty.
func candidatePaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".awfirewall", "awfirewall.toml"))
	}
	paths = append(paths, "./awfirewall.toml")
	return paths
}

// LoadRuntime resolves the ambient tier: AWF_CONFIG_FILE (or the search
// path above) provides the TOML base, then AWF_LOG_LEVEL/AWF_TRACE_* env
// vars override individual fields. The file is optional; its absence is
// not an error. The resolved value is stored for Get and returned
// alongside any non-fatal issues (e.g. an invalid AWF_TRACE_SAMPLE_RATE).
func LoadRuntime(explicitPath string) (*RuntimeConfig, []string) {
	cfg := defaultRuntimeConfig()
	var is issues

	path := explicitPath
	if path == "" {
		path = os.Getenv("AWF_CONFIG_FILE")
	}
	paths := []string{path}
	if path == "" {
		paths = candidatePaths()
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			is.add("parsing config file %s: %v", p, err)
			continue
		}
		break
	}

	if err := applyRuntimeEnv(cfg, &is); err != nil {
		is.add("decoding environment overrides: %v", err)
	}

	runtimePtr.Store(cfg)
	return cfg, is
}

// applyRuntimeEnv merges present AWF_LOG_LEVEL/AWF_TRACE_* environment
// variables into cfg. Only variables actually set are collected into the
// override map, which is then decoded into cfg through mapstructure with a
// decode-hook chain (string-to-duration, comma-separated string-to-slice).
// AWF_TRACE_SAMPLE_RATE is parsed and range-checked with strconv before it
// enters the map, so it reaches the decoder as a float64.
func applyRuntimeEnv(cfg *RuntimeConfig, is *issues) error {
	overrides := map[string]any{}
	trace := map[string]any{}

	if v := strings.TrimSpace(os.Getenv("AWF_LOG_LEVEL")); v != "" {
		overrides["log_level"] = v
	}
	if v, ok := os.LookupEnv("AWF_TRACE_EXPORTER"); ok {
		trace["exporter"] = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("AWF_TRACE_ENDPOINT")); v != "" {
		trace["endpoint"] = v
	}
	if v := strings.TrimSpace(os.Getenv("AWF_TRACE_SAMPLE_RATE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			is.add("AWF_TRACE_SAMPLE_RATE=%q is invalid, using %v", v, cfg.Trace.SampleRate)
		} else {
			trace["sample_rate"] = f
		}
	}
	if len(trace) > 0 {
		overrides["trace"] = trace
	}
	if len(overrides) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result: cfg,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(overrides)
}

// WatchRuntime watches the resolved config file (if any) for changes and
// re-runs LoadRuntime on write events. onReload is invoked with the new
// value after each successful reload; it may be nil. The returned
// *fsnotify.Watcher should be closed by the caller on shutdown.
func WatchRuntime(explicitPath string, onReload func(*RuntimeConfig)) (*fsnotify.Watcher, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv("AWF_CONFIG_FILE")
	}
	if path == "" {
		for _, p := range candidatePaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		return nil, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, _ := LoadRuntime(path)
				if onReload != nil {
					onReload(cfg)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w, nil
}
