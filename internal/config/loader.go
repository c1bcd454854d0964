package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// PluginDirsEnv may hold a colon-delimited list of additional plugin
// directories; entries append after the configured ones, so the
// environment wins directory precedence.
const PluginDirsEnv = "ZMON_PLUGINS"

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.env", "production")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.sample_ratio", 0.1)

	v.SetDefault("sched.tick", "1s")
	v.SetDefault("sched.metrics_addr", ":8080")

	v.SetDefault("pool.workers", 16)
	v.SetDefault("pool.max_queue", 256)
	v.SetDefault("pool.max_detached", 64)

	v.SetDefault("plugins.dirs", []string{"/app/plugins"})

	v.SetDefault("sink.kind", "log")
	v.SetDefault("sink.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("sink.kafka.topic", "zmon.check.results")
	v.SetDefault("sink.http.timeout", "5s")
	v.SetDefault("sink.retry.attempts", 5)
	v.SetDefault("sink.retry.base", "200ms")
	v.SetDefault("sink.retry.max", "10s")

	v.SetEnvPrefix("zmon")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// A check that does not say "enabled: false" is enabled; zero-value
	// booleans from Unmarshal would silently disable everything.
	if raw, ok := v.Get("checks").([]any); ok {
		for i := range cfg.Checks {
			if i >= len(raw) {
				break
			}
			m, ok := raw[i].(map[string]any)
			if !ok {
				continue
			}
			if _, set := m["enabled"]; !set {
				cfg.Checks[i].Enabled = true
			}
		}
	}

	if extra := os.Getenv(PluginDirsEnv); extra != "" {
		for _, dir := range strings.Split(extra, ":") {
			if dir != "" {
				cfg.Plugins.Dirs = append(cfg.Plugins.Dirs, dir)
			}
		}
	}

	return &cfg, nil
}
