package config

import (
	"time"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/obs"
)

type LogCfg struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	Env    string `mapstructure:"env"`
}

func (c LogCfg) AsLoggerConfig(version string) obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Level,
		Pretty: c.Pretty,
		App:    "zmon-worker",
		Env:    c.Env,
		Ver:    version,
	}
}

type OTELCfg struct {
	Enable      bool    `mapstructure:"enable"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func (c OTELCfg) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      c.Enable,
		Endpoint:    c.Endpoint,
		ServiceName: "zmon-worker",
		SampleRatio: c.SampleRatio,
	}
}

type SchedCfg struct {
	Tick        time.Duration `mapstructure:"tick"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

type PoolCfg struct {
	Workers     int `mapstructure:"workers"`
	MaxQueue    int `mapstructure:"max_queue"`
	MaxDetached int `mapstructure:"max_detached"`
}

type PluginsCfg struct {
	Dirs []string `mapstructure:"dirs"`
}

type KafkaSinkCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type HTTPSinkCfg struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RetryCfg struct {
	Attempts int           `mapstructure:"attempts"`
	Base     time.Duration `mapstructure:"base"`
	Max      time.Duration `mapstructure:"max"`
}

type SinkCfg struct {
	Kind  string       `mapstructure:"kind"` // kafka, http or log
	Kafka KafkaSinkCfg `mapstructure:"kafka"`
	HTTP  HTTPSinkCfg  `mapstructure:"http"`
	Retry RetryCfg     `mapstructure:"retry"`
}

type Config struct {
	Log     LogCfg             `mapstructure:"log"`
	OTEL    OTELCfg            `mapstructure:"otel"`
	Sched   SchedCfg           `mapstructure:"sched"`
	Pool    PoolCfg            `mapstructure:"pool"`
	Plugins PluginsCfg         `mapstructure:"plugins"`
	Sink    SinkCfg            `mapstructure:"sink"`
	Checks  []check.Definition `mapstructure:"checks"`
}
