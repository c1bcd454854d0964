package check

import (
	"time"
)

// Definition describes one schedulable monitoring task. Definitions are
// owned by configuration and replaced wholesale on reload, never mutated.
type Definition struct {
	ID       string         `json:"id" mapstructure:"id"`
	Type     string         `json:"type" mapstructure:"type"`
	Target   string         `json:"target" mapstructure:"target"`
	Params   map[string]any `json:"params" mapstructure:"params"`
	Interval time.Duration  `json:"interval" mapstructure:"interval"`
	Timeout  time.Duration  `json:"timeout" mapstructure:"timeout"`
	Jitter   float64        `json:"jitter" mapstructure:"jitter"`
	Enabled  bool           `json:"enabled" mapstructure:"enabled"`
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Result is the single record shape every execution produces, regardless
// of check type.
type Result struct {
	CheckID    string    `json:"check_id"`
	Type       string    `json:"type"`
	StartedAt  time.Time `json:"ts_start"`
	FinishedAt time.Time `json:"ts_end"`
	Status     Status    `json:"status"`
	Value      any       `json:"value,omitempty"`
	Error      string    `json:"error,omitempty"`
	Worker     int       `json:"worker"`
}

func (r Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
