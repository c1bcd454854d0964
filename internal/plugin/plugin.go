package plugin

import (
	"context"

	"github.com/pheanex/zmon-worker/internal/domain/check"
)

// Plugin is the closed contract every check type implements. Run executes
// one probe against target under ctx's deadline. Cancellable plugins honor
// ctx; the pool detaches the rest on timeout.
type Plugin interface {
	Name() string
	Schema() check.ParamSchema
	Run(ctx context.Context, target string, params map[string]any) (any, error)
}

// Factory builds a plugin instance from its manifest. Builtin check types
// register factories at init; manifests resolve entrypoints against them.
type Factory func() Plugin

// Descriptor is one loaded check type: manifest metadata plus the resolved
// implementation. Immutable for a process generation.
type Descriptor struct {
	Name    string
	Version string
	Source  string // manifest file the descriptor was loaded from
	Schema  check.ParamSchema
	Impl    Plugin
}

// Manifest is the on-disk shape of a *.plugin.json file in a plugin
// directory.
type Manifest struct {
	Name       string            `json:"name"`
	Entrypoint string            `json:"entrypoint"`
	Version    string            `json:"version"`
	Params     check.ParamSchema `json:"params"`
}
