package builtin

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/plugin"
)

func init() {
	plugin.RegisterFactory("builtin/exec", func() plugin.Plugin { return &Exec{} })
}

// Exec runs an external command, nagios-style: exit code 0 is success,
// anything else is a check failure with the command output as detail.
type Exec struct{}

func (e *Exec) Name() string { return "exec" }

func (e *Exec) Schema() check.ParamSchema {
	return check.ParamSchema{Fields: []check.ParamField{
		{Name: "args", Type: check.ParamString},
		{Name: "output_limit", Type: check.ParamInt, Default: 4096},
	}}
}

func (e *Exec) Run(ctx context.Context, target string, params map[string]any) (any, error) {
	var argv []string
	if args := stringParam(params, "args", ""); args != "" {
		argv = strings.Fields(args)
	}

	cmd := exec.CommandContext(ctx, target, argv...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	limit := intParam(params, "output_limit", 4096)
	output := out.String()
	if len(output) > limit {
		output = output[:limit]
	}

	value := map[string]any{
		"output":      output,
		"duration_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			value["exit_code"] = exitErr.ExitCode()
			return value, check.Failuref("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(output))
		}
		return nil, err
	}
	value["exit_code"] = 0
	return value, nil
}
