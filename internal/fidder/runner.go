// Package fidder invokes the external fidder program that predicts fiducial masks and
// erases the masked pixels.
package fidder

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/askiada/go-fidder/internal/gpu"
)

// DefaultBinary is the fidder executable name.
const DefaultBinary = "fidder"

// Runner runs the two fidder subcommands.
type Runner interface {
	Predict(ctx context.Context, req PredictRequest) error
	Erase(ctx context.Context, req EraseRequest) error
}

// ExecError is returned when the fidder process fails.
type ExecError struct {
	Args   []string
	Output string
	Err    error
}

func (e *ExecError) Error() string {
	return "fidder " + strings.Join(e.Args, " ") + ": " + e.Err.Error() + ": " + strings.TrimSpace(e.Output)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Command runs fidder as a child process.
//
// When Activation is set, the process is started through bash so that the activation
// command (usually a conda activation) runs first. CUDA_VISIBLE_DEVICES is set from the
// device held by the step.
type Command struct {
	Binary     string
	Activation string
	CudaLib    string
	Logger     *zap.SugaredLogger
}

// Predict implements Runner.
func (c *Command) Predict(ctx context.Context, req PredictRequest) error {
	return c.run(ctx, req.Args())
}

// Erase implements Runner.
func (c *Command) Erase(ctx context.Context, req EraseRequest) error {
	return c.run(ctx, req.Args())
}

func (c *Command) binary() string {
	if c.Binary == "" {
		return DefaultBinary
	}

	return c.Binary
}

// command builds the fidder process. With an activation, the binary and its arguments are
// handed to bash as positional parameters, so paths are never parsed by the shell.
func (c *Command) command(ctx context.Context, args []string) *exec.Cmd {
	device, ok := gpu.DeviceFromContext(ctx)
	if !ok {
		device = "0"
	}

	var cmd *exec.Cmd
	if c.Activation == "" {
		cmd = exec.CommandContext(ctx, c.binary(), args...)
	} else {
		script := c.Activation + ` && exec "$0" "$@"`
		cmd = exec.CommandContext(ctx, "bash", append([]string{"-c", script, c.binary()}, args...)...)
	}
	cmd.Env = append(Environ(os.Environ(), c.CudaLib), "CUDA_VISIBLE_DEVICES="+device)

	return cmd
}

func (c *Command) run(ctx context.Context, args []string) error {
	cmd := c.command(ctx, args)
	if c.Logger != nil {
		c.Logger.Debugf("running %s", strings.Join(cmd.Args, " "))
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return &ExecError{Args: args, Output: string(out), Err: err}
	}

	return nil
}

// Environ prepares the environment of the fidder process: PYTHONPATH is dropped so the
// virtual environment resolves its own packages, and cudaLib is prepended to LD_LIBRARY_PATH.
func Environ(base []string, cudaLib string) []string {
	env := make([]string, 0, len(base)+1)
	libPath := ""
	for _, kv := range base {
		switch {
		case strings.HasPrefix(kv, "PYTHONPATH="):
			continue
		case strings.HasPrefix(kv, "LD_LIBRARY_PATH="):
			libPath = strings.TrimPrefix(kv, "LD_LIBRARY_PATH=")
			continue
		}
		env = append(env, kv)
	}

	if cudaLib != "" {
		if libPath == "" {
			libPath = cudaLib
		} else {
			libPath = cudaLib + ":" + libPath
		}
	}
	if libPath != "" {
		env = append(env, "LD_LIBRARY_PATH="+libPath)
	}

	return env
}

var _ Runner = (*Command)(nil)
