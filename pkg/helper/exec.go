package helper

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/whitekid/goxp/log"
)

var (
	loggerExec = log.New(log.AddCallerSkip(1))
)

func Execute(command ...string) *Executer { return &Executer{command: command} }

type Executer struct {
	shell   bool
	command []string
	dir     string
	timeout time.Duration
}

func (exc *Executer) Shell() *Executer                  { exc.shell = true; return exc }
func (exc *Executer) NoShell() *Executer                { exc.shell = false; return exc }
func (exc *Executer) Dir(dir string) *Executer          { exc.dir = dir; return exc }
func (exc *Executer) Timeout(d time.Duration) *Executer { exc.timeout = d; return exc }
func (exc *Executer) String() string                    { return strings.Join(exc.command, " ") }

func (exc *Executer) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if exc.timeout > 0 {
		return context.WithTimeout(ctx, exc.timeout)
	}
	return context.WithCancel(ctx)
}

// ExecError command failed; Stderr keeps what the command printed
type ExecError struct {
	Command string
	Stderr  []byte
	Err     error
}

func (e *ExecError) Error() string { return fmt.Sprintf("%s: %v", e.Command, e.Err) }
func (e *ExecError) Unwrap() error { return e.Err }

func (exc *Executer) buildCmd(ctx context.Context) *exec.Cmd {
	var name string
	var args []string

	if exc.shell {
		name = "sh"
		args = append([]string{"-c"}, exc.command...)
	} else if len(exc.command) > 0 {
		name = exc.command[0]

		if len(exc.command) > 1 {
			args = exc.command[1:]
		} else {
			args = nil
		}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = exc.dir

	return cmd
}

// Do execute command and discard stdout
func (exc *Executer) Do(ctx context.Context) error {
	_, err := exc.Output(ctx)
	return err
}

// Output run command and return stdout
func (exc *Executer) Output(ctx context.Context) ([]byte, error) {
	if len(exc.command) == 0 {
		return nil, &ExecError{Err: exec.ErrNotFound}
	}

	dir := exc.dir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	loggerExec.Debugf("execute: %s", exc)
	loggerExec.Debugf("dir: %s", dir)

	ctx, cancel := exc.context(ctx)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exc.buildCmd(ctx)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}

		return nil, &ExecError{
			Command: exc.command[0],
			Stderr:  stderr.Bytes(),
			Err:     err,
		}
	}

	return stdout.Bytes(), nil
}
