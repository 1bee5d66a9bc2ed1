// Package command runs build actions and records their output in per-node
// log files under <sandbox>/logs.
package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/yamake/pkg/engine"
)

// Run executes cmd with its stdout and stderr captured in the target's log
// files. The rendered command line is written first to both. It returns true
// if the process exited with status zero.
func Run(ctx context.Context, sandbox, target string, cmd *exec.Cmd) bool {
	logger := zerolog.Ctx(ctx).With().Str("target", target).Logger()
	line := Render(cmd)

	stdout, stderr, err := openLogs(sandbox, target, line)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open build logs")
		return false
	}
	defer stdout.Close()
	defer stderr.Close()

	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	logger.Debug().Str("command", line).Msg("Running command")
	err = cmd.Run()
	duration := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Warn().
				Int("exit_code", exitErr.ExitCode()).
				Dur("duration", duration).
				Str("stderr", stderr.Name()).
				Msg("Command failed")
		} else {
			logger.Error().Err(err).Str("command", line).Msg("Failed to execute command")
		}
		return false
	}

	logger.Debug().Dur("duration", duration).Msg("Command finished")
	return true
}

// Record writes the logs of a build performed in-process. description takes
// the place of the command line.
func Record(sandbox, target, description string, stdout, stderr []byte) bool {
	out, errFile, err := openLogs(sandbox, target, description)
	if err != nil {
		return false
	}
	defer errFile.Close()
	defer out.Close()

	if _, err := out.Write(stdout); err != nil {
		return false
	}
	if _, err := errFile.Write(stderr); err != nil {
		return false
	}
	return true
}

// Render formats a command line for logs. Arguments containing spaces are quoted.
func Render(cmd *exec.Cmd) string {
	args := make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			args[i] = fmt.Sprintf("%q", a)
		} else {
			args[i] = a
		}
	}
	return strings.Join(args, " ")
}

// openLogs creates both log files with header as their first line.
func openLogs(sandbox, target, header string) (*os.File, *os.File, error) {
	stdoutPath, stderrPath := engine.LogPaths(sandbox, target)
	if err := os.MkdirAll(filepath.Dir(stdoutPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	stdout, err := createLog(stdoutPath, header)
	if err != nil {
		return nil, nil, err
	}
	stderr, err := createLog(stderrPath, header)
	if err != nil {
		stdout.Close()
		return nil, nil, err
	}
	return stdout, stderr, nil
}

func createLog(path, header string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log %s: %w", path, err)
	}
	if _, err := f.WriteString(header + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write log %s: %w", path, err)
	}
	return f, nil
}
