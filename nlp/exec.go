package nlp

import (
	"context"
	"os/exec"
	"strings"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
)

// RunBatch executes an external engine's batch command with the engine
// root as working directory and blocks until it exits. Engine output
// streams into the log line by line; a non-zero exit or failed start
// yields ErrEngineRun. There is no timeout beyond ctx cancellation, so
// a hung engine hangs the run.
func RunBatch(ctx context.Context, p *Pipeline, argv []string) error {
	if len(argv) == 0 {
		return errors.NewConfigurationError("engine %s has no command configured", p.Name())
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = p.Root()
	cmd.Stdout = &engineLogWriter{engine: p.Name(), level: "debug"}
	cmd.Stderr = &engineLogWriter{engine: p.Name(), level: "error"}

	logger.Infow("running engine batch",
		"engine", p.Name(),
		"command", strings.Join(argv, " "))

	if err := cmd.Run(); err != nil {
		return errors.Wrapf(errors.ErrEngineRun, "%s: %v", p.Name(), err)
	}
	return nil
}

// engineLogWriter forwards engine process output to the log, one line
// per entry.
type engineLogWriter struct {
	engine string
	level  string
	buf    strings.Builder
}

func (w *engineLogWriter) Write(p []byte) (n int, err error) {
	w.buf.Write(p)
	for {
		line, rest, found := strings.Cut(w.buf.String(), "\n")
		if !found {
			break
		}
		w.buf.Reset()
		w.buf.WriteString(rest)

		if line = strings.TrimSpace(line); line != "" {
			if w.level == "error" {
				logger.Errorw("engine output", "engine", w.engine, "message", line)
			} else {
				logger.Debugw("engine output", "engine", w.engine, "message", line)
			}
		}
	}
	return len(p), nil
}
