package deploy

import (
	"context"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vacp2p/simsched/pkg/simsched"
)

// CommandRunner runs external commands
type CommandRunner interface {
	// Run runs name with args in dir and returns its combined output.
	// An empty dir runs the command in the present working directory.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as child processes
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// asyncHandle is the handle of a job whose remaining lifetime is handled by a goroutine
type asyncHandle struct {
	done chan simsched.Outcome
}

func newAsyncHandle() *asyncHandle {
	return &asyncHandle{done: make(chan simsched.Outcome, 1)}
}

// Wait blocks until the job's goroutine reported the outcome.
// The goroutine observes cancellation itself, so cleanup always finishes before Wait returns.
func (h *asyncHandle) Wait(ctx context.Context) simsched.Outcome {
	return <-h.done
}

// runFor blocks for the given amount of minutes, logging the progress every minute.
// minute is the length of one minute, which is only ever shortened in tests.
func runFor(ctx context.Context, log *logrus.Entry, minutes int, minute time.Duration) error {
	if minute <= 0 {
		minute = time.Minute
	}
	log.Infof("Waiting for %d minutes...", minutes)

	ticker := time.NewTicker(minute)
	defer ticker.Stop()
	for elapsed := 0; elapsed < minutes; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			elapsed++
			log.Infof("Progress: %d/%d minutes elapsed", elapsed, minutes)
		}
	}
	return nil
}
