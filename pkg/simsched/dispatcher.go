package simsched

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// Result is the terminal outcome of one configuration of a matrix
type Result struct {
	Index   int
	IssueID int
	Config  RunConfiguration
	Outcome Outcome
}

// slot is one job which was started and has not been awaited yet
type slot struct {
	index  int
	handle JobHandle
}

// Dispatcher runs a [Matrix] with a bounded amount of simultaneously active jobs.
//
// Jobs are started in matrix order. Once the limit is reached, the dispatcher waits for the oldest
// active job to finish before starting the next one, even if a younger job finished first.
// This keeps start order and slot release order identical at the cost of throughput compared to a
// pool which refills a slot as soon as any job finishes.
type Dispatcher struct {
	Log *logrus.Logger // The log to which information gets printed to
}

// Dispatch starts every configuration of matrix through executor with at most limit jobs active at once.
// A limit below 1 is treated as 1.
// The returned results hold exactly one entry per configuration, ordered like the matrix.
// Failing jobs do not stop the remaining configurations from running.
func (d *Dispatcher) Dispatch(ctx context.Context, matrix Matrix, limit int, executor JobExecutor) []Result {
	log := d.Log
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	if limit < 1 {
		log.Warnf("Parallel limit %d is not positive, running one job at a time", limit)
		limit = 1
	}

	results := make([]Result, len(matrix))
	for i, config := range matrix {
		results[i] = Result{
			Index:   config.Index,
			IssueID: config.IssueID,
			Config:  config,
		}
	}

	// Only this goroutine touches active
	var active []slot
	awaitOldest := func() {
		head := active[0]
		active = active[1:]
		outcome := head.handle.Wait(ctx)
		results[head.index].Outcome = outcome

		entry := log.WithField("config-index", results[head.index].Index)
		if outcome.OK() {
			entry.Info("Job succeeded")
		} else {
			entry.Warnf("Job failed - %v", outcome.Err)
		}
	}

	for i, config := range matrix {
		for len(active) >= limit {
			awaitOldest()
		}

		entry := log.WithField("config-index", config.Index)
		entry.Infof("Starting job with %d nodes for %d minutes", config.NodeCount, config.Duration)

		handle, err := executor.Start(ctx, config)
		if err == nil && handle == nil {
			err = errors.New("executor returned no job handle")
		}
		if err != nil {
			entry.Warnf("Failed to start job - %v", err)
			results[i].Outcome = SubmissionFailed(err)
			continue
		}
		active = append(active, slot{index: i, handle: handle})
		entry.Debugf("Job started, %d of %d slots in use", len(active), limit)
	}

	log.Debugf("All jobs started, waiting for %d remaining jobs", len(active))
	for len(active) > 0 {
		awaitOldest()
	}

	return results
}
