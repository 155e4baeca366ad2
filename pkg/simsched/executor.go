package simsched

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSubmission is wrapped by the outcome of a configuration whose job could not be launched
	ErrSubmission = errors.New("job submission failed")
	// ErrJobFailed is wrapped by the outcome of a job which ran but did not complete successfully
	ErrJobFailed = errors.New("job failed")
)

// Status is the terminal state of a job
type Status int

const (
	Succeeded Status = iota
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the terminal result of one job. Err is nil if and only if the job succeeded.
type Outcome struct {
	Status Status
	Err    error
}

// Success returns the outcome of a successful job
func Success() Outcome {
	return Outcome{Status: Succeeded}
}

// JobFailed returns the outcome of a job which ran but failed for the given reason
func JobFailed(reason error) Outcome {
	return Outcome{Status: Failed, Err: errors.Join(ErrJobFailed, reason)}
}

// SubmissionFailed returns the outcome of a job which could not be launched
func SubmissionFailed(reason error) Outcome {
	return Outcome{Status: Failed, Err: errors.Join(ErrSubmission, reason)}
}

// OK reports whether the job succeeded
func (o Outcome) OK() bool {
	return o.Status == Succeeded
}

// JobHandle represents one job which has been launched and not yet awaited
type JobHandle interface {
	// Wait blocks until the job reached a terminal state and returns its outcome.
	// Wait gets called exactly once per handle.
	Wait(ctx context.Context) Outcome
}

// JobExecutor materializes a [RunConfiguration] into a running workload
type JobExecutor interface {
	// Start launches the job of the given configuration.
	// A returned error means the job could not be launched at all.
	Start(ctx context.Context, config RunConfiguration) (JobHandle, error)
}

// Request is an approved simulation request
type Request struct {
	IssueID int
	Body    string
}

// Credentials authenticate against the issue tracker
type Credentials struct {
	Token string
}

// Discoverer finds an approved simulation request in an issue tracker.
// Deciding whether a request is approved is entirely up to the Discoverer.
type Discoverer interface {
	// FindApprovedRequest returns the first approved request of a repository.
	// The returned bool is false if there is none.
	FindApprovedRequest(ctx context.Context, repo string, creds Credentials) (Request, bool, error)
}
