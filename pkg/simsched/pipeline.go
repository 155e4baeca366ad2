package simsched

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Summary is the result of one pipeline run
type Summary struct {
	Found   bool // Whether an approved request was found
	IssueID int  // The issue of the approved request, if one was found

	Results []Result // One result per configuration, in matrix order

	DiscoveryErr error // The error encountered while looking for an approved request, if any
}

// Failed returns the results of all jobs which did not succeed
func (s Summary) Failed() []Result {
	var failed []Result
	for _, r := range s.Results {
		if !r.Outcome.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err combines the discovery error and the errors of all failed jobs. It is nil if nothing failed.
func (s Summary) Err() error {
	var result *multierror.Error
	if s.DiscoveryErr != nil {
		result = multierror.Append(result, fmt.Errorf("discovery: %w", s.DiscoveryErr))
	}
	for _, r := range s.Failed() {
		result = multierror.Append(result, fmt.Errorf("configuration %d (%s): %w", r.Index, r.Config.ReleaseName(), r.Outcome.Err))
	}
	return result.ErrorOrNil()
}

// A Pipeline turns the approved request of a repository into simulation runs.
type Pipeline struct {
	Discoverer Discoverer  // Finds the approved request
	Executor   JobExecutor // Runs the single configurations

	Log *logrus.Logger // The log to which information gets printed to
}

// Run looks for an approved request in repo and, if there is one, runs every configuration it asks for.
// Run executes once; it never retries discovery.
func (p *Pipeline) Run(ctx context.Context, repo string, creds Credentials) Summary {
	log := p.Log
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	req, found, err := p.Discoverer.FindApprovedRequest(ctx, repo, creds)
	if err != nil {
		log.Errorf("Failed to look for approved requests in %s - %v", repo, err)
		return Summary{DiscoveryErr: err}
	}
	if !found {
		log.Infof("No approved request found in %s", repo)
		return Summary{}
	}

	log.Infof("Found approved request in issue %d", req.IssueID)

	params := ParseForm(req.Body)
	matrix := (&Expander{Log: log}).Expand(params, req.IssueID)

	limit := matrix.ParallelLimit()
	log.Infof("Running %d configurations with a parallelism limit of %d", len(matrix), limit)

	results := (&Dispatcher{Log: log}).Dispatch(ctx, matrix, limit, p.Executor)

	return Summary{
		Found:   true,
		IssueID: req.IssueID,
		Results: results,
	}
}
