package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vacp2p/simsched/pkg/simsched"
	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"
)

type label struct {
	Name string `json:"name"`
}

type issue struct {
	Number int     `json:"number"`
	Body   string  `json:"body"`
	Labels []label `json:"labels"`
}

type issueEvent struct {
	Event string `json:"event"`
	Label *label `json:"label"`
	Actor *struct {
		Login string `json:"login"`
	} `json:"actor"`
}

func (i issue) hasLabel(name string) bool {
	for _, l := range i.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

// Finder looks for simulation requests in the issues of a GitHub repository.
// An issue is approved once an authorized user has given it the approval label.
type Finder struct {
	APIURL string // The base URL of the GitHub API

	ApprovalLabel string // Label marking an issue as ready to be run
	DoneLabel     string // Label marking an issue as already run

	AuthorizedUsers []string // Logins of users allowed to approve requests. Compared case-insensitively

	LookupConcurrency int // Max amount of concurrent event lookups

	HTTPClient *http.Client // Client used if no token is passed. Defaults to http.DefaultClient

	Log *logrus.Logger // The log to which information gets printed to
}

// client returns a client which authenticates with the passed credentials
func (f *Finder) client(ctx context.Context, creds simsched.Credentials) *http.Client {
	base := f.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	if creds.Token == "" {
		return base
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token, TokenType: "token"}))
}

func (f *Finder) log() *logrus.Logger {
	if f.Log == nil {
		f.Log = logrus.New()
		f.Log.SetOutput(io.Discard)
	}
	return f.Log
}

func (f *Finder) authorized(login string) bool {
	for _, user := range f.AuthorizedUsers {
		if strings.EqualFold(user, login) {
			return true
		}
	}
	return false
}

// FindApprovedRequest returns the body of the first approved issue of repo, in the order the API lists them
func (f *Finder) FindApprovedRequest(ctx context.Context, repo string, creds simsched.Credentials) (simsched.Request, bool, error) {
	log := f.log()
	client := f.client(ctx, creds)

	var issues []issue
	found, err := f.getJSON(ctx, client, fmt.Sprintf("/repos/%s/issues", repo), &issues)
	if err != nil {
		return simsched.Request{}, false, err
	}
	if !found {
		log.Warnf("Could not list issues of %s", repo)
		return simsched.Request{}, false, nil
	}

	var candidates []issue
	for _, i := range issues {
		if i.hasLabel(f.DoneLabel) || !i.hasLabel(f.ApprovalLabel) {
			continue
		}
		candidates = append(candidates, i)
	}
	log.Debugf("Found %d candidate issues in %s", len(candidates), repo)

	limit := int64(f.LookupConcurrency)
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	// approvals[i] is closed once candidates[i] was checked
	approvals := make([]chan bool, len(candidates))
	for i := range candidates {
		approvals[i] = make(chan bool, 1)
	}

	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for i, candidate := range candidates {
			if err := sem.Acquire(lookupCtx, 1); err != nil {
				for _, c := range approvals[i:] {
					close(c)
				}
				return
			}
			go func(i int, candidate issue) {
				defer sem.Release(1)
				defer close(approvals[i])
				approved, err := f.isApproved(lookupCtx, client, repo, candidate.Number)
				if err != nil {
					log.Warnf("Failed to check approval of issue %d - %v", candidate.Number, err)
					return
				}
				approvals[i] <- approved
			}(i, candidate)
		}
	}()

	for i, candidate := range candidates {
		if <-approvals[i] {
			return simsched.Request{IssueID: candidate.Number, Body: candidate.Body}, true, nil
		}
		log.Debugf("Issue %d is not approved by an authorized user", candidate.Number)
	}

	return simsched.Request{}, false, ctx.Err()
}

// isApproved reports whether the approval label of an issue was ever added by an authorized user.
// Events are walked newest first.
func (f *Finder) isApproved(ctx context.Context, client *http.Client, repo string, number int) (bool, error) {
	var events []issueEvent
	found, err := f.getJSON(ctx, client, fmt.Sprintf("/repos/%s/issues/%d/events", repo, number), &events)
	if err != nil || !found {
		return false, err
	}

	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Event != "labeled" || e.Label == nil || e.Label.Name != f.ApprovalLabel {
			continue
		}
		if e.Actor != nil && f.authorized(e.Actor.Login) {
			return true, nil
		}
	}
	return false, nil
}

// MarkDone adds the done label to an issue so it does not get run again
func (f *Finder) MarkDone(ctx context.Context, repo string, creds simsched.Credentials, issueID int) error {
	body, err := json.Marshal(map[string][]string{"labels": {f.DoneLabel}})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/repos/%s/issues/%d/labels", strings.TrimSuffix(f.APIURL, "/"), repo, issueID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	res, err := f.client(ctx, creds).Do(req)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to label issue %d of %s", issueID, repo), err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		out, _ := io.ReadAll(res.Body)
		return fmt.Errorf("labelling issue %d of %s returned status %d: %s", issueID, repo, res.StatusCode, out)
	}

	f.log().Infof("Marked issue %d as done", issueID)
	return nil
}

// getJSON decodes the response of a GET request to path into v.
// The returned bool is false if the API did not answer with 200.
func (f *Finder) getJSON(ctx context.Context, client *http.Client, path string, v any) (bool, error) {
	url := strings.TrimSuffix(f.APIURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	res, err := client.Do(req)
	if err != nil {
		return false, errors.Join(fmt.Errorf("request to %s failed", url), err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		f.log().Debugf("Request to %s returned status %d", url, res.StatusCode)
		return false, nil
	}

	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return false, errors.Join(fmt.Errorf("failed to decode response of %s", url), err)
	}
	return true, nil
}
