package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vacp2p/simsched/pkg/simsched"
)

type fakeGitHub struct {
	mu sync.Mutex

	issues []map[string]any
	events map[int][]map[string]any

	authHeaders []string
	labelled    map[int][]string

	issuesStatus int
}

func labelled(name, actor string) map[string]any {
	return map[string]any{
		"event": "labeled",
		"label": map[string]any{"name": name},
		"actor": map[string]any{"login": actor},
	}
}

func issueWith(number int, body string, labels ...string) map[string]any {
	ls := []map[string]any{}
	for _, l := range labels {
		ls = append(ls, map[string]any{"name": l})
	}
	return map[string]any{"number": number, "body": body, "labels": ls}
}

func (g *fakeGitHub) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/vacp2p/vaclab/issues", func(w http.ResponseWriter, r *http.Request) {
		g.record(r)
		if g.issuesStatus != 0 {
			w.WriteHeader(g.issuesStatus)
			return
		}
		json.NewEncoder(w).Encode(g.issues)
	})
	mux.HandleFunc("/repos/vacp2p/vaclab/issues/", func(w http.ResponseWriter, r *http.Request) {
		g.record(r)
		var number int
		var rest string
		fmt.Sscanf(r.URL.Path, "/repos/vacp2p/vaclab/issues/%d/%s", &number, &rest)
		switch {
		case rest == "events" && r.Method == http.MethodGet:
			events, ok := g.events[number]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(events)
		case rest == "labels" && r.Method == http.MethodPost:
			var body struct {
				Labels []string `json:"labels"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			g.mu.Lock()
			g.labelled[number] = append(g.labelled[number], body.Labels...)
			g.mu.Unlock()
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("[]"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func (g *fakeGitHub) record(r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authHeaders = append(g.authHeaders, r.Header.Get("Authorization"))
}

func newFinder(url string) *Finder {
	return &Finder{
		APIURL:            url,
		ApprovalLabel:     "needs-scheduling",
		DoneLabel:         "simulation-done",
		AuthorizedUsers:   []string{"zorlin", "AlbertoSoutullo"},
		LookupConcurrency: 2,
	}
}

func TestFindApprovedRequest(t *testing.T) {
	t.Run("First approved issue wins", func(t *testing.T) {
		gh := &fakeGitHub{
			issues: []map[string]any{
				issueWith(1, "done", "needs-scheduling", "simulation-done"),
				issueWith(2, "unlabelled"),
				issueWith(3, "unauthorized", "needs-scheduling"),
				issueWith(4, "approved", "needs-scheduling", "bug"),
				issueWith(5, "also approved", "needs-scheduling"),
			},
			events: map[int][]map[string]any{
				1: {labelled("needs-scheduling", "zorlin")},
				3: {labelled("needs-scheduling", "mallory")},
				4: {labelled("bug", "mallory"), labelled("needs-scheduling", "ZORLIN")},
				5: {labelled("needs-scheduling", "albertosoutullo")},
			},
		}
		server := gh.server(t)

		req, found, err := newFinder(server.URL).FindApprovedRequest(context.Background(), "vacp2p/vaclab", simsched.Credentials{})

		assert.Nil(t, err)
		assert.True(t, found, "No approved request found")
		assert.Equal(t, simsched.Request{IssueID: 4, Body: "approved"}, req)
	})
	t.Run("Any authorized approval counts", func(t *testing.T) {
		gh := &fakeGitHub{
			issues: []map[string]any{issueWith(7, "body", "needs-scheduling")},
			events: map[int][]map[string]any{
				7: {labelled("needs-scheduling", "mallory"), {"event": "unlabeled", "label": map[string]any{"name": "needs-scheduling"}, "actor": map[string]any{"login": "zorlin"}}, labelled("needs-scheduling", "zorlin")},
			},
		}
		server := gh.server(t)

		req, found, err := newFinder(server.URL).FindApprovedRequest(context.Background(), "vacp2p/vaclab", simsched.Credentials{})

		assert.Nil(t, err)
		assert.True(t, found)
		assert.Equal(t, 7, req.IssueID)
	})
	t.Run("No approved issue", func(t *testing.T) {
		gh := &fakeGitHub{
			issues: []map[string]any{issueWith(3, "unauthorized", "needs-scheduling"), issueWith(8, "events missing", "needs-scheduling")},
			events: map[int][]map[string]any{
				3: {labelled("needs-scheduling", "mallory")},
			},
		}
		server := gh.server(t)

		_, found, err := newFinder(server.URL).FindApprovedRequest(context.Background(), "vacp2p/vaclab", simsched.Credentials{})

		assert.Nil(t, err)
		assert.False(t, found)
	})
	t.Run("Failing issue listing is not found", func(t *testing.T) {
		gh := &fakeGitHub{issuesStatus: http.StatusUnauthorized}
		server := gh.server(t)

		_, found, err := newFinder(server.URL).FindApprovedRequest(context.Background(), "vacp2p/vaclab", simsched.Credentials{})

		assert.Nil(t, err)
		assert.False(t, found)
	})
	t.Run("Unreachable API is an error", func(t *testing.T) {
		_, found, err := newFinder("http://127.0.0.1:1").FindApprovedRequest(context.Background(), "vacp2p/vaclab", simsched.Credentials{})

		assert.NotNil(t, err)
		assert.False(t, found)
	})
	t.Run("Token is sent", func(t *testing.T) {
		gh := &fakeGitHub{issues: []map[string]any{}}
		server := gh.server(t)

		_, _, err := newFinder(server.URL).FindApprovedRequest(context.Background(), "vacp2p/vaclab", simsched.Credentials{Token: "secret"})

		assert.Nil(t, err)
		assert.Equal(t, []string{"token secret"}, gh.authHeaders)
	})
}

func TestMarkDone(t *testing.T) {
	gh := &fakeGitHub{labelled: make(map[int][]string)}
	server := gh.server(t)

	err := newFinder(server.URL).MarkDone(context.Background(), "vacp2p/vaclab", simsched.Credentials{Token: "secret"}, 12)

	assert.Nil(t, err)
	assert.Equal(t, []string{"simulation-done"}, gh.labelled[12])
	assert.Equal(t, []string{"token secret"}, gh.authHeaders)
}
