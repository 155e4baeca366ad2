package deploy

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Healthcheck polls the REST API of a started node until it answers with 200
type Healthcheck struct {
	Path string // The path to which the GET requests are sent, e.g. /health

	Retries int // How many times the check is tried until the node is considered unhealthy. At least one try is made

	Backoff          time.Duration // How long to wait between each retry
	BackoffIncrement time.Duration // By how much to increment the backoff on each failed attempt
	MaxBackoff       time.Duration // The maximum duration the backoff may reach after incrementing
}

// perform runs the healthcheck against localhost:port.
// If the healthcheck is unsuccessful, the returned boolean is false and the error may not be nil.
func (h Healthcheck) perform(ctx context.Context, port int) (bool, error) {
	var lastSuccess bool
	var lastError error

	retries := max(h.Retries, 1)
	backoff := h.Backoff
	for i := 0; i < retries; i++ {
		lastSuccess, lastError = h.performSingle(ctx, port)
		if lastSuccess {
			return true, nil
		}

		if i == retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
		backoff += h.BackoffIncrement
		if backoff > h.MaxBackoff {
			backoff = h.MaxBackoff
		}
	}

	return lastSuccess, lastError
}

func (h Healthcheck) performSingle(ctx context.Context, port int) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%d%s", port, h.Path), nil)
	if err != nil {
		return false, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	res.Body.Close()
	return res.StatusCode == http.StatusOK, nil
}
