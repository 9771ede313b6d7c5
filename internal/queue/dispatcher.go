package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"
)

// Dispatcher publishes a job envelope to the delayed-delivery bus targeting
// the worker endpoint (C6). Two concrete variants exist per Design Note 9:
// Remote (a real QStash-shaped HTTP publish) and Local (synchronous
// in-process dispatch for development). The choice is explicit at process
// start, never inferred from a URL at call sites.
type Dispatcher interface {
	Dispatch(ctx context.Context, env Envelope) error
}

// RemoteDispatcher publishes to a QStash-compatible HTTP bus: the envelope
// is the request body, signed with the current signing key, targeting
// appURL+workerPath with an Upstash-Retries header for the chosen lane (no
// delay header is set).
type RemoteDispatcher struct {
	httpClient       *http.Client
	qstashURL        string
	qstashToken      string
	currentSignKey   string
	appURL           string
	workerPath       string
}

// NewRemoteDispatcher builds a Dispatcher that publishes to QStash.
func NewRemoteDispatcher(httpClient *http.Client, qstashURL, qstashToken, currentSignKey, appURL, workerPath string) *RemoteDispatcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RemoteDispatcher{
		httpClient:     httpClient,
		qstashURL:      qstashURL,
		qstashToken:    qstashToken,
		currentSignKey: currentSignKey,
		appURL:         appURL,
		workerPath:     workerPath,
	}
}

func retriesForLane(lane Lane) int {
	if lane == LaneBatch {
		return 1
	}
	return 3
}

// Dispatch publishes env to QStash targeting the worker endpoint.
func (d *RemoteDispatcher) Dispatch(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope %s: %w", env.JobID, err)
	}

	target := d.appURL + d.workerPath
	publishURL := d.qstashURL + "/v2/publish/" + target

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, publishURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building publish request for job %s: %w", env.JobID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.qstashToken)
	req.Header.Set("Upstash-Retries", fmt.Sprintf("%d", retriesForLane(env.Lane)))
	req.Header.Set("upstash-signature", Sign(d.currentSignKey, body))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publishing job %s: %w", env.JobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("publishing job %s: bus returned status %d", env.JobID, resp.StatusCode)
	}
	return nil
}

// LocalDispatcher invokes the worker's HTTP handler in-process, bypassing
// the real bus entirely. It sets the X-Local-Dev marker header the worker's
// signature check honors instead of signing the body (§6.5 NODE_ENV gate).
type LocalDispatcher struct {
	workerHandler http.Handler
	workerPath    string
}

// NewLocalDispatcher builds a Dispatcher that calls workerHandler directly.
func NewLocalDispatcher(workerHandler http.Handler, workerPath string) *LocalDispatcher {
	return &LocalDispatcher{workerHandler: workerHandler, workerPath: workerPath}
}

// Dispatch invokes the worker handler synchronously and surfaces a non-2xx
// response as an error, since there is no bus to retry on our behalf.
func (d *LocalDispatcher) Dispatch(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope %s: %w", env.JobID, err)
	}

	req := httptest.NewRequest(http.MethodPost, d.workerPath, bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Local-Dev", "true")
	req.Header.Set("Upstash-Retries", fmt.Sprintf("%d", retriesForLane(env.Lane)))

	rec := httptest.NewRecorder()
	d.workerHandler.ServeHTTP(rec, req)

	if rec.Code >= 300 {
		return fmt.Errorf("local dispatch of job %s: worker returned status %d: %s", env.JobID, rec.Code, rec.Body.String())
	}
	return nil
}

// EstimatedWait is a rough queue-depth-free estimate surfaced to callers
// (§6.1's estimatedWait) — a fixed per-lane constant, since this module has
// no visibility into the external bus's actual backlog.
func EstimatedWait(lane Lane) time.Duration {
	if lane == LaneBatch {
		return 2 * time.Minute
	}
	return 5 * time.Second
}
