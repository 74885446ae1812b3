package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/miguelmartens/sidekv/lib/store"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// statePathFmt is the agent's state API path, scoped to a logical store.
	statePathFmt = "/v1.0/state/%s"
	// healthPath is the agent's outbound health endpoint used for probes.
	healthPath = "/v1.0/healthz/outbound"

	defaultTimeout = 5 * time.Second
)

// Config holds the connection parameters for the sidecar agent.
type Config struct {
	// Endpoint is the base URL of the local agent (e.g. http://127.0.0.1:3500).
	Endpoint string
	// StoreName is the logical store namespace all operations are scoped to.
	StoreName string
	// Timeout bounds every single request against the agent. Zero selects
	// the default of a few seconds.
	Timeout time.Duration
}

// NewSidecarBackend creates a backend that routes all state operations to a
// local out-of-process agent over its HTTP state API. The returned backend
// also implements store.Prober.
//
// The backend itself never retries: a transport failure or timeout surfaces
// as RetCUnavailable and retry policy belongs to the caller.
func NewSidecarBackend(config Config) (store.Backend, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(config.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("sidecar endpoint is empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid sidecar endpoint %q: %w", config.Endpoint, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid sidecar endpoint %q: missing host", config.Endpoint)
	}
	if config.StoreName == "" {
		return nil, fmt.Errorf("sidecar store name is empty")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// Create client with default transport
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     timeout,
		},
	}

	return &sidecarBackend{
		baseURL:   parsed.String(),
		storeName: config.StoreName,
		timeout:   timeout,
		client:    client,
	}, nil
}

type sidecarBackend struct {
	baseURL   string
	storeName string
	timeout   time.Duration
	client    *http.Client
}

// saveStateItem is the agent's wire format for a single upsert. Values are
// byte payloads, which encoding/json renders as base64 strings.
type saveStateItem struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (b *sidecarBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	requestURL := fmt.Sprintf("%s%s/%s", b.baseURL, fmt.Sprintf(statePathFmt, b.storeName), url.PathEscape(key))

	body, status, err := b.do(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, false, err
	}

	// The agent reports absence as an empty response
	if status == http.StatusNoContent || status == http.StatusNotFound || len(body) == 0 {
		return nil, false, nil
	}

	// Values written by this client are JSON byte strings. Tolerate values
	// written by other clients of the same store by falling back to the raw
	// body when the payload is not a JSON string.
	var value []byte
	if err := json.Unmarshal(body, &value); err != nil {
		return body, true, nil
	}
	return value, true, nil
}

func (b *sidecarBackend) Set(ctx context.Context, key string, value []byte) error {
	requestURL := fmt.Sprintf("%s%s", b.baseURL, fmt.Sprintf(statePathFmt, b.storeName))

	payload, err := json.Marshal([]saveStateItem{{Key: key, Value: value}})
	if err != nil {
		return store.NewErrorf(store.RetCBackendError, "failed to encode state for key %q: %v", key, err)
	}

	_, _, err = b.do(ctx, http.MethodPost, requestURL, payload)
	return err
}

func (b *sidecarBackend) Delete(ctx context.Context, key string) error {
	requestURL := fmt.Sprintf("%s%s/%s", b.baseURL, fmt.Sprintf(statePathFmt, b.storeName), url.PathEscape(key))

	_, _, err := b.do(ctx, http.MethodDelete, requestURL, nil)
	return err
}

// Probe implements store.Prober with a request against the agent's outbound
// health endpoint. It is cheaper than a state operation and does not touch
// the logical store.
func (b *sidecarBackend) Probe(ctx context.Context) error {
	_, _, err := b.do(ctx, http.MethodGet, b.baseURL+healthPath, nil)
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// do executes a single bounded request against the agent and classifies the
// result: transport failures and timeouts map to RetCUnavailable, agent error
// statuses map to RetCBackendError carrying the agent's error detail.
func (b *sidecarBackend) do(ctx context.Context, method, requestURL string, payload []byte) (body []byte, status int, err error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, 0, store.NewErrorf(store.RetCUnavailable, "failed to create request: %v", err)
	}
	if payload != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	httpResponse, err := b.client.Do(httpRequest)
	if err != nil {
		// An abandoned request is the caller's cancellation, not a
		// reachability signal
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, 0, ctxErr
		}
		return nil, 0, store.NewErrorf(store.RetCUnavailable, "agent request failed: %v", err)
	}
	defer httpResponse.Body.Close()

	body, err = io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, 0, store.NewErrorf(store.RetCUnavailable, "failed to read agent response: %v", err)
	}

	if httpResponse.StatusCode >= http.StatusInternalServerError {
		return nil, 0, store.NewErrorf(store.RetCBackendError, "agent error: %s: %s", httpResponse.Status, strings.TrimSpace(string(body)))
	}
	if httpResponse.StatusCode >= http.StatusBadRequest && httpResponse.StatusCode != http.StatusNotFound {
		return nil, 0, store.NewErrorf(store.RetCBackendError, "agent rejected request: %s: %s", httpResponse.Status, strings.TrimSpace(string(body)))
	}

	return body, httpResponse.StatusCode, nil
}
