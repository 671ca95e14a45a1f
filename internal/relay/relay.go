// Package relay forwards jwt_tool output lines to the observing backend.
//
// Delivery is best effort: a failed line is logged and dropped, never retried,
// and never reported to the caller. A crack job's result does not depend on
// whether anyone saw its progress.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// ResultsPath is appended to the backend base URL
const ResultsPath = "/worker/results"

// Relay delivers one output line
type Relay interface {
	Send(ctx context.Context, line string)
}

// Observer is told about every delivery attempt
type Observer interface {
	RelayDelivered()
	RelayFailed()
}

// Payload is the JSON body of one relayed line
type Payload struct {
	Line string `json:"line"`
}

// Nop drops every line; used when no backend is configured
type Nop struct{}

// Send implements Relay
func (Nop) Send(context.Context, string) {}

// HTTPRelay POSTs each line to <base>/worker/results
type HTTPRelay struct {
	url      string
	client   *http.Client
	observer Observer
}

// NewHTTPRelay creates an HTTP relay. timeout bounds each line's delivery.
func NewHTTPRelay(baseURL string, timeout time.Duration, observer Observer) *HTTPRelay {
	return &HTTPRelay{
		url:      baseURL + ResultsPath,
		client:   &http.Client{Timeout: timeout},
		observer: observer,
	}
}

// URL returns the delivery endpoint
func (r *HTTPRelay) URL() string {
	return r.url
}

// Send implements Relay
func (r *HTTPRelay) Send(ctx context.Context, line string) {
	if err := r.post(ctx, line); err != nil {
		debug.Debug("Relay of output line failed: %v", err)
		notify(r.observer, false)
		return
	}
	notify(r.observer, true)
}

func (r *HTTPRelay) post(ctx context.Context, line string) error {
	body, err := json.Marshal(Payload{Line: line})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

func notify(o Observer, delivered bool) {
	if o == nil {
		return
	}
	if delivered {
		o.RelayDelivered()
	} else {
		o.RelayFailed()
	}
}

// New returns the relay for mode ("http" or "websocket"). An empty base URL
// disables relaying.
func New(mode, baseURL string, timeout time.Duration, observer Observer) Relay {
	if baseURL == "" {
		debug.Warning("No backend URL configured, output lines will not be relayed")
		return Nop{}
	}
	if mode == "websocket" {
		return NewWebSocketRelay(baseURL, timeout, observer)
	}
	return NewHTTPRelay(baseURL, timeout, observer)
}
