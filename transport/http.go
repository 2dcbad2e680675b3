package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/najoast/actorsys/proto"
)

// HTTPTransport implements Transport over the hosting service's
// /runtime HTTP façade. address is a hosting-service base URL (e.g.
// "http://host:8086"); the actor id is carried in the request body or
// path as appropriate per endpoint.
type HTTPTransport struct {
	client *http.Client
	apiKey string
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithAPIKey sets the shared-secret header sent on every request.
func WithAPIKey(key string) HTTPOption {
	return func(t *HTTPTransport) { t.apiKey = key }
}

// NewHTTPTransport builds an HTTPTransport with the component design's
// recommended default timeouts (2s connect, 5s read), overridable via
// the client's own Transport/Timeout fields if callers need otherwise.
func NewHTTPTransport(opts ...HTTPOption) *HTTPTransport {
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	t := &HTTPTransport{
		client: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) do(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("transport: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.apiKey != "" {
		req.Header.Set("X-API-KEY", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: request %s %s: %w", method, url, err)
	}
	return resp, nil
}

// Send implements Transport by POSTing a Tell Command to address's
// /runtime/tell endpoint.
func (t *HTTPTransport) Send(ctx context.Context, address string, env *proto.Envelope, senderActorID string) error {
	// address is expected in "<baseURL>/<actorID>" form; callers build it
	// via JoinAddress so the façade can extract the target actor id.
	base, actorID := splitAddress(address)
	cmd := proto.TellCommand{TargetActorID: actorID, SenderActorID: senderActorID, Message: env}

	resp, err := t.do(ctx, http.MethodPost, base+"/runtime/tell", cmd)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("transport: actor %s not found at %s", actorID, base)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: tell %s returned %s", actorID, resp.Status)
	}
	return nil
}

// CreateActor forwards a Create Command to a hosting service's
// /runtime/create-actor endpoint. This is not part of the Transport
// interface (the bus has no equivalent), so callers needing it hold a
// concrete *HTTPTransport rather than going through a Router.
func (t *HTTPTransport) CreateActor(ctx context.Context, baseURL string, cmd proto.CreateCommand) error {
	resp, err := t.do(ctx, http.MethodPost, baseURL+"/runtime/create-actor", cmd)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: create-actor %s returned %s", cmd.ActorType, resp.Status)
	}
	return nil
}

// Ask issues a synchronous request/reply exchange over HTTP.
func (t *HTTPTransport) Ask(ctx context.Context, address string, env *proto.Envelope, timeout time.Duration) (*proto.Envelope, error) {
	base, actorID := splitAddress(address)
	cmd := proto.TellCommand{TargetActorID: actorID, Message: env}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := t.do(actx, http.MethodPost, base+"/runtime/ask", cmd)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transport: ask %s returned %s", actorID, resp.Status)
	}

	var reply proto.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("transport: decode ask reply: %w", err)
	}
	return &reply, nil
}

// Exists checks whether address's hosting service still reports the
// actor.
func (t *HTTPTransport) Exists(ctx context.Context, address string) (bool, error) {
	base, actorID := splitAddress(address)
	resp, err := t.do(ctx, http.MethodGet, fmt.Sprintf("%s/runtime/actors/%s/health", base, actorID), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Stop issues a DELETE for the actor at address.
func (t *HTTPTransport) Stop(ctx context.Context, address string) error {
	base, actorID := splitAddress(address)
	resp, err := t.do(ctx, http.MethodDelete, fmt.Sprintf("%s/runtime/actors/%s", base, actorID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("transport: stop %s returned %s", actorID, resp.Status)
	}
	return nil
}

// State reports the actor's health-endpoint derived state string.
func (t *HTTPTransport) State(ctx context.Context, address string) (string, error) {
	ok, err := t.Exists(ctx, address)
	if err != nil {
		return "", err
	}
	if ok {
		return "ACTIVE", nil
	}
	return "UNAVAILABLE", nil
}

// JoinAddress builds the composite address HTTPTransport expects:
// baseURL + actorID, split apart again by splitAddress.
func JoinAddress(baseURL, actorID string) string {
	return baseURL + "\x00" + actorID
}

func splitAddress(address string) (base, actorID string) {
	for i := 0; i < len(address); i++ {
		if address[i] == '\x00' {
			return address[:i], address[i+1:]
		}
	}
	return address, ""
}
