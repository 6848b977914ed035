// Package natsbus exposes a catalog over NATS request/reply. A Responder
// serves fetches from any catalog.Lookup; a Client is a catalog.Lookup that
// sends them.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rorkai/21st-sub000/catalog"
)

// DefaultSubject is the request subject catalog fetches are sent on.
const DefaultSubject = "regscan.catalog.fetch"

// request is the wire form of a fetch.
type request struct {
	Owner string `json:"owner"`
	Slug  string `json:"slug"`
}

// response is the wire form of a fetch result.
type response struct {
	Node     *catalog.Node `json:"node,omitempty"`
	NotFound bool          `json:"not_found,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Connect dials NATS with reconnect settings suited to a long-running service.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, wrapNATSError(err, url)
	}
	return nc, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker run -p 4222:4222 nats

Or set catalog.nats.url in regscan.yaml to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// Client fetches catalog entries over NATS.
type Client struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

// NewClient creates a client sending requests on subject. timeout applies
// when the caller's context has no deadline.
func NewClient(nc *nats.Conn, subject string, timeout time.Duration) *Client {
	if subject == "" {
		subject = DefaultSubject
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{nc: nc, subject: subject, timeout: timeout}
}

// Fetch implements catalog.Lookup.
func (c *Client) Fetch(ctx context.Context, ref catalog.Ref) (*catalog.Node, error) {
	data, err := json.Marshal(request{Owner: ref.Owner, Slug: ref.Slug})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := c.nc.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("fetch %s: no catalog responder on %s: %w", ref, c.subject, err)
		}
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	return decodeResponse(ref, msg.Data)
}

func decodeResponse(ref catalog.Ref, data []byte) (*catalog.Node, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response for %s: %w", ref, err)
	}
	switch {
	case resp.NotFound:
		return nil, fmt.Errorf("%s: %w", ref, catalog.ErrNotFound)
	case resp.Error != "":
		return nil, fmt.Errorf("fetch %s: remote: %s", ref, resp.Error)
	case resp.Node == nil:
		return nil, fmt.Errorf("fetch %s: empty response", ref)
	}
	return resp.Node, nil
}

// Responder answers fetch requests from a catalog.Lookup.
type Responder struct {
	lookup  catalog.Lookup
	timeout time.Duration
	logger  *slog.Logger
	sub     *nats.Subscription
}

// NewResponder creates a responder over lookup. timeout bounds each fetch.
func NewResponder(lookup catalog.Lookup, timeout time.Duration, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Responder{lookup: lookup, timeout: timeout, logger: logger}
}

// Start subscribes on subject in the given queue group so several
// responders can share the load.
func (r *Responder) Start(nc *nats.Conn, subject, queue string) error {
	if subject == "" {
		subject = DefaultSubject
	}
	sub, err := nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := msg.Respond(r.respond(ctx, msg.Data)); err != nil {
			r.logger.Warn("Failed to send catalog reply", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	r.sub = sub
	r.logger.Info("Catalog responder started", "subject", subject, "queue", queue)
	return nil
}

// Stop drains the subscription.
func (r *Responder) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Drain()
}

// respond handles one encoded request and returns the encoded reply.
func (r *Responder) respond(ctx context.Context, data []byte) []byte {
	var (
		req  request
		resp response
	)
	if err := json.Unmarshal(data, &req); err != nil {
		resp.Error = "malformed request: " + err.Error()
	} else {
		node, err := r.lookup.Fetch(ctx, catalog.Ref{Owner: req.Owner, Slug: req.Slug})
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			resp.NotFound = true
		case err != nil:
			r.logger.Warn("Catalog fetch failed", "owner", req.Owner, "slug", req.Slug, "error", err)
			resp.Error = err.Error()
		default:
			resp.Node = node
		}
	}

	out, err := json.Marshal(resp)
	if err != nil {
		out, _ = json.Marshal(response{Error: "encode reply: " + err.Error()})
	}
	return out
}
