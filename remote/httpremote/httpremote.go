// Package httpremote implements driftsync.RemoteClient over the DriftSync
// HTTP API. One Client serves one entity type; hosts syncing several types
// hold one Client per type against the same server.
//
// JSON encoding uses goccy/go-json by default and bytedance/sonic when
// built with the "sonic" tag.
package httpremote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/api"
	"github.com/driftsync/driftsync/internal/utils"
	"github.com/driftsync/driftsync/internal/version"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultPageLimit = 500
)

var (
	ErrNoServerURL  = errors.New("remote: server url missing")
	ErrNoEntityType = errors.New("remote: entity type missing")
)

var userAgent = fmt.Sprintf("%s/%s (%s; %s; %s)", version.AppName, version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

type settings struct {
	token     string
	timeout   time.Duration
	pageLimit int
}

// Option customizes a Client or a Notifications listener.
type Option func(*settings)

// WithToken sends the given bearer token on every request.
func WithToken(token string) Option {
	return func(s *settings) { s.token = token }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithPageLimit overrides how many records one pull round trip asks for.
func WithPageLimit(n int) Option {
	return func(s *settings) { s.pageLimit = n }
}

// Client syncs one entity type against a DriftSync server.
//
// It performs no transport-level retries on sync calls; retry policy
// belongs to the engine driving it.
type Client[T driftsync.Syncable] struct {
	http      *req.Client
	typ       string
	pageLimit int
}

// New builds a Client for one entity type rooted at baseURL.
func New[T driftsync.Syncable](baseURL, entityType string, opts ...Option) (*Client[T], error) {
	if baseURL == "" {
		return nil, ErrNoServerURL
	}
	if entityType == "" {
		return nil, ErrNoEntityType
	}

	cfg := settings{
		timeout:   defaultTimeout,
		pageLimit: defaultPageLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	httpClient := req.C().
		SetBaseURL(baseURL).
		SetTimeout(cfg.timeout).
		SetUserAgent(userAgent).
		SetCommonHeader(api.HeaderClientVersion, version.Version).
		SetCommonHeader(api.HeaderDeviceId, utils.HWID).
		SetCommonErrorResult(&api.Error{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if cfg.token != "" {
		httpClient.SetCommonBearerAuthToken(cfg.token)
	}

	return &Client[T]{
		http:      httpClient,
		typ:       entityType,
		pageLimit: cfg.pageLimit,
	}, nil
}

// IsOnline probes the server's status endpoint.
func (c *Client[T]) IsOnline(ctx context.Context) (bool, error) {
	var status api.StatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&status).
		Get(api.PathStatus)

	if err := handleAPIError(resp, err, "status"); err != nil {
		return false, err
	}

	return status.Status == "ok", nil
}

// Push uploads a single record.
func (c *Client[T]) Push(ctx context.Context, rec driftsync.Record[T]) error {
	wire, err := c.toWire(rec)
	if err != nil {
		return err
	}

	var ack api.PushResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(wire).
		SetSuccessResult(&ack).
		Post(api.PathPush)

	if err := handleAPIError(resp, err, "push"); err != nil {
		return err
	}

	slog.Debug("remote push",
		"type", c.typ,
		"entity", rec.EntityID,
		"op", rec.Op,
		"size", humanize.IBytes(uint64(len(wire.Payload))),
		"version", ack.Version,
	)
	return nil
}

// PushBatch uploads a batch of records in one round trip and returns how
// many the server accepted.
func (c *Client[T]) PushBatch(ctx context.Context, recs []driftsync.Record[T]) (int, error) {
	batch := api.PushBatchRequest{
		Records: make([]*api.Record, 0, len(recs)),
	}
	for i := range recs {
		wire, err := c.toWire(recs[i])
		if err != nil {
			return 0, err
		}
		batch.Records = append(batch.Records, wire)
	}

	var ack api.PushBatchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&batch).
		SetSuccessResult(&ack).
		Post(api.PathPushBatch)

	if err := handleAPIError(resp, err, "push batch"); err != nil {
		return 0, err
	}

	slog.Debug("remote push batch", "type", c.typ, "sent", len(recs), "accepted", ack.Accepted)
	return ack.Accepted, nil
}

// Pull walks the delta stream from the given token to the head, one page
// per round trip.
func (c *Client[T]) Pull(ctx context.Context, since driftsync.Version) ([]driftsync.Record[T], driftsync.Version, error) {
	var (
		out  []driftsync.Record[T]
		next = since
	)

	for {
		var page api.PullResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("type", c.typ).
			SetQueryParam("since", strconv.FormatInt(int64(next), 10)).
			SetQueryParam("limit", strconv.Itoa(c.pageLimit)).
			SetSuccessResult(&page).
			Get(api.PathPull)

		if err := handleAPIError(resp, err, "pull"); err != nil {
			return nil, 0, err
		}

		for _, wire := range page.Records {
			rec, err := c.fromWire(wire)
			if err != nil {
				return nil, 0, fmt.Errorf("pull: decode record %s: %w", wire.ID, err)
			}
			out = append(out, rec)
		}

		next = driftsync.Version(page.Next)
		if !page.More {
			break
		}
	}

	return out, next, nil
}

// ServerVersion returns the server's current version head.
func (c *Client[T]) ServerVersion(ctx context.Context) (driftsync.Version, error) {
	var head api.VersionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&head).
		Get(api.PathVersion)

	if err := handleAPIError(resp, err, "version"); err != nil {
		return 0, err
	}

	return driftsync.Version(head.Version), nil
}

// toWire flattens a typed record into its JSON envelope. Delete records
// travel without a payload.
func (c *Client[T]) toWire(rec driftsync.Record[T]) (*api.Record, error) {
	wire := &api.Record{
		ID:         rec.ID,
		EntityID:   rec.EntityID,
		EntityType: c.typ,
		Op:         string(rec.Op),
		Version:    int64(rec.Version),
		ClientTime: rec.LocalTime,
	}

	if rec.Op != driftsync.OpDelete {
		payload, err := jsonMarshal(rec.Entity)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", rec.EntityID, err)
		}
		wire.Payload = payload
	}

	return wire, nil
}

func (c *Client[T]) fromWire(wire *api.Record) (driftsync.Record[T], error) {
	rec := driftsync.Record[T]{
		ID:        wire.ID,
		EntityID:  wire.EntityID,
		Op:        driftsync.Op(wire.Op),
		Version:   driftsync.Version(wire.Version),
		LocalTime: wire.ClientTime,
	}

	if len(wire.Payload) > 0 {
		if err := jsonUnmarshal(wire.Payload, &rec.Entity); err != nil {
			return driftsync.Record[T]{}, err
		}
	}

	return rec, nil
}

// handleAPIError is a helper function that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	// got a response, but api returned an error
	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*api.Error); ok {
			return fmt.Errorf("%s %w", operation, err)
		}

		return fmt.Errorf("api error: %s %s", operation, resp.String())
	}

	return nil
}
