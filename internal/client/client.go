// Package client assembles the host daemon: a SQLite-backed document
// store, the HTTP remote and the sync engine, driven by an interval
// timer and by server change notifications.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/remote/httpremote"
	"github.com/driftsync/driftsync/store/sqlstore"
)

type Client struct {
	config *Config
	ws     *Workspace
	docs   *sqlstore.Store[Document]
	engine *driftsync.Engine[Document]
	notifs *httpremote.Notifications

	stopOnce sync.Once
	stopErr  error
}

func New(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}

	ws, err := NewWorkspace(config.DataDir)
	if err != nil {
		return nil, err
	}

	docs, err := sqlstore.Open[Document](ws.StorePath(), DocumentType)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	var opts []httpremote.Option
	if config.Token != "" {
		opts = append(opts, httpremote.WithToken(config.Token))
	}

	remote, err := httpremote.New[Document](config.ServerURL, DocumentType, opts...)
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("create remote client: %w", err)
	}

	engine, err := driftsync.New(driftsync.Config{
		EntityType: DocumentType,
		Direction:  config.Direction,
		Strategy:   config.Strategy,
	}, docs, remote, docs)
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	return &Client{
		config: config,
		ws:     ws,
		docs:   docs,
		engine: engine,
		notifs: httpremote.NewNotifications(config.ServerURL, opts...),
	}, nil
}

// Start runs the daemon until ctx is cancelled, then cleans up.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("client start", "config", c.config)

	if err := c.ws.Setup(); err != nil {
		return err
	}

	// First pass before the listeners come up, so a freshly started host
	// converges immediately instead of waiting out the first interval.
	c.runPass(ctx)

	if err := c.notifs.Connect(ctx); err != nil {
		// Starting against an unreachable server is normal; the interval
		// loop keeps polling.
		slog.Warn("events listener unavailable, polling only", "error", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return c.syncLoop(egCtx)
	})

	eg.Go(func() error {
		return c.eventLoop(egCtx)
	})

	eg.Go(func() error {
		<-egCtx.Done()
		return c.Stop()
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("client failure", "error", err)
		return err
	}

	slog.Info("client stopped")
	return nil
}

// Stop releases everything Start acquired. Start calls it on shutdown;
// calling it again is a no-op.
func (c *Client) Stop() error {
	c.stopOnce.Do(func() {
		c.notifs.Close()
		c.engine.Close()

		var errs []error
		if err := c.docs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		if err := c.ws.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("unlock data dir: %w", err))
		}
		c.stopErr = errors.Join(errs...)
	})
	return c.stopErr
}

// Documents exposes the backing store for host reads and writes.
func (c *Client) Documents() *sqlstore.Store[Document] {
	return c.docs
}

// Engine exposes the sync engine for status, pause and manual passes.
func (c *Client) Engine() *driftsync.Engine[Document] {
	return c.engine
}

func (c *Client) syncLoop(ctx context.Context) error {
	// a timer and not a ticker, so a pass that runs longer than the
	// interval does not queue ticks behind itself
	timer := time.NewTimer(c.config.SyncInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			c.runPass(ctx)
			timer.Reset(c.config.SyncInterval)
		}
	}
}

func (c *Client) eventLoop(ctx context.Context) error {
	events := c.notifs.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.EntityType != "" && ev.EntityType != DocumentType {
				continue
			}
			if !c.behindServer(ctx, ev.Version) {
				slog.Debug("change event already covered", "version", ev.Version)
				continue
			}
			slog.Debug("change event", "entityType", ev.EntityType, "version", ev.Version)
			c.runPass(ctx)
		}
	}
}

func (c *Client) runPass(ctx context.Context) {
	res := c.engine.Sync(ctx)
	if !res.Success && res.ErrorMessage == driftsync.ErrSyncInProgress.Error() {
		// an overlapping trigger lost the gate; the running pass covers it
		slog.Debug("sync trigger skipped")
	}
}

// behindServer reports whether the advertised head is past our
// checkpoint. Unknown heads count as behind.
func (c *Client) behindServer(ctx context.Context, head int64) bool {
	if head <= 0 {
		return true
	}
	cp, err := c.docs.Checkpoint(ctx)
	if err != nil {
		return true
	}
	return head > int64(cp)
}
