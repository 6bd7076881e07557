package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sevigo/revision-warden/internal/checkpoint"
	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/metrics"
)

const checkpointInterval = 5 * time.Second

// Ingestor owns the scoring stream subscriptions, at most one per wiki.
type Ingestor struct {
	transport   Transport
	checkpoints checkpoint.Store
	cfg         config.StreamConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu      sync.Mutex
	active  map[string]struct{}
	buffers map[string]*Buffer
}

func NewIngestor(transport Transport, checkpoints checkpoint.Store, cfg config.StreamConfig, m *metrics.Metrics, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		transport:   transport,
		checkpoints: checkpoints,
		cfg:         cfg,
		metrics:     m,
		logger:      logger.With("component", "stream"),
		active:      make(map[string]struct{}),
		buffers:     make(map[string]*Buffer),
	}
}

// Subscribe starts the subscription for wiki and returns its candidates. The
// channel stays open across reconnects and is closed only when ctx is done.
// A second concurrent subscription for the same wiki fails with
// core.ErrAlreadySubscribed.
func (i *Ingestor) Subscribe(ctx context.Context, wiki string) (<-chan core.RevisionCandidate, error) {
	i.mu.Lock()
	if _, busy := i.active[wiki]; busy {
		i.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", core.ErrAlreadySubscribed, wiki)
	}
	i.active[wiki] = struct{}{}
	i.mu.Unlock()

	out := make(chan core.RevisionCandidate, 64)
	go func() {
		defer func() {
			i.mu.Lock()
			delete(i.active, wiki)
			i.mu.Unlock()
			close(out)
		}()
		i.run(ctx, wiki, out)
	}()
	return out, nil
}

// Run subscribes to every wiki and appends their candidates to the per-wiki
// buffers until ctx is done.
func (i *Ingestor) Run(ctx context.Context, wikis []string) error {
	var wg sync.WaitGroup
	for _, wiki := range wikis {
		ch, err := i.Subscribe(ctx, wiki)
		if err != nil {
			return err
		}
		buf := i.Buffer(wiki)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range ch {
				buf.Append(c)
			}
		}()
	}
	wg.Wait()
	return nil
}

// Buffer returns the candidate buffer of wiki, creating it on first use.
func (i *Ingestor) Buffer(wiki string) *Buffer {
	i.mu.Lock()
	defer i.mu.Unlock()
	b, ok := i.buffers[wiki]
	if !ok {
		b = NewBuffer(i.cfg.BufferSize)
		i.buffers[wiki] = b
	}
	return b
}

// Since drains the buffer of wiki from cursor.
func (i *Ingestor) Since(wiki string, cursor uint64) ([]core.RevisionCandidate, uint64) {
	return i.Buffer(wiki).Since(cursor)
}

func (i *Ingestor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if i.cfg.InitialBackoff > 0 {
		b.InitialInterval = i.cfg.InitialBackoff
	}
	if i.cfg.MaxBackoff > 0 {
		b.MaxInterval = i.cfg.MaxBackoff
	}
	b.Reset()
	return b
}

func (i *Ingestor) run(ctx context.Context, wiki string, out chan<- core.RevisionCandidate) {
	log := i.logger.With("wiki", wiki)
	bo := i.newBackOff()

	lastID := ""
	if i.transport.SupportsResume() && i.checkpoints != nil {
		id, err := i.checkpoints.Load(wiki)
		if err != nil {
			log.Warn("failed to load stream checkpoint, starting from now", "error", err)
		}
		lastID = id
	}

	for attempt := 0; ctx.Err() == nil; attempt++ {
		if attempt > 0 {
			i.metrics.StreamReconnects.WithLabelValues(wiki).Inc()
			if !i.transport.SupportsResume() {
				i.metrics.StreamGaps.WithLabelValues(wiki).Inc()
				log.Warn("stream transport has no continuation, events during the outage are lost")
			}
		}

		conn, err := i.transport.Connect(ctx, lastID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := bo.NextBackOff()
			log.Warn("failed to connect to scoring stream", "error", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		log.Info("connected to scoring stream", "resume_from", lastID)
		lastID = i.consume(ctx, wiki, conn, bo, lastID, out)
		_ = conn.Close()
		i.saveCheckpoint(wiki, lastID)

		if ctx.Err() != nil {
			return
		}
		wait := bo.NextBackOff()
		log.Warn("scoring stream disconnected", "retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// consume reads conn until it fails and returns the last event id seen.
func (i *Ingestor) consume(ctx context.Context, wiki string, conn Conn, bo *backoff.ExponentialBackOff, lastID string, out chan<- core.RevisionCandidate) string {
	lastSave := time.Now()
	for {
		ev, err := conn.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				i.logger.Debug("stream read ended", "wiki", wiki, "error", err)
			}
			return lastID
		}
		bo.Reset()
		if ev.ID != "" {
			lastID = ev.ID
		}

		candidate, err := Normalize(wiki, ev.Data)
		switch {
		case errors.Is(err, errOtherWiki):
			i.metrics.StreamMessages.WithLabelValues(wiki, "ignored").Inc()
		case err != nil:
			i.metrics.StreamMessages.WithLabelValues(wiki, "malformed").Inc()
			i.logger.Debug("skipping malformed stream message", "wiki", wiki, "error", err)
		default:
			i.metrics.StreamMessages.WithLabelValues(wiki, "accepted").Inc()
			select {
			case out <- candidate:
			case <-ctx.Done():
				return lastID
			}
		}

		if time.Since(lastSave) >= checkpointInterval {
			i.saveCheckpoint(wiki, lastID)
			lastSave = time.Now()
		}
	}
}

func (i *Ingestor) saveCheckpoint(wiki, id string) {
	if id == "" || i.checkpoints == nil || !i.transport.SupportsResume() {
		return
	}
	if err := i.checkpoints.Save(wiki, id); err != nil {
		i.logger.Warn("failed to save stream checkpoint", "wiki", wiki, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
