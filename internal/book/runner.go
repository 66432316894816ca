package book

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"depthwatch/internal/types"
	"depthwatch/internal/venue"
)

// ConnState is the stream connection lifecycle state for one symbol.
type ConnState string

const (
	StateDisconnected  ConnState = "disconnected"
	StateConnecting    ConnState = "connecting"
	StateSynchronizing ConnState = "synchronizing"
	StateStreaming     ConnState = "streaming"
	StateReconnecting  ConnState = "reconnecting"
)

// Limiter gates outbound REST calls. Satisfied by governor.Governor.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Recorder receives normalized ingestion events for windowed analytics.
type Recorder interface {
	RecordDelta(symbol string, ts time.Time, summary DeltaSummary)
	RecordTrade(trade *venue.Trade)
}

type noopRecorder struct{}

func (noopRecorder) RecordDelta(string, time.Time, DeltaSummary) {}
func (noopRecorder) RecordTrade(*venue.Trade)                    {}

// runnerConfig carries the tunables the runner needs from BookConfig.
type runnerConfig struct {
	snapshotRetries    int
	snapshotRetryDelay time.Duration
	reconnectMinDelay  time.Duration
	reconnectMaxDelay  time.Duration
}

// runner owns the ingestion lifecycle for one tracked symbol: the connection
// state machine, snapshot synchronization, and delta application. Clock and
// sleep are injected so the machine is testable without real time or I/O.
type runner struct {
	symbol   string
	book     *Book
	dial     venue.Dialer
	limiter  Limiter
	recorder Recorder
	cfg      runnerConfig
	log      *logrus.Entry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	state ConnState
	feed  venue.Feed
}

func newRunner(symbol string, b *Book, dial venue.Dialer, limiter Limiter, recorder Recorder, cfg runnerConfig, log *logrus.Entry) *runner {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &runner{
		symbol:   symbol,
		book:     b,
		dial:     dial,
		limiter:  limiter,
		recorder: recorder,
		cfg:      cfg,
		log:      log,
		state:    StateDisconnected,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// run drives Disconnected -> Connecting -> Synchronizing -> Streaming with
// exponential backoff through Reconnecting on any failure. Stream drops never
// surface to callers; they degrade to the REST fallback path until the next
// successful reconnect.
func (r *runner) run(ctx context.Context) {
	backoff := r.cfg.reconnectMinDelay

	for {
		if ctx.Err() != nil {
			r.setState(StateDisconnected, nil)
			return
		}

		r.setState(StateConnecting, nil)
		feed := r.dial(r.symbol)
		if err := feed.Connect(ctx); err != nil {
			r.log.WithError(err).Warn("stream connect failed")
			feed.Close()
			if !r.backoffWait(ctx, &backoff) {
				return
			}
			continue
		}
		r.setState(StateSynchronizing, feed)

		if err := r.syncSnapshot(ctx, feed); err != nil {
			r.log.WithError(err).Warn("snapshot sync failed")
			feed.Close()
			if !r.backoffWait(ctx, &backoff) {
				return
			}
			continue
		}

		backoff = r.cfg.reconnectMinDelay
		r.setState(StateStreaming, feed)
		r.consume(ctx, feed)
		feed.Close()

		if ctx.Err() != nil {
			r.setState(StateDisconnected, nil)
			return
		}
		r.log.Info("stream dropped, reconnecting")
		if !r.backoffWait(ctx, &backoff) {
			return
		}
	}
}

func (r *runner) backoffWait(ctx context.Context, backoff *time.Duration) bool {
	r.setState(StateReconnecting, nil)
	if err := r.sleep(ctx, *backoff); err != nil {
		r.setState(StateDisconnected, nil)
		return false
	}
	*backoff *= 2
	if *backoff > r.cfg.reconnectMaxDelay {
		*backoff = r.cfg.reconnectMaxDelay
	}
	return true
}

// syncSnapshot fetches a snapshot through the governor with bounded retries
// and loads it into the book.
func (r *runner) syncSnapshot(ctx context.Context, feed venue.Feed) error {
	retries := r.cfg.snapshotRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := r.limiter.Acquire(ctx); err != nil {
			return err
		}
		snapshot, err := feed.Snapshot(ctx)
		if err == nil {
			return r.book.LoadSnapshot(snapshot)
		}
		lastErr = err
		if errors.Is(err, types.ErrSymbolNotFound) {
			return err
		}
		if attempt < retries {
			if err := r.sleep(ctx, r.cfg.snapshotRetryDelay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: %v", types.ErrInitializationFailed, lastErr)
}

// consume applies stream events until the channels close or ctx is done. A
// detected sequence gap triggers an inline resync; a failed resync forces a
// reconnect.
func (r *runner) consume(ctx context.Context, feed venue.Feed) {
	updates := feed.Updates()
	trades := feed.Trades()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			summary := r.book.ApplyDelta(update)
			if summary.Applied {
				r.recorder.RecordDelta(r.symbol, update.EventTime, summary)
			}
			if summary.GapDetected {
				r.log.WithFields(logrus.Fields{
					"first_id": update.FirstUpdateID,
					"book_id":  r.book.LastUpdateID(),
				}).Warn("sequence gap, resynchronizing")
				r.setState(StateSynchronizing, feed)
				if err := r.syncSnapshot(ctx, feed); err != nil {
					r.log.WithError(err).Warn("gap resync failed")
					return
				}
				r.setState(StateStreaming, feed)
			}
		case trade, ok := <-trades:
			if !ok {
				return
			}
			r.recorder.RecordTrade(trade)
		}
	}
}

func (r *runner) setState(state ConnState, feed venue.Feed) {
	r.mu.Lock()
	r.state = state
	r.feed = feed
	r.mu.Unlock()
}

// State returns the current connection state.
func (r *runner) State() ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Connected reports whether the runner is actively streaming.
func (r *runner) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state == StateStreaming && r.feed != nil && r.feed.IsConnected()
}
