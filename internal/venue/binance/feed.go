package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"depthwatch/internal/types"
	"depthwatch/internal/venue"
)

// Config holds the per-feed connection settings.
type Config struct {
	Symbol        string
	WSBaseURL     string
	RestBaseURL   string
	SnapshotLimit int
}

// Feed implements venue.Feed for Binance spot using a single combined
// stream carrying depth deltas and aggregated trades.
type Feed struct {
	symbol     string
	wsURL      string
	restURL    string
	wsConn     *websocket.Conn
	updateChan chan *venue.DepthUpdate
	tradeChan  chan *venue.Trade
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	health     atomic.Value // stores venue.HealthStatus
	log        *logrus.Entry
}

// New creates a feed for one symbol. Connect must be called before Updates
// or Trades deliver anything.
func New(cfg Config, logger *logrus.Logger) *Feed {
	ctx, cancel := context.WithCancel(context.Background())

	lower := strings.ToLower(cfg.Symbol)
	wsURL := fmt.Sprintf("%s/stream?streams=%s@depth@100ms/%s@aggTrade",
		strings.TrimRight(cfg.WSBaseURL, "/"), lower, lower)
	limit := cfg.SnapshotLimit
	if limit <= 0 {
		limit = 1000
	}
	restURL := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d",
		strings.TrimRight(cfg.RestBaseURL, "/"), strings.ToUpper(cfg.Symbol), limit)

	f := &Feed{
		symbol:     strings.ToUpper(cfg.Symbol),
		wsURL:      wsURL,
		restURL:    restURL,
		updateChan: make(chan *venue.DepthUpdate, 1000),
		tradeChan:  make(chan *venue.Trade, 1000),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.WithFields(logrus.Fields{"component": "feed", "symbol": strings.ToUpper(cfg.Symbol)}),
	}
	f.health.Store(venue.HealthStatus{})
	return f
}

// Symbol returns the subscribed trading symbol.
func (f *Feed) Symbol() string {
	return f.symbol
}

// Connect establishes the WebSocket connection and starts the read loop.
func (f *Feed) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		f.incrementErrorCount()
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	f.wsConn = conn
	f.setConnected(true)
	f.log.Info("websocket connected")

	go f.readMessages()
	return nil
}

// Close closes the WebSocket connection.
func (f *Feed) Close() error {
	f.cancel()

	if f.wsConn == nil {
		return nil
	}

	select {
	case <-f.done:
	default:
		close(f.done)
	}

	err := f.wsConn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		f.log.WithError(err).Debug("close message failed")
	}

	f.setConnected(false)
	return f.wsConn.Close()
}

// Snapshot fetches the current top-N levels via REST.
func (f *Feed) Snapshot(ctx context.Context) (*venue.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.restURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		f.incrementErrorCount()
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.incrementErrorCount()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr APIError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code == -1121 {
			return nil, fmt.Errorf("%s: %w", f.symbol, types.ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("snapshot request failed: status %d", resp.StatusCode)
	}

	var raw SnapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		f.incrementErrorCount()
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return f.convertSnapshot(&raw), nil
}

// Updates returns the depth delta channel.
func (f *Feed) Updates() <-chan *venue.DepthUpdate {
	return f.updateChan
}

// Trades returns the aggregated trade channel.
func (f *Feed) Trades() <-chan *venue.Trade {
	return f.tradeChan
}

// IsConnected reports current stream connectivity.
func (f *Feed) IsConnected() bool {
	return f.healthStatus().Connected
}

// Health returns connection health counters.
func (f *Feed) Health() venue.HealthStatus {
	return f.healthStatus()
}

// readMessages continuously reads combined-stream messages and fans them out
// to the update and trade channels.
func (f *Feed) readMessages() {
	defer close(f.updateChan)
	defer close(f.tradeChan)
	defer f.setConnected(false)

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.done:
			return
		default:
			var msg WSMessage
			if err := f.wsConn.ReadJSON(&msg); err != nil {
				f.incrementErrorCount()
				f.log.WithError(err).Warn("websocket read error")
				return
			}

			f.recordMessage()

			switch {
			case strings.HasSuffix(msg.Stream, "@depth@100ms"):
				var update DepthUpdate
				if err := json.Unmarshal(msg.Data, &update); err != nil {
					f.incrementErrorCount()
					continue
				}
				f.deliverUpdate(f.convertDepthUpdate(&update))
			case strings.HasSuffix(msg.Stream, "@aggTrade"):
				var trade AggTrade
				if err := json.Unmarshal(msg.Data, &trade); err != nil {
					f.incrementErrorCount()
					continue
				}
				f.deliverTrade(f.convertTrade(&trade))
			}
		}
	}
}

func (f *Feed) deliverUpdate(update *venue.DepthUpdate) {
	select {
	case f.updateChan <- update:
	case <-f.ctx.Done():
	case <-f.done:
	default:
		f.log.Warn("update channel full, dropping delta")
	}
}

func (f *Feed) deliverTrade(trade *venue.Trade) {
	select {
	case f.tradeChan <- trade:
	case <-f.ctx.Done():
	case <-f.done:
	default:
		f.log.Warn("trade channel full, dropping trade")
	}
}

// convertSnapshot converts a venue snapshot to canonical format.
func (f *Feed) convertSnapshot(raw *SnapshotResponse) *venue.Snapshot {
	bids := make([]venue.PriceLevel, len(raw.Bids))
	for i, bid := range raw.Bids {
		bids[i] = venue.PriceLevel{Price: bid[0], Quantity: bid[1]}
	}

	asks := make([]venue.PriceLevel, len(raw.Asks))
	for i, ask := range raw.Asks {
		asks[i] = venue.PriceLevel{Price: ask[0], Quantity: ask[1]}
	}

	return &venue.Snapshot{
		Symbol:       f.symbol,
		LastUpdateID: raw.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
		Timestamp:    time.Now(),
	}
}

// convertDepthUpdate converts a stream delta to canonical format.
func (f *Feed) convertDepthUpdate(update *DepthUpdate) *venue.DepthUpdate {
	bids := make([]venue.PriceLevel, len(update.Bids))
	for i, bid := range update.Bids {
		bids[i] = venue.PriceLevel{Price: bid[0], Quantity: bid[1]}
	}

	asks := make([]venue.PriceLevel, len(update.Asks))
	for i, ask := range update.Asks {
		asks[i] = venue.PriceLevel{Price: ask[0], Quantity: ask[1]}
	}

	return &venue.DepthUpdate{
		Symbol:        update.Symbol,
		EventTime:     time.UnixMilli(update.EventTime),
		FirstUpdateID: update.FirstUpdateID,
		FinalUpdateID: update.FinalUpdateID,
		Bids:          bids,
		Asks:          asks,
	}
}

// convertTrade converts a stream trade to canonical format.
func (f *Feed) convertTrade(trade *AggTrade) *venue.Trade {
	return &venue.Trade{
		Symbol:     trade.Symbol,
		EventTime:  time.UnixMilli(trade.EventTime),
		Price:      trade.Price,
		Quantity:   trade.Quantity,
		BuyerMaker: trade.BuyerMaker,
	}
}

func (f *Feed) healthStatus() venue.HealthStatus {
	if status, ok := f.health.Load().(venue.HealthStatus); ok {
		return status
	}
	return venue.HealthStatus{}
}

func (f *Feed) setConnected(connected bool) {
	status := f.healthStatus()
	status.Connected = connected
	f.health.Store(status)
}

func (f *Feed) recordMessage() {
	status := f.healthStatus()
	status.MessageCount++
	status.LastMessage = time.Now()
	f.health.Store(status)
}

func (f *Feed) incrementErrorCount() {
	status := f.healthStatus()
	status.ErrorCount++
	f.health.Store(status)
}
