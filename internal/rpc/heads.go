package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
)

// HeadWatcher subscribes to newHeads over WebSocket and fans block numbers out
// to subscribers. Receipt polling uses it to wake at block arrival instead of
// waiting for the next poll tick. Purely an optimization: when the socket is
// unavailable the trackers fall back to interval polling on their own.
type HeadWatcher struct {
	wsURL  string
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan uint64]struct{}
}

// NewHeadWatcher creates a head watcher for the given WebSocket endpoint.
func NewHeadWatcher(wsURL string, logger *slog.Logger) *HeadWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeadWatcher{
		wsURL:  wsURL,
		logger: logger,
		subs:   make(map[chan uint64]struct{}),
	}
}

// Subscribe returns a channel of new block numbers and a cancel func.
// The channel is buffered; slow receivers miss heads rather than block the watcher.
func (w *HeadWatcher) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 4)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	return ch, func() {
		w.mu.Lock()
		delete(w.subs, ch)
		w.mu.Unlock()
	}
}

func (w *HeadWatcher) broadcast(blockNum uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- blockNum:
		default:
		}
	}
}

// Run connects, subscribes to newHeads, and broadcasts until ctx is done.
// Reconnects with a fixed delay on socket errors.
func (w *HeadWatcher) Run(ctx context.Context) {
	for {
		if err := w.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("newHeads subscription lost, reconnecting",
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (w *HeadWatcher) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
		ID:      1,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	w.logger.Debug("subscribed to newHeads", slog.String("url", w.wsURL))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				return fmt.Errorf("socket closed: %w", err)
			}
			return fmt.Errorf("read: %w", err)
		}

		var notif struct {
			Method string `json:"method"`
			Params struct {
				Result struct {
					Number string `json:"number"`
				} `json:"result"`
			} `json:"params"`
		}
		if err := json.Unmarshal(msg, &notif); err != nil || notif.Method != "eth_subscription" {
			continue // subscription ack or unrelated frame
		}

		num, err := hexutil.DecodeUint64(notif.Params.Result.Number)
		if err != nil {
			continue
		}
		w.broadcast(num)
	}
}
