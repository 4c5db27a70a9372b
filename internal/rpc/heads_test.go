package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsHeadServer upgrades connections, acks eth_subscribe, and emits one
// newHeads notification per entry in blocks.
func wsHeadServer(t *testing.T, blocks []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Consume the eth_subscribe request and ack it.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		ack := `{"jsonrpc":"2.0","result":"0xsub1","id":1}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(ack)); err != nil {
			return
		}

		for _, num := range blocks {
			notif := `{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xsub1","result":{"number":"` + num + `"}}}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(notif)); err != nil {
				return
			}
		}
		// Hold the socket open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHeadWatcher_Broadcast(t *testing.T) {
	srv := wsHeadServer(t, []string{"0x10", "0x11"})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewHeadWatcher(wsURL(srv), nil)
	heads, unsub := w.Subscribe()
	defer unsub()
	go w.Run(ctx)

	for _, want := range []uint64{0x10, 0x11} {
		select {
		case got := <-heads:
			if got != want {
				t.Errorf("head = %d, want %d", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no head received, want %d", want)
		}
	}
}

func TestHeadWatcher_FanOut(t *testing.T) {
	srv := wsHeadServer(t, []string{"0x20"})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewHeadWatcher(wsURL(srv), nil)
	heads1, unsub1 := w.Subscribe()
	defer unsub1()
	heads2, unsub2 := w.Subscribe()
	defer unsub2()
	go w.Run(ctx)

	for i, heads := range []<-chan uint64{heads1, heads2} {
		select {
		case got := <-heads:
			if got != 0x20 {
				t.Errorf("subscriber %d head = %d, want 32", i, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d received no head", i)
		}
	}
}

func TestHeadWatcher_UnsubscribeStopsDelivery(t *testing.T) {
	w := NewHeadWatcher("ws://unused", nil)
	heads, unsub := w.Subscribe()
	unsub()

	w.broadcast(5)
	select {
	case got := <-heads:
		t.Errorf("received head %d after unsubscribe", got)
	default:
	}
}

func TestHeadWatcher_SlowSubscriberDoesNotBlock(t *testing.T) {
	w := NewHeadWatcher("ws://unused", nil)
	heads, unsub := w.Subscribe()
	defer unsub()

	// Overflow the buffer; broadcast must never block.
	done := make(chan struct{})
	go func() {
		for i := uint64(0); i < 100; i++ {
			w.broadcast(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	// The earliest heads are still there; later ones were dropped.
	if got := <-heads; got != 0 {
		t.Errorf("first buffered head = %d, want 0", got)
	}
}
