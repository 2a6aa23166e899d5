package http

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// A UI reconnecting mid-exam swaps the subscriber while the engine and
// the exam timer keep publishing; the hub must never send on a channel
// a resubscribe just closed.
func TestHubPublishDuringResubscribe(t *testing.T) {
	h := &eventHub{}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					h.publish(Event{Type: "tick"})
				}
			}
		}()
	}

	deadline := time.After(200 * time.Millisecond)
	var last chan Event
loop:
	for {
		select {
		case <-deadline:
			break loop
		default:
			last = h.subscribe()
		}
	}
	close(stop)
	wg.Wait()
	h.unsubscribe(last)
}

func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestEventsFeedPushesStateOnMutation(t *testing.T) {
	srv, bankPath := newTestServer(t)
	id := openTestSession(t, srv, bankPath)
	base := srv.URL + "/sessions/" + id

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, base+"/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	// the handler registers its subscriber right after the handshake
	time.Sleep(50 * time.Millisecond)

	doJSON(t, "POST", base+"/load", map[string]any{"filters": map[string]string{}}, nil)

	ev := readEvent(ctx, t, conn)
	if ev.Type != "state" || ev.State == nil || ev.State.Total != 3 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestEventsSecondSubscriberSupersedesFirst(t *testing.T) {
	srv, bankPath := newTestServer(t)
	id := openTestSession(t, srv, bankPath)
	base := srv.URL + "/sessions/" + id

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	first, _, err := websocket.Dial(ctx, base+"/events", nil)
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.Close(websocket.StatusNormalClosure, "")
	time.Sleep(50 * time.Millisecond)

	second, _, err := websocket.Dial(ctx, base+"/events", nil)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.Close(websocket.StatusNormalClosure, "")
	time.Sleep(50 * time.Millisecond)

	// the first connection is closed out by the server
	if _, _, err := first.Read(ctx); err == nil {
		t.Fatal("first subscriber still receiving after being superseded")
	}

	doJSON(t, "POST", base+"/load", map[string]any{"filters": map[string]string{}}, nil)
	ev := readEvent(ctx, t, second)
	if ev.Type != "state" || ev.State == nil {
		t.Fatalf("event = %+v", ev)
	}
}
