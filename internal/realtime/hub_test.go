package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubDeliversInOrderAndSurvivesReconnect(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := "anon:abc"

	clientA := hub.NewSSEClient(channel)
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventChatMessagePatched, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventChatMessageDone, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventChatMessagePatched {
		t.Fatalf("first event: got=%s", got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventChatMessageDone {
		t.Fatalf("second event: got=%s", got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("subscribers=%d after close", n)
	}
	// no panic broadcasting to a channel whose only client left
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventChatMessagePatched})

	clientB := hub.NewSSEClient(channel)
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventChatSessionUpdated})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventChatSessionUpdated {
		t.Fatalf("reconnect event: got=%s", got.Event)
	}
}

func TestSSEHubIsolatesChannels(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	a := hub.NewSSEClient("user:a")
	b := hub.NewSSEClient("user:b")
	hub.AddChannel(a, "user:a")
	hub.AddChannel(b, "user:b")

	hub.Broadcast(SSEMessage{Channel: "user:a", Event: SSEEventChatMessagePatched})
	recvMessage(t, a.Outbound, time.Second)
	select {
	case msg := <-b.Outbound:
		t.Fatalf("user:b received a message for user:a: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	c := hub.NewSSEClient("user:x")
	hub.AddChannel(c, "user:x")
	for i := 0; i < outboundBuffer+10; i++ {
		hub.Broadcast(SSEMessage{Channel: "user:x", Event: SSEEventChatMessagePatched})
	}
	if len(c.Outbound) != outboundBuffer {
		t.Fatalf("buffer len=%d want %d", len(c.Outbound), outboundBuffer)
	}
}

func TestSSEHubServeHTTPWritesEvents(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	c := hub.NewSSEClient("user:s")
	hub.AddChannel(c, "user:s")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeHTTP(w, r, c)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}

	hub.Broadcast(SSEMessage{Channel: "user:s", Event: SSEEventChatMessageDone, Data: map[string]any{"messageId": "m1"}})

	sc := bufio.NewScanner(resp.Body)
	var sawEvent, sawData bool
	for sc.Scan() {
		line := sc.Text()
		if line == "event: ChatMessageDone" {
			sawEvent = true
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"messageId":"m1"`) {
			sawData = true
			break
		}
	}
	if !sawEvent || !sawData {
		t.Fatalf("event=%v data=%v", sawEvent, sawData)
	}
}
