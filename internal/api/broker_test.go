package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/genricoloni/hificlock/internal/domain"
	"go.uber.org/zap"
)

func TestBroker_SubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(zap.NewNop())
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestBroker_PublishDelivery(t *testing.T) {
	b := NewBroker(zap.NewNop())
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: EventScreenChanged, Data: domain.ScreenDecision{Target: domain.ScreenPlayer}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: screen.changed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"target":"player"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestBroker_CloseDisconnectsClients(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ch := b.Subscribe()
	b.Close()

	if _, ok := <-ch; ok {
		t.Error("client channel should be closed")
	}
	// Calls after close are harmless
	b.Publish(Event{Type: EventTrackChanged})
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Error("closed broker should report no clients")
	}
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribe after close should return a closed channel")
	}
}

func TestBroker_Stream(t *testing.T) {
	b := NewBroker(zap.NewNop())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.Stream(w, req, Event{Type: EventTrackChanged, Data: domain.TrackRecord{Title: "Lightning Song"}})
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("expected 1 client from handler")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish(Event{Type: EventScreenChanged, Data: domain.ScreenDecision{Target: domain.ScreenClock}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, `"title":"Lightning Song"`) {
		t.Errorf("initial event missing in %q", body)
	}
	if !strings.Contains(body, "event: screen.changed") {
		t.Errorf("published event missing in %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}
}
