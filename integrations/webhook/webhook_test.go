package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"teaquest/core"
)

func TestSink_OnEventPostsToEndpoints(t *testing.T) {
	var hits int32
	var last core.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewDecoder(r.Body).Decode(&last)
		_ = r.Body.Close()
	}))
	defer srv.Close()

	sink := New([]string{srv.URL})
	sink.OnEvent(context.Background(), core.NewLevelUp(1, 10))

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
	if last.Type != core.EventLevelUp || last.Level != 10 {
		t.Fatalf("unexpected payload %+v", last)
	}
}

func TestSink_TypeFilter(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithEventTypes(core.EventQuestCompleted))
	sink.OnEvent(context.Background(), core.NewLevelUp(1, 10))
	sink.OnEvent(context.Background(), core.Event{Type: core.EventQuestCompleted, UserID: 1})

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
}

func TestSink_NoEndpointsIsNoop(t *testing.T) {
	sink := New(nil)
	sink.OnEvent(context.Background(), core.NewLevelUp(1, 2))
}
