package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/folio/internal/models"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
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

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return ""
}

func TestPostEvents(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishPostEvent("created", "a.md")
	b.PublishPostEvent("deleted", "a.md")
	b.PublishPostRenamed("b.md", "c.md")

	if s := receive(t, ch); !strings.Contains(s, "event: post.created") || !strings.Contains(s, `"path":"a.md"`) {
		t.Errorf("created = %q", s)
	}
	if s := receive(t, ch); !strings.Contains(s, "event: post.deleted") {
		t.Errorf("deleted = %q", s)
	}
	s := receive(t, ch)
	if !strings.Contains(s, "event: post.renamed") || !strings.Contains(s, `"from":"b.md"`) || !strings.Contains(s, `"path":"c.md"`) {
		t.Errorf("renamed = %q", s)
	}
}

func TestSnapshotThrottleKeepsLatest(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 1; i <= 3; i++ {
		b.PublishSnapshot(SnapshotData{ProjectKey: "blog", Posts: i})
	}

	first := receive(t, ch)
	if !strings.Contains(first, "event: workspace.snapshot") || !strings.Contains(first, `"posts":1`) {
		t.Errorf("first snapshot = %q", first)
	}
	second := receive(t, ch)
	if !strings.Contains(second, `"posts":3`) {
		t.Errorf("trailing snapshot = %q, want the latest state", second)
	}

	select {
	case msg := <-ch:
		t.Errorf("unexpected extra event %q", msg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRemoteSnapshotThrottledSeparately(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSnapshot(SnapshotData{ProjectKey: "blog", Posts: 1})
	b.PublishRemoteSnapshot(RemoteSnapshotData{
		SnapshotData: SnapshotData{ProjectKey: "remote:github:o/r@main", Posts: 5},
		Loaded:       5,
		Total:        9,
	})

	if s := receive(t, ch); !strings.Contains(s, "event: workspace.snapshot") {
		t.Errorf("first = %q", s)
	}
	s := receive(t, ch)
	if !strings.Contains(s, "event: remote.snapshot") || !strings.Contains(s, `"loaded":5`) || !strings.Contains(s, `"total":9`) {
		t.Errorf("remote = %q", s)
	}
}

func TestSnapshotPayload(t *testing.T) {
	s := Snapshot(models.WorkspaceState{
		ProjectKey: "blog",
		Posts:      []models.Document{{Path: "a.md"}, {Path: "b.md"}},
		IsLoading:  true,
	})
	if s.ProjectKey != "blog" || s.Posts != 2 || !s.IsLoading || s.IsLoadingTree {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.PublishPostEvent("updated", "x.md")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if body := w.Body.String(); !strings.Contains(body, "event: post.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	b.PublishSnapshot(SnapshotData{Posts: 1})
	b.PublishSnapshot(SnapshotData{Posts: 2})

	b.Close()

	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if b.ClientCount() != 0 {
					t.Fatalf("expected 0 clients after close")
				}
				b.PublishPostEvent("updated", "x.md")
				b.PublishSnapshot(SnapshotData{})
				return
			}
		case <-timeout:
			t.Fatal("timeout waiting for channel close")
		}
	}
}
