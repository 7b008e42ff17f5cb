// Package sse implements a Server-Sent Events broker for workspace updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/folio/internal/models"
)

// Event types.
const (
	TypeSnapshot       = "workspace.snapshot"
	TypeRemoteSnapshot = "remote.snapshot"
	TypePostCreated    = "post.created"
	TypePostUpdated    = "post.updated"
	TypePostDeleted    = "post.deleted"
	TypePostRenamed    = "post.renamed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SnapshotData summarizes a workspace state for clients, which then fetch
// what they need over the REST API.
type SnapshotData struct {
	ProjectKey    string `json:"project_key"`
	Posts         int    `json:"posts"`
	IsLoading     bool   `json:"is_loading"`
	IsLoadingTree bool   `json:"is_loading_tree"`
}

// Snapshot builds the snapshot payload for s.
func Snapshot(s models.WorkspaceState) SnapshotData {
	return SnapshotData{
		ProjectKey:    s.ProjectKey,
		Posts:         len(s.Posts),
		IsLoading:     s.IsLoading,
		IsLoadingTree: s.IsLoadingTree,
	}
}

// RemoteSnapshotData adds batch progress of the remote mirror.
type RemoteSnapshotData struct {
	SnapshotData
	Loaded    int  `json:"loaded"`
	Total     int  `json:"total"`
	Truncated bool `json:"truncated"`
}

type postEventReq struct {
	kind string
	path string
	from string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the client set and the snapshot
// throttles, one per snapshot event type. Public methods talk to it over
// channels.
type Broker struct {
	snapshotMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	postEventCh   chan postEventReq
	snapshotCh    chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one snapshot event per
// throttle interval. The latest snapshot inside an interval is delivered when
// it ends.
func NewBroker(snapshotThrottle time.Duration) *Broker {
	if snapshotThrottle <= 0 {
		snapshotThrottle = 250 * time.Millisecond
	}

	b := &Broker{
		snapshotMin:   snapshotThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		postEventCh:   make(chan postEventReq, 256),
		snapshotCh:    make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	type throttle struct {
		last    time.Time
		pending *Event
		armed   bool
	}

	clients := make(map[chan []byte]struct{})
	throttles := make(map[string]*throttle)
	flushCh := make(chan string, 8)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}

	emitSnapshot := func(th *throttle, ev Event) {
		th.last = time.Now()
		th.pending = nil
		broadcast(ev)
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.postEventCh:
			data := map[string]string{"path": req.path}
			switch req.kind {
			case "created":
				broadcast(Event{Type: TypePostCreated, Data: data})
			case "updated":
				broadcast(Event{Type: TypePostUpdated, Data: data})
			case "deleted":
				broadcast(Event{Type: TypePostDeleted, Data: data})
			case "renamed":
				data["from"] = req.from
				broadcast(Event{Type: TypePostRenamed, Data: data})
			}

		case ev := <-b.snapshotCh:
			th, ok := throttles[ev.Type]
			if !ok {
				th = &throttle{}
				throttles[ev.Type] = th
			}
			wait := b.snapshotMin - time.Since(th.last)
			if wait <= 0 && !th.armed {
				emitSnapshot(th, ev)
				continue
			}
			th.pending = &ev
			if !th.armed {
				th.armed = true
				typ := ev.Type
				time.AfterFunc(wait, func() {
					select {
					case flushCh <- typ:
					case <-b.stopCh:
					}
				})
			}

		case typ := <-flushCh:
			th := throttles[typ]
			th.armed = false
			if th.pending != nil {
				emitSnapshot(th, *th.pending)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishPostEvent publishes a "created", "updated" or "deleted" post event.
func (b *Broker) PublishPostEvent(kind, path string) {
	b.sendPost(postEventReq{kind: kind, path: path})
}

// PublishPostRenamed publishes a post.renamed event.
func (b *Broker) PublishPostRenamed(from, to string) {
	b.sendPost(postEventReq{kind: "renamed", path: to, from: from})
}

func (b *Broker) sendPost(req postEventReq) {
	if b.closed.Load() {
		return
	}
	select {
	case b.postEventCh <- req:
	case <-b.stopped:
	}
}

// PublishSnapshot queues a throttled workspace.snapshot event.
func (b *Broker) PublishSnapshot(s SnapshotData) {
	b.sendSnapshot(Event{Type: TypeSnapshot, Data: s})
}

// PublishRemoteSnapshot queues a throttled remote.snapshot event. It is
// throttled separately from workspace snapshots.
func (b *Broker) PublishRemoteSnapshot(s RemoteSnapshotData) {
	b.sendSnapshot(Event{Type: TypeRemoteSnapshot, Data: s})
}

func (b *Broker) sendSnapshot(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.snapshotCh <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
