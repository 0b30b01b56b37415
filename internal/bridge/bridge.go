// Package bridge serves engine state over HTTP for overlay clients: an
// SSE event stream, the latest frame as JPEG, and a status document.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/launchdarkly/eventsource"
	"golang.org/x/sync/errgroup"

	"sparkeye/internal/logging"
	"sparkeye/internal/watch"
)

const sseChannel = "session"

// Server republishes engine events over HTTP. Zero value is not usable;
// build one with New.
type Server struct {
	engine *watch.Engine
	addr   string

	es      *eventsource.Server
	httpSrv *http.Server
	nextID  uint64

	mu       sync.Mutex
	boundTo  string
	shutdown bool
}

// New builds a bridge for engine listening on addr ("127.0.0.1:8787",
// ":0" for an ephemeral port).
func New(engine *watch.Engine, addr string) *Server {
	return &Server{engine: engine, addr: addr}
}

// Addr returns the bound listen address once Run has started, or the
// configured address before that.
func (b *Server) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.boundTo != "" {
		return b.boundTo
	}
	return b.addr
}

// Run serves until ctx is cancelled, pumping events into the SSE
// stream. New subscribers are replayed the current status first.
func (b *Server) Run(ctx context.Context, events <-chan watch.Event) error {
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("bridge listen on %s: %w", b.addr, err)
	}
	b.mu.Lock()
	b.boundTo = ln.Addr().String()
	b.mu.Unlock()

	b.es = eventsource.NewServer()
	b.es.ReplayAll = true
	b.es.Register(sseChannel, statusRepo{engine: b.engine})

	mux := http.NewServeMux()
	mux.HandleFunc("/events", b.handleEvents)
	mux.HandleFunc("/snapshot.jpg", b.handleSnapshot)
	mux.HandleFunc("/status.json", b.handleStatus)
	b.httpSrv = &http.Server{Handler: mux}

	logging.Bridge("listening on http://%s", b.boundTo)

	pumpDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := b.httpSrv.Serve(ln)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer close(pumpDone)
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				b.publish(ev)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		// The pump must stop before the SSE server closes; Publish on a
		// closed server blocks.
		<-pumpDone
		b.es.Close()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return b.httpSrv.Shutdown(shCtx)
	})

	err = g.Wait()
	logging.Bridge("stopped")
	return err
}

func (b *Server) publish(ev watch.Event) {
	// Snapshot frames travel over /snapshot.jpg, not the event stream.
	payload, err := json.Marshal(eventPayload(ev))
	if err != nil {
		logging.BridgeDebug("event not encodable: %v", err)
		return
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.es.Publish([]string{sseChannel}, sseEvent{
		id:   strconv.FormatUint(id, 10),
		kind: string(ev.Kind),
		data: string(payload),
	})
}

func (b *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	b.es.Handler(sseChannel).ServeHTTP(w, r)
}

func (b *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	img, seq, at := b.engine.LatestFrame()
	if img == nil {
		http.Error(w, "no frame captured yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	w.Header().Set("X-Frame-At", at.UTC().Format(time.RFC3339Nano))
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: 85}); err != nil {
		logging.BridgeDebug("snapshot encode failed: %v", err)
	}
}

func (b *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(statusPayload(b.engine.Snapshot())); err != nil {
		logging.BridgeDebug("status encode failed: %v", err)
	}
}

// statusRepo replays the current engine status to new SSE subscribers.
type statusRepo struct {
	engine *watch.Engine
}

func (r statusRepo) Replay(channel, id string) chan eventsource.Event {
	ch := make(chan eventsource.Event, 1)
	payload, err := json.Marshal(statusPayload(r.engine.Snapshot()))
	if err == nil {
		ch <- sseEvent{kind: "status", data: string(payload)}
	}
	close(ch)
	return ch
}

// sseEvent adapts one JSON payload to the eventsource.Event interface.
type sseEvent struct {
	id   string
	kind string
	data string
}

func (e sseEvent) Id() string    { return e.id }
func (e sseEvent) Event() string { return e.kind }
func (e sseEvent) Data() string  { return e.data }
