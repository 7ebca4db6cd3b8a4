// Package httpapi exposes the live-view, snapshot, and event-broadcast
// endpoints over HTTP and WebSocket. It is the external HTTP surface this
// pipeline owns directly; the broader REST API (stream CRUD, rules,
// resolution) is a separate collaborator.
package httpapi

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"camguard/internal/eventbus"
	"camguard/internal/framestore"
)

// multipartBoundary is the boundary used by the live-view MJPEG stream.
const multipartBoundary = "frame"

// Server wires the FrameStore and event Bus to HTTP handlers.
type Server struct {
	frameStore *framestore.Store
	bus        *eventbus.Bus
	upgrader   websocket.Upgrader
}

// New builds a Server.
func New(frameStore *framestore.Store, bus *eventbus.Bus) *Server {
	return &Server{
		frameStore: frameStore,
		bus:        bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes registers this server's handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/streams/", s.handleStreamRoute)
	mux.HandleFunc("/ws/events", s.handleWSEvents)
}

// handleStreamRoute dispatches /api/streams/{id}/{snapshot|live}.
func (s *Server) handleStreamRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/streams/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.Error(w, "invalid path, expected /api/streams/{id}/{snapshot|live}", http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(parts[0])
	if err != nil {
		http.Error(w, "invalid stream id", http.StatusBadRequest)
		return
	}

	switch parts[1] {
	case "snapshot":
		s.handleSnapshot(w, r, id)
	case "live":
		s.handleLive(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handleSnapshot returns the latest JPEG for id, or 404 if none has arrived
// yet.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	frame, ok := s.frameStore.GetLatest(id)
	if !ok {
		http.Error(w, "no frame available for this stream", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(frame)))
	w.WriteHeader(http.StatusOK)
	w.Write(frame)
}

// handleLive streams live JPEGs as multipart/x-mixed-replace. The only error
// it sends is a 500 when the response writer cannot flush; once streaming has
// started it signals nothing on the wire: if the stream produces no frames the
// connection just stalls until the client disconnects, matching the
// "no error signaling on the wire" policy for this endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, unsubscribe := s.frameStore.Subscribe(id)
	defer unsubscribe()

	w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", multipartBoundary))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, open := <-ch:
			if !open {
				return
			}
			if err := writeMultipartFrame(w, frame.Data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeMultipartFrame(w http.ResponseWriter, jpeg []byte) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", multipartBoundary, len(jpeg))
	if _, err := w.Write([]byte(header)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// handleWSEvents upgrades to a WebSocket and streams every broadcast event
// (and lag warnings) as text-framed JSON until the client disconnects.
func (s *Server) handleWSEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[httpapi] /ws/events upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			if err := writeWSMessage(conn, msg); err != nil {
				return
			}
		}
	}
}

func writeWSMessage(conn *websocket.Conn, msg eventbus.Message) error {
	if msg.Record == nil {
		return conn.WriteJSON(map[string]interface{}{
			"type":   "lag_warning",
			"missed": msg.Missed,
		})
	}
	return conn.WriteJSON(msg.Record)
}
