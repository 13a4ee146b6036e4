package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"strconv"
	"time"
)

// ConfigView is the read-only configuration exposed on GET /config.
type ConfigView struct {
	Device           int    `json:"device"`
	Samples          int    `json:"samples"`
	LowerHSV         [3]int `json:"lower_hsv"`
	UpperHSV         [3]int `json:"upper_hsv"`
	KernelSize       int    `json:"kernel_size"`
	OpenIterations   int    `json:"open_iterations"`
	DilateIterations int    `json:"dilate_iterations"`
	QuitKey          string `json:"quit_key"`
	Headless         bool   `json:"headless"`
}

// StateView is the live session status exposed on GET /state.
type StateView struct {
	SessionID    string  `json:"session_id"`
	State        string  `json:"state"`
	Frames       uint64  `json:"frames"`
	ReadFailures uint64  `json:"read_failures"`
	Consecutive  uint64  `json:"consecutive_failures"`
	Coverage     float64 `json:"coverage"`
	Clients      int     `json:"sse_clients"`
}

// StateFunc reports the current session status. It is called from handler goroutines.
type StateFunc func() StateView

const heartbeatInterval = 30 * time.Second

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Snapshots   *SnapshotStore
	State       StateFunc
	Config      ConfigView
	staticFS    fs.FS
}

// NewHandlers creates handlers. A nil state or snapshots makes the matching
// endpoint answer 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, snapshots *SnapshotStore, state StateFunc, cfg ConfigView, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Snapshots:   snapshots,
		State:       state,
		Config:      cfg,
		staticFS:    staticFS,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}

// HandleConfig returns the active cloak configuration.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Config)
}

// HandleState returns the session state and counters.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.State == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}
	view := h.State()
	if h.Broadcaster != nil {
		view.Clients = h.Broadcaster.Clients()
	}
	writeJSON(w, view)
}

// HandleSnapshot serves the latest composited frame as JPEG.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.Snapshots == nil {
		http.Error(w, "snapshots disabled", http.StatusServiceUnavailable)
		return
	}
	data, at, ok := h.Snapshots.Latest()
	if !ok {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
	_, _ = w.Write(data)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

// HandleStatusStream streams log lines and state changes as Server-Sent Events.
// The current state is sent first so a late client does not wait for a transition.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	if h.Broadcaster == nil {
		http.Error(w, "no status stream", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	_, _ = w.Write([]byte(": connected\n\n"))
	if h.State != nil {
		if data, err := json.Marshal(StatusEvent{
			Time:  time.Now().Format(time.RFC3339),
			Level: LevelState,
			Msg:   h.State().State,
		}); err == nil {
			_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
