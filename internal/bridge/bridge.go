// Package bridge is the volume control boundary: a local websocket endpoint
// the desktop client add-on connects to. Volume reads are served from a
// cache the client keeps in sync; writes and change events travel as JSON
// frames over the socket.
package bridge

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/volume"
)

// ErrUnavailable is returned when no client is connected. Callers treat it
// as a degraded no-op, never a fault.
var ErrUnavailable = errors.New("bridge: no client connected")

// frame is the wire format in both directions.
//
//	client -> server: {"op":"hello"}, {"op":"volume","user_id":...,"volume":...}
//	server -> client: {"op":"set_volume","user_id":...,"volume":...}
type frame struct {
	Op     string  `json:"op"`
	UserID string  `json:"user_id,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

// VolumeSink receives externally-sourced volume change reports, in arrival
// order.
type VolumeSink interface {
	HandleVolumeChange(userID string, internal float64)
}

// Bridge implements volume.Controller over a single client connection. A
// new connection replaces the previous one.
type Bridge struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	volumes map[string]float64
	sink    VolumeSink

	upgrader websocket.Upgrader
}

var _ volume.Controller = (*Bridge)(nil)

func New() *Bridge {
	return &Bridge{volumes: make(map[string]float64)}
}

// SetSink wires the change-event consumer. Must be called before the
// listener starts accepting connections.
func (b *Bridge) SetSink(sink VolumeSink) {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
}

// Handler upgrades an HTTP request to the bridge websocket and runs its
// read loop. One frame is processed at a time, so events reach the sink in
// the order the client sent them.
func (b *Bridge) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("bridge: upgrade failed", "err", err)
			return
		}
		b.mu.Lock()
		if b.conn != nil {
			_ = b.conn.Close()
		}
		b.conn = conn
		b.mu.Unlock()
		logging.Infow("bridge: client connected", "remote", conn.RemoteAddr().String())

		go b.readLoop(conn)
	}
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
		}
		b.mu.Unlock()
		_ = conn.Close()
		logging.Infow("bridge: client disconnected")
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Op {
		case "hello":
			logging.Infow("bridge: client hello")
		case "volume":
			if f.UserID == "" {
				continue
			}
			b.mu.Lock()
			b.volumes[f.UserID] = f.Volume
			sink := b.sink
			b.mu.Unlock()
			logging.Debugw("bridge: volume report", "user.id", f.UserID, "volume", f.Volume)
			if sink != nil {
				sink.HandleVolumeChange(f.UserID, f.Volume)
			}
		default:
			logging.Debugw("bridge: unknown op", "op", f.Op)
		}
	}
}

// Get returns the cached volume for a user, DefaultVolume when unset.
func (b *Bridge) Get(userID string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return 0, ErrUnavailable
	}
	if v, ok := b.volumes[userID]; ok {
		return v, nil
	}
	return volume.DefaultVolume, nil
}

// Set sends a set_volume command to the client and updates the cache. The
// client echoes the change back as a volume report.
func (b *Bridge) Set(userID string, internal float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return ErrUnavailable
	}
	if err := b.conn.WriteJSON(frame{Op: "set_volume", UserID: userID, Volume: internal}); err != nil {
		return err
	}
	b.volumes[userID] = internal
	return nil
}

// Known returns a copy of every cached non-default volume.
func (b *Bridge) Known() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.volumes))
	for id, v := range b.volumes {
		if v == volume.DefaultVolume {
			continue
		}
		out[id] = v
	}
	return out
}
