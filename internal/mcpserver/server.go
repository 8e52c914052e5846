// Package mcpserver exposes the moderation command surface as MCP tools
// over a websocket endpoint, so agent tooling can inspect and adjust the
// local moderation state.
package mcpserver

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/moderation"
	"github.com/discord-voice-mod/internal/volume"
)

// Server hosts the MCP tool surface.
type Server struct {
	engine     *moderation.Engine
	store      *config.Store
	controller volume.Controller

	mcp      *mcp.Server
	upgrader websocket.Upgrader
}

func New(engine *moderation.Engine, store *config.Store, controller volume.Controller) *Server {
	s := &Server{
		engine:     engine,
		store:      store,
		controller: controller,
		mcp:        mcp.NewServer(&mcp.Implementation{Name: "voicemod", Version: "v0.1.0"}, nil),
	}
	s.registerTools()
	return s
}

// Handler accepts MCP websocket sessions. Each connection runs its own
// session until the client disconnects.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("mcp: ws upgrade failed", "err", err)
			return
		}
		t := newWebSocketTransport(conn)
		go func() {
			session, err := s.mcp.Connect(context.Background(), t, nil)
			if err != nil {
				logging.Warnw("mcp: connect failed", "err", err)
				_ = conn.Close()
				return
			}
			if err := session.Wait(); err != nil {
				logging.Debugw("mcp: session ended with error", "err", err)
			} else {
				logging.Debugw("mcp: session ended")
			}
		}()
	}
}
