package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleCountsStream pushes an engine snapshot on connect and after every
// cache mutation until the peer goes away or the server shuts down.
func (s *Server) handleCountsStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response
			s.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		closed := make(chan struct{})
		go readPump(conn, closed)

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			// Take the signal before reading so no mutation is missed
			changed := s.engine.Changed()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(s.engine.Snapshot()); err != nil {
				return
			}

		wait:
			for {
				select {
				case <-changed:
					break wait
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				case <-closed:
					return
				case <-s.stopCh:
					s.closeStream(conn)
					return
				}
			}
		}
	}
}

func (s *Server) closeStream(conn *websocket.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
}

// readPump drains control frames and closes done when the peer disconnects
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
