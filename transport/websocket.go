package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lox/holdemroom/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// envelope is the wire shape of one streamed message (§6): a kind tag plus
// the redacted room view it carries. The first message on every
// subscription is always kind "snapshot".
type envelope struct {
	Kind string    `json:"kind"`
	Room room.View `json:"room"`
}

// subscribe upgrades to a websocket and streams room.View updates for
// playerID until the connection closes, at which point it runs the
// coordinator's disconnect flow (§4.D, §6 "Server-side disconnects trigger
// the coordinator's disconnect flow").
//
// Grounded on the teacher's internal/server/connection.go per-connection
// read/write pump, generalized from a single shared table view into a
// per-player redacted view pushed through room.Bus.
func (s *Server) subscribe(c *gin.Context) {
	playerID := c.Query("playerId")
	if playerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "playerId is required"})
		return
	}
	inst, ok := s.lookup(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("websocket upgrade failed", "err", err)
		}
		return
	}
	defer conn.Close()

	seat, hasSeat := inst.Snapshot().SeatIndex(playerID)

	writeQueue := make(chan envelope, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range writeQueue {
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}()

	// Queue the snapshot before subscribing so no bus update can precede it.
	select {
	case writeQueue <- envelope{Kind: "snapshot", Room: room.BuildView(inst.Snapshot(), playerID)}:
	default:
	}

	subID := uuid.NewString()
	push := func(v room.View) {
		select {
		case writeQueue <- envelope{Kind: "update", Room: v}:
		default:
		}
	}
	inst.Bus().Subscribe(subID, playerID, push)
	defer inst.Bus().Unsubscribe(subID)

	if hasSeat {
		if _, _, err := inst.Reconnect(c.Request.Context(), seat); err != nil && s.logger != nil {
			s.logger.Debug("reconnect-on-subscribe failed", "err", err)
		}
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(writeQueue)
	<-done
	if hasSeat {
		if _, _, err := inst.Disconnect(c.Request.Context(), seat); err != nil && s.logger != nil {
			s.logger.Debug("disconnect-on-close failed", "err", err)
		}
	}
}
