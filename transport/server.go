// Package transport implements the REST control surface and the
// websocket streaming surface §6 describes: createRoom, joinRoom,
// leaveRoom, startHand, act, endRoom, listRooms over gin, and
// subscribe/unsubscribe over a gorilla/websocket push channel.
//
// Grounded on pronitdas-poker-platform-b2b's cmd/game-server/main.go
// (gin + gorilla/websocket wiring) and the teacher's internal/server
// message/connection pattern for per-connection push loops.
package transport

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/lox/holdemroom/apperr"
	"github.com/lox/holdemroom/handengine"
	"github.com/lox/holdemroom/poker"
	"github.com/lox/holdemroom/room"
)

// Server wires the Registry and Coordinator into HTTP handlers.
type Server struct {
	registry *room.Registry
	logger   *log.Logger
	engine   *gin.Engine
}

// New constructs a Server and registers its routes on a fresh gin engine.
func New(registry *room.Registry, logger *log.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{registry: registry, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Engine exposes the underlying gin engine, e.g. for http.ListenAndServe.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) routes() {
	s.engine.POST("/rooms", s.createRoom)
	s.engine.GET("/rooms", s.listRooms)
	s.engine.POST("/rooms/:id/join", s.joinRoom)
	s.engine.POST("/rooms/:id/leave", s.leaveRoom)
	s.engine.POST("/rooms/:id/start", s.startHand)
	s.engine.POST("/rooms/:id/act", s.act)
	s.engine.POST("/rooms/:id/end", s.endRoom)
	s.engine.GET("/rooms/:id/subscribe", s.subscribe)
}

type createRoomRequest struct {
	Name      string `json:"name" binding:"required"`
	CreatorID string `json:"creatorId" binding:"required"`
}

func (s *Server) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := s.registry.Create(c.Request.Context(), req.CreatorID, req.Name)
	if !writeErr(c, err) {
		c.JSON(http.StatusOK, room.BuildView(r, req.CreatorID))
	}
}

func (s *Server) listRooms(c *gin.Context) {
	summaries, err := s.registry.List(c.Request.Context())
	if !writeErr(c, err) {
		c.JSON(http.StatusOK, summaries)
	}
}

type playerRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	Username string `json:"username"`
}

func (s *Server) joinRoom(c *gin.Context) {
	inst, ok := s.lookup(c)
	if !ok {
		return
	}
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := inst.Join(c.Request.Context(), req.PlayerID, req.Username)
	if !writeErr(c, err) {
		c.JSON(http.StatusOK, room.BuildView(r, req.PlayerID))
	}
}

func (s *Server) leaveRoom(c *gin.Context) {
	inst, ok := s.lookup(c)
	if !ok {
		return
	}
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := inst.Leave(c.Request.Context(), req.PlayerID); !writeErr(c, err) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (s *Server) startHand(c *gin.Context) {
	inst, ok := s.lookup(c)
	if !ok {
		return
	}
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deck := poker.New(rand.New(rand.NewSource(time.Now().UnixNano())))
	r, _, err := inst.Submit(c.Request.Context(), handengine.StartHand(req.PlayerID, deck))
	if !writeErr(c, err) {
		c.JSON(http.StatusOK, room.BuildView(r, req.PlayerID))
	}
}

type actRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	Action   string `json:"action" binding:"required"`
	Amount   int    `json:"amount"`
}

func (s *Server) act(c *gin.Context) {
	inst, ok := s.lookup(c)
	if !ok {
		return
	}
	var req actRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap := inst.Snapshot()
	seat, ok := snap.SeatIndex(req.PlayerID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "player does not hold a seat in this room"})
		return
	}
	r, _, err := inst.Submit(c.Request.Context(), handengine.PlayerAction(seat, handengine.ActionKind(req.Action), req.Amount))
	if !writeErr(c, err) {
		c.JSON(http.StatusOK, room.BuildView(r, req.PlayerID))
	}
}

func (s *Server) endRoom(c *gin.Context) {
	inst, ok := s.lookup(c)
	if !ok {
		return
	}
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, _, err := inst.Submit(c.Request.Context(), handengine.ForceEnd(req.PlayerID))
	if !writeErr(c, err) {
		c.JSON(http.StatusOK, room.BuildView(r, req.PlayerID))
	}
}

func (s *Server) lookup(c *gin.Context) (*room.Instance, bool) {
	inst, ok := s.registry.Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return nil, false
	}
	return inst, true
}

// writeErr classifies err per §7's three-way partition and writes the
// matching HTTP response. It returns true if it wrote a response (i.e.
// err was non-nil), mirroring the teacher's errgroup-style "handled"
// booleans.
func writeErr(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	var clientErr *apperr.ClientError
	var transientErr *apperr.TransientError
	var invariantErr *apperr.InvariantViolation
	switch {
	case errors.As(err, &clientErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": clientErr.Message, "code": clientErr.Code})
	case errors.As(err, &transientErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": transientErr.Error()})
	case errors.As(err, &invariantErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
	return true
}
