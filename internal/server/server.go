package server

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vaultwatch/internal/hub"
	"vaultwatch/internal/registry"
)

const (
	subscriberBuffer = 64
	writeTimeout     = 5 * time.Second
)

// VaultRegistry is the registry surface exposed over the management API.
type VaultRegistry interface {
	Add(address string) error
	Remove(address string) error
	List() iter.Seq[string]
}

// Server exposes the registry management API and the alert subscriber
// protocol.
type Server struct {
	reg     VaultRegistry
	alerts  *hub.Hub
	history *hub.History
	logger  *zap.Logger
}

// New builds a Server.
func New(reg VaultRegistry, alerts *hub.Hub, history *hub.History, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{reg: reg, alerts: alerts, history: history, logger: logger}
}

// Register wires the routes onto the given Echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	e.GET("/vaults", s.handleListVaults)
	e.POST("/vaults", s.handleAddVault)
	e.DELETE("/vaults/:address", s.handleRemoveVault)
	e.GET("/alerts/recent", s.handleRecentAlerts)
	e.GET("/alerts", s.handleAlertStream)
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "online",
		"service":   "vaultwatch",
		"websocket": "/alerts",
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

type addVaultRequest struct {
	Address string `json:"address"`
}

type vaultStatusResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleAddVault(c echo.Context) error {
	var req addVaultRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, vaultStatusResponse{Status: "invalidAddress"})
	}

	err := s.reg.Add(req.Address)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, vaultStatusResponse{Status: "accepted"})
	case errors.Is(err, registry.ErrAlreadyWatched):
		return c.JSON(http.StatusOK, vaultStatusResponse{Status: "alreadyWatched"})
	case errors.Is(err, registry.ErrInvalidAddress):
		return c.JSON(http.StatusBadRequest, vaultStatusResponse{Status: "invalidAddress"})
	default:
		s.logger.Error("add vault failed", zap.String("address", req.Address), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, vaultStatusResponse{Status: "error"})
	}
}

func (s *Server) handleRemoveVault(c echo.Context) error {
	address := c.Param("address")

	err := s.reg.Remove(address)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, vaultStatusResponse{Status: "removed"})
	case errors.Is(err, registry.ErrNotWatched):
		return c.JSON(http.StatusNotFound, vaultStatusResponse{Status: "notWatched"})
	case errors.Is(err, registry.ErrInvalidAddress):
		return c.JSON(http.StatusBadRequest, vaultStatusResponse{Status: "invalidAddress"})
	default:
		s.logger.Error("remove vault failed", zap.String("address", address), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, vaultStatusResponse{Status: "error"})
	}
}

func (s *Server) handleListVaults(c echo.Context) error {
	return c.JSON(http.StatusOK, slices.Collect(s.reg.List()))
}

func (s *Server) handleRecentAlerts(c echo.Context) error {
	return c.JSON(http.StatusOK, s.history.Snapshot())
}

// handleAlertStream upgrades to a websocket, sends a welcome message, and
// pushes one JSON object per confirmed alert. Client messages are drained
// and ignored. A write failure removes this subscriber only; no backlog
// is replayed on reconnect.
func (s *Server) handleAlertStream(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	sub := s.alerts.Subscribe(subscriberBuffer)
	defer s.alerts.Unsubscribe(sub)

	s.logger.Info("alert subscriber connected", zap.String("remote", c.Request().RemoteAddr))

	welcome := map[string]string{"msg": "connected to vaultwatch alert stream"}
	if err := wsjson.Write(ctx, conn, welcome); err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
		return nil
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return nil
		case <-readErr:
			s.logger.Info("alert subscriber disconnected", zap.String("remote", c.Request().RemoteAddr))
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return nil
		case alert, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return nil
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, alert)
			cancelWrite()
			if err != nil {
				s.logger.Warn("alert delivery failed, dropping subscriber",
					zap.String("remote", c.Request().RemoteAddr),
					zap.Error(err),
				)
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return nil
			}
		}
	}
}
