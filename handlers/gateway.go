package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vps-gateway-service/models"
	"vps-gateway-service/repositories"
	"vps-gateway-service/utils"
)

// wsConn is the subset of *websocket.Conn the gateway uses. Kept as an
// interface so client sessions can be exercised without a real socket.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ClientSession is one connected websocket client and its server-side handle.
type ClientSession struct {
	ID          string
	ConnectedAt time.Time
	ClientIP    string

	conn    wsConn
	writeMu sync.Mutex
	cleanup sync.Once
}

// Send serializes one outbound message onto the session's socket. Writes are
// serialized per session and bounded by a deadline so a slow client cannot
// wedge the producer.
func (s *ClientSession) Send(msgType string, data interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(3 * time.Second)
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	err := s.conn.WriteJSON(models.WebSocketMessage{
		Type: msgType,
		Data: data,
	})

	resetErr := s.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		return err
	}
	return resetErr
}

// Gateway accepts client sockets, assigns session ids, dispatches protocol
// messages to the SSH and monitor managers, and guarantees per-session
// cleanup when a socket closes.
type Gateway struct {
	sessions map[string]*ClientSession
	mu       sync.RWMutex

	upgrader        websocket.Upgrader
	sshManager      *SSHManager
	monitor         *MonitorManager
	store           repositories.ServerStore
	defaultInterval time.Duration
	lookupTimeout   time.Duration
	defaultSSHPort  int
	logger          *utils.Logger
}

// NewGateway creates a new gateway
func NewGateway(sshManager *SSHManager, monitor *MonitorManager, store repositories.ServerStore, defaultInterval, lookupTimeout time.Duration, defaultSSHPort int) *Gateway {
	return &Gateway{
		sessions:        make(map[string]*ClientSession),
		sshManager:      sshManager,
		monitor:         monitor,
		store:           store,
		defaultInterval: defaultInterval,
		lookupTimeout:   lookupTimeout,
		defaultSSHPort:  defaultSSHPort,
		logger:          utils.GetLogger("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Client authentication is handled upstream; accept any origin
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the HTTP request and services the client until its
// socket closes.
func (g *Gateway) HandleWebSocket(c *gin.Context) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}

	session := g.register(ws, c.ClientIP())
	defer g.closeSession(session)

	g.logger.Info("WebSocket client connected: %s from %s", session.ID, session.ClientIP)

	if err := session.Send(models.MessageTypeConnectionEstablished, models.ConnectionEstablished{
		SessionID: session.ID,
		Message:   "WebSocket connected successfully",
	}); err != nil {
		g.logger.Error("Failed to send connection established message: %v", err)
		return
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Warn("Failed to read WebSocket message for session %s: %v", session.ID, err)
			}
			return
		}
		g.handleMessage(session, raw)
	}
}

// register creates and stores a new session for an accepted socket
func (g *Gateway) register(ws wsConn, clientIP string) *ClientSession {
	session := &ClientSession{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		ClientIP:    clientIP,
		conn:        ws,
	}

	g.mu.Lock()
	g.sessions[session.ID] = session
	g.mu.Unlock()

	return session
}

// closeSession tears down everything the session owns: its monitor task, its
// SSH connection and the socket itself. It runs exactly once per session and
// is safe when neither sub-resource was ever created.
func (g *Gateway) closeSession(session *ClientSession) {
	session.cleanup.Do(func() {
		g.mu.Lock()
		delete(g.sessions, session.ID)
		g.mu.Unlock()

		g.monitor.Stop(session.ID)

		if err := g.sshManager.Disconnect(session.ID); err != nil && !errors.Is(err, ErrNoConnection) {
			g.logger.Warn("Failed to disconnect SSH for session %s: %v", session.ID, err)
		}

		session.conn.Close()
		g.logger.Info("WebSocket client disconnected: %s", session.ID)
	})
}

// handleMessage parses one inbound envelope and dispatches it. Malformed and
// unknown messages get an error reply; they never terminate the socket.
func (g *Gateway) handleMessage(session *ClientSession, raw []byte) {
	var msg models.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.sendError(session, models.MessageTypeError, "Invalid JSON format")
		return
	}

	switch msg.Type {
	case models.MessageTypePing:
		g.handlePing(session, msg.Data)
	case models.MessageTypeSSHConnect:
		g.handleSSHConnect(session, msg.Data)
	case models.MessageTypeSSHCommand:
		g.handleSSHCommand(session, msg.Data)
	case models.MessageTypeSSHDisconnect:
		g.handleSSHDisconnect(session)
	case models.MessageTypeGetServerStatus:
		g.handleGetServerStatus(session, msg.Data)
	case models.MessageTypeMonitorServer:
		g.handleMonitorServer(session, msg.Data)
	case models.MessageTypeStopMonitoring:
		g.handleStopMonitoring(session)
	default:
		g.sendError(session, models.MessageTypeError, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

// sendError sends one failure reply of the given type
func (g *Gateway) sendError(session *ClientSession, msgType, message string) {
	if err := session.Send(msgType, models.StatusMessage{Message: message}); err != nil {
		g.logger.Warn("Failed to send %s to session %s: %v", msgType, session.ID, err)
	}
}

// handlePing echoes the payload with a server timestamp. Pure, no state change.
func (g *Gateway) handlePing(session *ClientSession, data json.RawMessage) {
	var req models.PingRequest
	if len(data) > 0 {
		// A malformed ping payload is treated as empty rather than an error
		_ = json.Unmarshal(data, &req)
	}

	if err := session.Send(models.MessageTypePong, models.Pong{
		Data:      req.Data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		g.logger.Warn("Failed to send pong to session %s: %v", session.ID, err)
	}
}

// handleSSHConnect validates the request and dials in its own goroutine so a
// slow handshake never blocks the session's read loop.
func (g *Gateway) handleSSHConnect(session *ClientSession, data json.RawMessage) {
	var req models.ConnectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		g.sendError(session, models.MessageTypeSSHError, "Invalid ssh_connect payload")
		return
	}

	if req.Host == "" || req.Username == "" || (req.Password == "" && req.PrivateKey == "") {
		g.sendError(session, models.MessageTypeSSHError, "Missing required SSH connection parameters")
		return
	}
	if req.Password != "" && req.PrivateKey != "" {
		g.sendError(session, models.MessageTypeSSHError, "Provide either a password or a private key, not both")
		return
	}

	target := g.connectTarget(req)

	go func() {
		if _, err := g.sshManager.Connect(session.ID, target, session); err != nil {
			g.sendError(session, models.MessageTypeSSHError, fmt.Sprintf("SSH connection failed: %v", err))
			return
		}

		if g.releaseIfClosed(session) {
			return
		}

		if err := session.Send(models.MessageTypeSSHConnected, models.SSHConnected{
			Message: fmt.Sprintf("SSH connected to %s:%d", target.Host, target.Port),
			Host:    target.Host,
			Port:    target.Port,
		}); err != nil {
			g.logger.Warn("Failed to send ssh_connected to session %s: %v", session.ID, err)
		}
	}()
}

// connectTarget builds the dial target for a connect request, applying the
// configured default port when the client omits one.
func (g *Gateway) connectTarget(req models.ConnectRequest) models.SSHTarget {
	port := req.Port
	if port == 0 {
		port = g.defaultSSHPort
	}

	return models.SSHTarget{
		Host:       req.Host,
		Port:       port,
		Username:   req.Username,
		Password:   req.Password,
		PrivateKey: req.PrivateKey,
	}
}

// releaseIfClosed tears down a connection whose dial finished after its
// owning session was already cleaned up, and reports whether it did so. A
// slow handshake can outlive the client socket; the connection it produces
// must not outlive the session.
func (g *Gateway) releaseIfClosed(session *ClientSession) bool {
	g.mu.RLock()
	_, alive := g.sessions[session.ID]
	g.mu.RUnlock()

	if alive {
		return false
	}

	if err := g.sshManager.Disconnect(session.ID); err != nil && !errors.Is(err, ErrNoConnection) {
		g.logger.Warn("Failed to release connection for closed session %s: %v", session.ID, err)
	}
	return true
}

// handleSSHCommand runs the command in its own goroutine; overlapping
// commands on one session each get an independent exec channel.
func (g *Gateway) handleSSHCommand(session *ClientSession, data json.RawMessage) {
	var req models.CommandRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Command == "" {
		g.sendError(session, models.MessageTypeSSHError, "Command is required")
		return
	}

	go func() {
		err := g.sshManager.RunCommand(session.ID, req.Command, session)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoConnection):
			g.sendError(session, models.MessageTypeSSHError, "No active SSH connection")
		default:
			g.sendError(session, models.MessageTypeSSHError, fmt.Sprintf("Command execution failed: %v", err))
		}
	}()
}

// handleSSHDisconnect closes the session's connection if one exists
func (g *Gateway) handleSSHDisconnect(session *ClientSession) {
	err := g.sshManager.Disconnect(session.ID)
	if errors.Is(err, ErrNoConnection) {
		g.sendError(session, models.MessageTypeSSHError, "No active SSH connection to close")
		return
	}
	if err != nil {
		g.logger.Warn("Error closing SSH connection for session %s: %v", session.ID, err)
	}

	if err := session.Send(models.MessageTypeSSHDisconnected, models.StatusMessage{
		Message: "SSH connection closed",
	}); err != nil {
		g.logger.Warn("Failed to send ssh_disconnected to session %s: %v", session.ID, err)
	}
}

// handleGetServerStatus looks up one inventory record and reports its status
func (g *Gateway) handleGetServerStatus(session *ClientSession, data json.RawMessage) {
	var req models.ServerStatusRequest
	if err := json.Unmarshal(data, &req); err != nil || req.ServerID == "" {
		g.sendError(session, models.MessageTypeError, "Server ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.lookupTimeout)
	defer cancel()

	server, err := g.store.FindServerByID(ctx, req.ServerID)
	if err != nil {
		if errors.Is(err, repositories.ErrServerNotFound) {
			g.sendError(session, models.MessageTypeServerStatusError, "Server not found")
		} else {
			g.sendError(session, models.MessageTypeServerStatusError, fmt.Sprintf("Failed to load server: %v", err))
		}
		return
	}

	status := server.Status
	if status == "" {
		status = "unknown"
	}

	if err := session.Send(models.MessageTypeServerStatus, models.ServerStatusResponse{
		ServerID:      req.ServerID,
		Server:        server,
		Status:        status,
		LastConnected: server.LastConnected,
		Metrics:       server.Metrics,
	}); err != nil {
		g.logger.Warn("Failed to send server_status to session %s: %v", session.ID, err)
	}
}

// handleMonitorServer resolves the target and starts (or replaces) the
// session's monitor task.
func (g *Gateway) handleMonitorServer(session *ClientSession, data json.RawMessage) {
	var req models.MonitorRequest
	if err := json.Unmarshal(data, &req); err != nil || req.ServerID == "" {
		g.sendError(session, models.MessageTypeError, "Server ID is required for monitoring")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.lookupTimeout)
	defer cancel()

	server, err := g.store.FindServerByID(ctx, req.ServerID)
	if err != nil {
		if errors.Is(err, repositories.ErrServerNotFound) {
			g.sendError(session, models.MessageTypeMonitoringError, "Server not found")
		} else {
			g.sendError(session, models.MessageTypeMonitoringError, fmt.Sprintf("Failed to load server: %v", err))
		}
		return
	}

	interval := g.defaultInterval
	if req.Interval > 0 {
		interval = time.Duration(req.Interval) * time.Millisecond
	}

	g.monitor.Start(session.ID, server, interval, session)

	if err := session.Send(models.MessageTypeMonitoringStarted, models.MonitoringStarted{
		ServerID: req.ServerID,
		Interval: int(interval / time.Millisecond),
	}); err != nil {
		g.logger.Warn("Failed to send monitoring_started to session %s: %v", session.ID, err)
	}
}

// handleStopMonitoring cancels the session's monitor task if one is running
func (g *Gateway) handleStopMonitoring(session *ClientSession) {
	if !g.monitor.Stop(session.ID) {
		g.sendError(session, models.MessageTypeMonitoringError, "No active monitoring to stop")
		return
	}

	if err := session.Send(models.MessageTypeMonitoringStopped, models.StatusMessage{
		Message: "Server monitoring stopped",
	}); err != nil {
		g.logger.Warn("Failed to send monitoring_stopped to session %s: %v", session.ID, err)
	}
}

// SessionCount returns the number of connected clients
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Shutdown tears down all monitors, SSH connections and client sockets, in
// that order. Called before the HTTP listener is released.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	sessions := make([]*ClientSession, 0, len(g.sessions))
	for _, session := range g.sessions {
		sessions = append(sessions, session)
	}
	g.mu.Unlock()

	g.monitor.StopAll()
	g.sshManager.CloseAll()

	for _, session := range sessions {
		g.closeSession(session)
	}

	g.logger.Info("Gateway shut down, %d client sessions closed", len(sessions))
}
