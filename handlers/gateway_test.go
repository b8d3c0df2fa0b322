package handlers

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vps-gateway-service/models"
	"vps-gateway-service/repositories"
)

// fakeConn records every outbound message instead of writing to a socket.
type fakeConn struct {
	mu       sync.Mutex
	messages []models.WebSocketMessage
	closed   bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	return 0, nil, io.EOF
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	msg, ok := v.(models.WebSocketMessage)
	if !ok {
		return errors.New("unexpected payload type")
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) typed(msgType string) []models.WebSocketMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.WebSocketMessage
	for _, msg := range c.messages {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}

// fakeStore is an in-memory server inventory.
type fakeStore struct {
	mu      sync.Mutex
	servers map[string]*models.ServerRecord
}

func newFakeStore(servers ...*models.ServerRecord) *fakeStore {
	store := &fakeStore{servers: make(map[string]*models.ServerRecord)}
	for _, server := range servers {
		store.servers[server.ID] = server
	}
	return store
}

func (s *fakeStore) FindServerByID(_ context.Context, serverID string) (*models.ServerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	server, exists := s.servers[serverID]
	if !exists {
		return nil, repositories.ErrServerNotFound
	}
	return server, nil
}

func (s *fakeStore) ListServers(context.Context, int, int) ([]*models.ServerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ServerRecord
	for _, server := range s.servers {
		out = append(out, server)
	}
	return out, nil
}

func (s *fakeStore) UpdateServer(_ context.Context, serverID string, _ *models.ServerUpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.servers[serverID]; !exists {
		return repositories.ErrServerNotFound
	}
	return nil
}

func (s *fakeStore) UpdateServerMetrics(context.Context, string, *models.ServerMetrics) error {
	return nil
}

func (s *fakeStore) DeleteServer(_ context.Context, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.servers[serverID]; !exists {
		return repositories.ErrServerNotFound
	}
	delete(s.servers, serverID)
	return nil
}

// unreachableServer points at a port nothing listens on, so every SSH dial
// fails fast with a refusal.
func unreachableServer(id string) *models.ServerRecord {
	return &models.ServerRecord{
		ID:       id,
		Name:     "test-" + id,
		Host:     "127.0.0.1",
		Port:     1,
		Username: "root",
		Password: "secret",
		Status:   "running",
	}
}

func newTestGateway(store repositories.ServerStore) *Gateway {
	sshManager := NewSSHManager(2 * time.Second)
	monitor := NewMonitorManager(500*time.Millisecond, nil)
	return NewGateway(sshManager, monitor, store, 5*time.Second, time.Second, 22)
}

func newTestSession(g *Gateway) (*ClientSession, *fakeConn) {
	conn := &fakeConn{}
	session := g.register(conn, "127.0.0.1")
	return session, conn
}

func TestPingEchoesPayloadWithTimestamp(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"ping","data":{"data":"abc"}}`))

	pongs := conn.typed(models.MessageTypePong)
	require.Len(t, pongs, 1)

	pong, ok := pongs[0].Data.(models.Pong)
	require.True(t, ok)
	assert.Equal(t, "abc", pong.Data)

	_, err := time.Parse(time.RFC3339, pong.Timestamp)
	assert.NoError(t, err)
}

func TestMalformedMessageYieldsErrorWithoutClosing(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{not json`))

	errs := conn.typed(models.MessageTypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, models.StatusMessage{Message: "Invalid JSON format"}, errs[0].Data)

	// The session must still be usable afterwards
	g.handleMessage(session, []byte(`{"type":"ping"}`))
	assert.Len(t, conn.typed(models.MessageTypePong), 1)
}

func TestUnknownMessageTypeYieldsError(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"bogus"}`))

	errs := conn.typed(models.MessageTypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, models.StatusMessage{Message: "Unknown message type: bogus"}, errs[0].Data)
}

func TestCommandWithoutConnectionYieldsSSHError(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"ssh_command","data":{"command":"echo hi"}}`))

	require.Eventually(t, func() bool {
		return len(conn.typed(models.MessageTypeSSHError)) == 1
	}, time.Second, 10*time.Millisecond)

	errs := conn.typed(models.MessageTypeSSHError)
	assert.Equal(t, models.StatusMessage{Message: "No active SSH connection"}, errs[0].Data)
	assert.Empty(t, conn.typed(models.MessageTypeSSHOutput))
}

func TestConnectRejectsMissingParameters(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"ssh_connect","data":{"host":"example.com"}}`))

	errs := conn.typed(models.MessageTypeSSHError)
	require.Len(t, errs, 1)
	assert.Equal(t, models.StatusMessage{Message: "Missing required SSH connection parameters"}, errs[0].Data)
}

func TestConnectRejectsAmbiguousCredentials(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"ssh_connect","data":{"host":"example.com","username":"root","password":"x","privateKey":"y"}}`))

	errs := conn.typed(models.MessageTypeSSHError)
	require.Len(t, errs, 1)
	assert.Equal(t, models.StatusMessage{Message: "Provide either a password or a private key, not both"}, errs[0].Data)
}

func TestDisconnectWithoutConnectionYieldsSSHError(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"ssh_disconnect"}`))

	errs := conn.typed(models.MessageTypeSSHError)
	require.Len(t, errs, 1)
	assert.Equal(t, models.StatusMessage{Message: "No active SSH connection to close"}, errs[0].Data)
	assert.Empty(t, conn.typed(models.MessageTypeSSHDisconnected))
}

func TestGetServerStatusNotFound(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"get_server_status","data":{"serverId":"nope"}}`))

	errs := conn.typed(models.MessageTypeServerStatusError)
	require.Len(t, errs, 1)
	assert.Equal(t, models.StatusMessage{Message: "Server not found"}, errs[0].Data)
}

func TestGetServerStatusFound(t *testing.T) {
	g := newTestGateway(newFakeStore(unreachableServer("srv-1")))
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"get_server_status","data":{"serverId":"srv-1"}}`))

	replies := conn.typed(models.MessageTypeServerStatus)
	require.Len(t, replies, 1)

	status, ok := replies[0].Data.(models.ServerStatusResponse)
	require.True(t, ok)
	assert.Equal(t, "srv-1", status.ServerID)
	assert.Equal(t, "running", status.Status)
	require.NotNil(t, status.Server)
	assert.Equal(t, "127.0.0.1", status.Server.Host)
}

func TestStopMonitoringTwice(t *testing.T) {
	g := newTestGateway(newFakeStore(unreachableServer("srv-1")))
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"monitor_server","data":{"serverId":"srv-1","interval":60000}}`))
	require.Len(t, conn.typed(models.MessageTypeMonitoringStarted), 1)

	g.handleMessage(session, []byte(`{"type":"stop_monitoring"}`))
	stopped := conn.typed(models.MessageTypeMonitoringStopped)
	require.Len(t, stopped, 1)
	assert.Equal(t, models.StatusMessage{Message: "Server monitoring stopped"}, stopped[0].Data)

	g.handleMessage(session, []byte(`{"type":"stop_monitoring"}`))
	errs := conn.typed(models.MessageTypeMonitoringError)
	require.Len(t, errs, 1)
	assert.Equal(t, models.StatusMessage{Message: "No active monitoring to stop"}, errs[0].Data)
}

func TestMonitorUnreachableHostEmitsSyntheticUpdates(t *testing.T) {
	g := newTestGateway(newFakeStore(unreachableServer("srv-1")))
	session, conn := newTestSession(g)
	defer g.monitor.Stop(session.ID)

	g.handleMessage(session, []byte(`{"type":"monitor_server","data":{"serverId":"srv-1","interval":100}}`))

	started := conn.typed(models.MessageTypeMonitoringStarted)
	require.Len(t, started, 1)
	assert.Equal(t, models.MonitoringStarted{ServerID: "srv-1", Interval: 100}, started[0].Data)

	// The schedule must survive repeated failures, not just the first one
	require.Eventually(t, func() bool {
		return len(conn.typed(models.MessageTypeMonitorUpdate)) >= 2
	}, 3*time.Second, 20*time.Millisecond)

	for _, msg := range conn.typed(models.MessageTypeMonitorUpdate) {
		update, ok := msg.Data.(models.MonitorUpdate)
		require.True(t, ok)
		assert.Equal(t, "srv-1", update.ServerID)
		assert.Equal(t, "running", update.Status)
		assert.True(t, update.Metrics.Synthetic)
		for _, value := range []float64{update.Metrics.CPU, update.Metrics.Memory, update.Metrics.Disk} {
			assert.GreaterOrEqual(t, value, 0.0)
			assert.LessOrEqual(t, value, 100.0)
		}
	}
}

func TestMonitorServerUnknownIDCreatesNoTask(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, conn := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"monitor_server","data":{"serverId":"missing","interval":100}}`))

	errs := conn.typed(models.MessageTypeMonitoringError)
	require.Len(t, errs, 1)
	assert.Equal(t, models.StatusMessage{Message: "Server not found"}, errs[0].Data)
	assert.False(t, g.monitor.HasTask(session.ID))
}

func TestCloseSessionCleansUpEverythingOnce(t *testing.T) {
	g := newTestGateway(newFakeStore(unreachableServer("srv-1")))
	session, _ := newTestSession(g)

	g.handleMessage(session, []byte(`{"type":"monitor_server","data":{"serverId":"srv-1","interval":60000}}`))
	require.True(t, g.monitor.HasTask(session.ID))

	g.closeSession(session)
	assert.Equal(t, 0, g.SessionCount())
	assert.False(t, g.monitor.HasTask(session.ID))
	assert.False(t, g.sshManager.HasConnection(session.ID))

	// Second invocation must be a safe no-op
	g.closeSession(session)
	assert.Equal(t, 0, g.SessionCount())
}

func TestConnectTargetAppliesConfiguredDefaultPort(t *testing.T) {
	g := NewGateway(NewSSHManager(2*time.Second), NewMonitorManager(500*time.Millisecond, nil), newFakeStore(), 5*time.Second, time.Second, 2222)

	target := g.connectTarget(models.ConnectRequest{Host: "example.com", Username: "root", Password: "x"})
	assert.Equal(t, 2222, target.Port)

	target = g.connectTarget(models.ConnectRequest{Host: "example.com", Port: 22, Username: "root", Password: "x"})
	assert.Equal(t, 22, target.Port)
}

func TestDialFinishingAfterCloseIsReleased(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, _ := newTestSession(g)

	g.closeSession(session)

	// A slow handshake can complete after teardown already ran; the
	// connection it registers must be torn down, not leaked
	released := false
	g.sshManager.swapIn(session.ID, &models.ShellConnection{
		SessionID:  session.ID,
		State:      models.StateReady,
		CloseShell: func() error { released = true; return nil },
	})

	require.True(t, g.releaseIfClosed(session))
	assert.True(t, released)
	assert.False(t, g.sshManager.HasConnection(session.ID))
}

func TestReleaseIfClosedLeavesLiveSessionAlone(t *testing.T) {
	g := newTestGateway(newFakeStore())
	session, _ := newTestSession(g)

	g.sshManager.swapIn(session.ID, &models.ShellConnection{
		SessionID:  session.ID,
		State:      models.StateReady,
		CloseShell: func() error { return nil },
	})

	assert.False(t, g.releaseIfClosed(session))
	assert.True(t, g.sshManager.HasConnection(session.ID))
}

func TestSessionsAreIsolated(t *testing.T) {
	g := newTestGateway(newFakeStore(unreachableServer("srv-1")))
	session1, conn1 := newTestSession(g)
	session2, conn2 := newTestSession(g)
	defer g.monitor.Stop(session1.ID)

	require.NotEqual(t, session1.ID, session2.ID)

	g.handleMessage(session1, []byte(`{"type":"monitor_server","data":{"serverId":"srv-1","interval":60000}}`))
	require.True(t, g.monitor.HasTask(session1.ID))

	// Stopping on the second session must not touch the first session's task
	g.handleMessage(session2, []byte(`{"type":"stop_monitoring"}`))
	assert.True(t, g.monitor.HasTask(session1.ID))
	require.Len(t, conn2.typed(models.MessageTypeMonitoringError), 1)
	assert.Empty(t, conn1.typed(models.MessageTypeMonitoringError))

	// Closing the second session leaves the first fully operational
	g.closeSession(session2)
	assert.True(t, g.monitor.HasTask(session1.ID))
	g.handleMessage(session1, []byte(`{"type":"ping"}`))
	assert.Len(t, conn1.typed(models.MessageTypePong), 1)
}

func TestShutdownTearsDownAllSessions(t *testing.T) {
	g := newTestGateway(newFakeStore(unreachableServer("srv-1")))
	session1, _ := newTestSession(g)
	session2, _ := newTestSession(g)

	g.handleMessage(session1, []byte(`{"type":"monitor_server","data":{"serverId":"srv-1","interval":60000}}`))
	g.handleMessage(session2, []byte(`{"type":"monitor_server","data":{"serverId":"srv-1","interval":60000}}`))

	g.Shutdown()

	assert.Equal(t, 0, g.SessionCount())
	assert.False(t, g.monitor.HasTask(session1.ID))
	assert.False(t, g.monitor.HasTask(session2.ID))
}
