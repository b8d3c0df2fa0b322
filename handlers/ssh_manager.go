package handlers

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"vps-gateway-service/models"
	"vps-gateway-service/utils"
)

// ErrNoConnection is returned when an operation requires a ready SSH
// connection and the session has none.
var ErrNoConnection = errors.New("no active SSH connection")

// EventSink receives outbound protocol messages produced by the managers.
// The gateway's client session implements it.
type EventSink interface {
	Send(msgType string, data interface{}) error
}

// SSHManager owns the outbound SSH connection of each session. A session has
// at most one connection at a time; connecting again replaces the old one.
type SSHManager struct {
	connections    map[string]*models.ShellConnection
	mu             sync.RWMutex
	connectTimeout time.Duration
	logger         *utils.Logger
}

// NewSSHManager creates a new SSH manager
func NewSSHManager(connectTimeout time.Duration) *SSHManager {
	return &SSHManager{
		connections:    make(map[string]*models.ShellConnection),
		connectTimeout: connectTimeout,
		logger:         utils.GetLogger("ssh"),
	}
}

// clientConfig builds the ssh.ClientConfig for a target
func (m *SSHManager) clientConfig(target models.SSHTarget) (*ssh.ClientConfig, error) {
	var authMethod ssh.AuthMethod

	switch {
	case target.Password != "":
		authMethod = ssh.Password(target.Password)
	case target.PrivateKey != "":
		signer, err := ssh.ParsePrivateKey([]byte(target.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethod = ssh.PublicKeys(signer)
	default:
		return nil, errors.New("no credential supplied")
	}

	return &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{authMethod},
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			m.logger.Info("Host '%s' presents key: %s %s", hostname, key.Type(), ssh.FingerprintSHA256(key))
			return nil
		},
		Timeout: m.connectTimeout,
	}, nil
}

// Connect authenticates to the target and opens an interactive shell channel.
// Any previous connection for the session is disconnected first. Shell output
// is delivered to the sink as ssh_output events; a remote-initiated close
// produces one ssh_disconnected notification.
func (m *SSHManager) Connect(sessionID string, target models.SSHTarget, sink EventSink) (*models.ShellConnection, error) {
	// Replace semantics: tear down the old connection before dialing
	if err := m.Disconnect(sessionID); err != nil && !errors.Is(err, ErrNoConnection) {
		m.logger.Warn("Failed to close previous connection for session %s: %v", sessionID, err)
	}

	config, err := m.clientConfig(target)
	if err != nil {
		return nil, err
	}

	conn := &models.ShellConnection{
		SessionID:   sessionID,
		Target:      target,
		State:       models.StateConnecting,
		ConnectedAt: time.Now(),
	}

	client, err := ssh.Dial("tcp", target.Addr(), config)
	if err != nil {
		conn.MarkFailed()
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	shellSession, err := client.NewSession()
	if err != nil {
		conn.MarkFailed()
		client.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	if err := shellSession.RequestPty("xterm-256color", 24, 80, modes); err != nil {
		conn.MarkFailed()
		shellSession.Close()
		client.Close()
		return nil, fmt.Errorf("failed to request pty: %w", err)
	}

	stdin, err := shellSession.StdinPipe()
	if err != nil {
		conn.MarkFailed()
		shellSession.Close()
		client.Close()
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := shellSession.StdoutPipe()
	if err != nil {
		conn.MarkFailed()
		shellSession.Close()
		client.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	stderr, err := shellSession.StderrPipe()
	if err != nil {
		conn.MarkFailed()
		shellSession.Close()
		client.Close()
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := shellSession.Shell(); err != nil {
		conn.MarkFailed()
		shellSession.Close()
		client.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	conn.LastActive = time.Now()
	conn.Client = client
	conn.Stdin = stdin
	conn.CloseShell = func() error {
		shellSession.Close()
		return client.Close()
	}
	conn.MarkReady()

	m.swapIn(sessionID, conn)

	go m.pumpShellOutput(conn, "stdout", stdout, sink)
	go m.pumpShellOutput(conn, "stderr", stderr, sink)

	return conn, nil
}

// swapIn registers conn as the session's current connection. Two dials for
// one session can race past the initial Disconnect; whichever registers
// second closes the one it displaces, so no client is left open without an
// owner.
func (m *SSHManager) swapIn(sessionID string, conn *models.ShellConnection) {
	m.mu.Lock()
	previous := m.connections[sessionID]
	m.connections[sessionID] = conn
	m.mu.Unlock()

	if previous != nil {
		previous.MarkClosed()
		if err := previous.CloseShell(); err != nil {
			m.logger.Warn("Failed to close displaced connection for session %s: %v", sessionID, err)
		}
	}
}

// pumpShellOutput copies one shell stream to the sink until it closes. Only
// the stream that observes the close while the connection is still registered
// sends the disconnect notification, so a local Disconnect stays silent.
func (m *SSHManager) pumpShellOutput(conn *models.ShellConnection, streamType string, r io.Reader, sink EventSink) {
	buffer := make([]byte, 4096)
	for {
		n, err := r.Read(buffer)
		if n > 0 {
			conn.Lock.Lock()
			conn.LastActive = time.Now()
			conn.Lock.Unlock()

			if sendErr := sink.Send(models.MessageTypeSSHOutput, models.SSHOutput{
				Type:    streamType,
				Content: string(buffer[:n]),
			}); sendErr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				m.logger.Error("Failed to read SSH %s for session %s: %v", streamType, conn.SessionID, err)
			}
			if streamType == "stdout" && m.remove(conn) {
				conn.MarkClosed()
				conn.CloseShell()
				if sendErr := sink.Send(models.MessageTypeSSHDisconnected, models.StatusMessage{
					Message: "SSH connection closed",
				}); sendErr != nil {
					m.logger.Warn("Failed to notify disconnect for session %s: %v", conn.SessionID, sendErr)
				}
			}
			return
		}
	}
}

// remove unregisters the connection if it is still the session's current one.
func (m *SSHManager) remove(conn *models.ShellConnection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, exists := m.connections[conn.SessionID]; exists && current == conn {
		delete(m.connections, conn.SessionID)
		return true
	}
	return false
}

// get returns the session's connection, if any
func (m *SSHManager) get(sessionID string) (*models.ShellConnection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, exists := m.connections[sessionID]
	return conn, exists
}

// RunCommand executes one command on the session's existing connection,
// streaming incremental output to the sink and finishing with one
// ssh_command_result. Each invocation gets its own exec channel, so commands
// on the same session may overlap.
func (m *SSHManager) RunCommand(sessionID, command string, sink EventSink) error {
	conn, exists := m.get(sessionID)
	if !exists || !conn.Ready() {
		return ErrNoConnection
	}

	execSession, err := conn.Client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer execSession.Close()

	stdout, err := execSession.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	stderr, err := execSession.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := execSession.Start(command); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}

	var stdoutBuf, stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)

	collect := func(streamType string, r io.Reader, buf *strings.Builder) {
		defer wg.Done()
		chunk := make([]byte, 4096)
		for {
			n, readErr := r.Read(chunk)
			if n > 0 {
				buf.Write(chunk[:n])
				if sendErr := sink.Send(models.MessageTypeSSHOutput, models.SSHOutput{
					Type:    streamType,
					Content: string(chunk[:n]),
				}); sendErr != nil {
					// Destination gone; keep draining so Wait can finish
					io.Copy(io.Discard, r)
					return
				}
			}
			if readErr != nil {
				return
			}
		}
	}

	go collect("stdout", stdout, &stdoutBuf)
	go collect("stderr", stderr, &stderrBuf)

	wg.Wait()

	// Exit code 0 on clean exit; remote exit status otherwise. A missing
	// status (connection torn down mid-command) counts as failure.
	exitCode := 0
	if waitErr := execSession.Wait(); waitErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitStatus()
		} else {
			exitCode = -1
		}
	}

	conn.Lock.Lock()
	conn.LastActive = time.Now()
	conn.Lock.Unlock()

	return sink.Send(models.MessageTypeSSHCommandResult, models.SSHCommandResult{
		Command:  command,
		Stdout:   strings.TrimSpace(stdoutBuf.String()),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		ExitCode: exitCode,
	})
}

// WriteToShell forwards raw bytes to the session's interactive shell channel.
// It reports failure instead of returning an error so callers can treat a
// missing shell as a no-op.
func (m *SSHManager) WriteToShell(sessionID string, data []byte) bool {
	conn, exists := m.get(sessionID)
	if !exists || !conn.Ready() || conn.Stdin == nil {
		return false
	}

	if _, err := conn.Stdin.Write(data); err != nil {
		m.logger.Error("Failed to write to shell for session %s: %v", sessionID, err)
		return false
	}

	return true
}

// Disconnect tears down the session's connection and shell channel. It is
// idempotent; disconnecting a session with no connection returns
// ErrNoConnection and has no side effects.
func (m *SSHManager) Disconnect(sessionID string) error {
	m.mu.Lock()
	conn, exists := m.connections[sessionID]
	if exists {
		delete(m.connections, sessionID)
	}
	m.mu.Unlock()

	if !exists {
		return ErrNoConnection
	}

	conn.MarkClosed()
	return conn.CloseShell()
}

// HasConnection reports whether the session currently owns a ready connection
func (m *SSHManager) HasConnection(sessionID string) bool {
	conn, exists := m.get(sessionID)
	return exists && conn.Ready()
}

// CloseAll disconnects every outstanding connection, for process shutdown
func (m *SSHManager) CloseAll() {
	m.mu.Lock()
	conns := make([]*models.ShellConnection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.connections = make(map[string]*models.ShellConnection)
	m.mu.Unlock()

	for _, conn := range conns {
		conn.MarkClosed()
		if err := conn.CloseShell(); err != nil {
			m.logger.Warn("Failed to close connection for session %s: %v", conn.SessionID, err)
		}
	}
}
