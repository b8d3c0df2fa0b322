package models

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// ConnectionState describes the lifecycle of a ShellConnection.
type ConnectionState string

const (
	// StateConnecting means the dial/authentication round-trip is in flight.
	StateConnecting ConnectionState = "connecting"
	// StateReady means authentication succeeded and channels may be opened.
	StateReady ConnectionState = "ready"
	// StateClosed means the connection was shut down, locally or remotely.
	StateClosed ConnectionState = "closed"
	// StateFailed means the connection never reached ready.
	StateFailed ConnectionState = "failed"
)

// SSHTarget identifies a remote host and the credential used to reach it.
// Exactly one of Password or PrivateKey is expected to be set.
type SSHTarget struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey string
}

// Addr returns the dial address for the target, defaulting the port to 22.
func (t SSHTarget) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", t.Host, port)
}

// ShellConnection is one authenticated outbound SSH connection owned by a
// session, plus the interactive shell channel opened on it.
type ShellConnection struct {
	SessionID   string
	Target      SSHTarget
	State       ConnectionState
	ConnectedAt time.Time
	LastActive  time.Time

	Client *ssh.Client
	Stdin  io.WriteCloser

	Lock sync.Mutex

	// CloseShell tears down the interactive shell channel and the client.
	CloseShell func() error
}

// Ready reports whether commands and shell writes may be attempted.
func (c *ShellConnection) Ready() bool {
	c.Lock.Lock()
	defer c.Lock.Unlock()
	return c.State == StateReady
}

// MarkReady transitions the connection to ready once authentication and the
// shell channel are up.
func (c *ShellConnection) MarkReady() {
	c.Lock.Lock()
	c.State = StateReady
	c.Lock.Unlock()
}

// MarkFailed transitions the connection to failed before it is discarded.
func (c *ShellConnection) MarkFailed() {
	c.Lock.Lock()
	c.State = StateFailed
	c.Lock.Unlock()
}

// MarkClosed transitions the connection to closed.
func (c *ShellConnection) MarkClosed() {
	c.Lock.Lock()
	c.State = StateClosed
	c.Lock.Unlock()
}
