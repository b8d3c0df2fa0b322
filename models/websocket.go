package models

import (
	"encoding/json"
	"time"
)

// Inbound message types accepted by the gateway.
const (
	MessageTypePing            = "ping"
	MessageTypeSSHConnect      = "ssh_connect"
	MessageTypeSSHCommand      = "ssh_command"
	MessageTypeSSHDisconnect   = "ssh_disconnect"
	MessageTypeGetServerStatus = "get_server_status"
	MessageTypeMonitorServer   = "monitor_server"
	MessageTypeStopMonitoring  = "stop_monitoring"
)

// Outbound message types emitted by the gateway.
const (
	MessageTypeConnectionEstablished = "connection_established"
	MessageTypePong                  = "pong"
	MessageTypeSSHConnected          = "ssh_connected"
	MessageTypeSSHError              = "ssh_error"
	MessageTypeSSHOutput             = "ssh_output"
	MessageTypeSSHCommandResult      = "ssh_command_result"
	MessageTypeSSHDisconnected       = "ssh_disconnected"
	MessageTypeServerStatus          = "server_status"
	MessageTypeServerStatusError     = "server_status_error"
	MessageTypeMonitoringStarted     = "monitoring_started"
	MessageTypeMonitoringStopped     = "monitoring_stopped"
	MessageTypeMonitoringError       = "monitoring_error"
	MessageTypeMonitorUpdate         = "server_monitor_update"
	MessageTypeError                 = "error"
)

// WebSocketMessage is the envelope for every message in both directions.
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// InboundMessage is the envelope as received from a client. Data is kept raw
// so each handler can decode its own payload shape.
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PingRequest is the payload of a ping message.
type PingRequest struct {
	Data interface{} `json:"data,omitempty"`
}

// ConnectRequest is the payload of an ssh_connect message. Exactly one of
// Password or PrivateKey must be set; Port defaults to 22.
type ConnectRequest struct {
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
}

// CommandRequest is the payload of an ssh_command message.
type CommandRequest struct {
	Command string `json:"command"`
}

// ServerStatusRequest is the payload of a get_server_status message.
type ServerStatusRequest struct {
	ServerID string `json:"serverId"`
}

// MonitorRequest is the payload of a monitor_server message. Interval is in
// milliseconds and falls back to the configured default when zero.
type MonitorRequest struct {
	ServerID string `json:"serverId"`
	Interval int    `json:"interval,omitempty"`
}

// ConnectionEstablished is sent once right after a client socket is accepted.
type ConnectionEstablished struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// Pong echoes the ping payload with a server timestamp.
type Pong struct {
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// SSHConnected reports a successful ssh_connect.
type SSHConnected struct {
	Message string `json:"message"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// SSHOutput is one incremental chunk of command or shell output.
type SSHOutput struct {
	Type    string `json:"type"` // "stdout" or "stderr"
	Content string `json:"content"`
}

// SSHCommandResult aggregates the full output of one command execution.
type SSHCommandResult struct {
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// StatusMessage carries a human-readable message for status and error replies
// (ssh_error, ssh_disconnected, monitoring_stopped, error, ...).
type StatusMessage struct {
	Message string `json:"message"`
}

// ServerStatusResponse is the reply to get_server_status.
type ServerStatusResponse struct {
	ServerID      string         `json:"serverId"`
	Server        *ServerRecord  `json:"server"`
	Status        string         `json:"status"`
	LastConnected *time.Time     `json:"lastConnected,omitempty"`
	Metrics       *ServerMetrics `json:"metrics,omitempty"`
}

// MonitoringStarted confirms that a monitor task is running.
type MonitoringStarted struct {
	ServerID string `json:"serverId"`
	Interval int    `json:"interval"`
}

// MonitorUpdate is one periodic metrics emission for a monitored server.
type MonitorUpdate struct {
	ServerID  string         `json:"serverId"`
	Timestamp string         `json:"timestamp"`
	Status    string         `json:"status"`
	Metrics   MetricSnapshot `json:"metrics"`
}

// MetricSnapshot holds one round of probe results. Synthetic is true when at
// least one value is a generated placeholder rather than a real reading.
type MetricSnapshot struct {
	CPU       float64 `json:"cpu"`
	Memory    float64 `json:"memory"`
	Disk      float64 `json:"disk"`
	Synthetic bool    `json:"synthetic"`
}
