package handlers

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"vps-gateway-service/models"
	"vps-gateway-service/repositories"
	"vps-gateway-service/utils"
)

// Metric probe battery. Each command prints a single 0-100 numeric value.
const (
	probeCPU    = `top -bn1 | grep "Cpu(s)" | awk '{print $2}' | cut -d'%' -f1`
	probeMemory = `free | grep Mem | awk '{printf "%.1f", $3/$2 * 100.0}'`
	probeDisk   = `df -h / | awk 'NR==2{printf "%.1f", $5}' | sed 's/%//'`
)

// monitorTask is one recurring metrics-polling job bound to a session. The
// target is snapshotted at start time and never re-resolved.
type monitorTask struct {
	serverID string
	target   models.SSHTarget
	status   string
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// MonitorManager schedules per-session metric collection. Every session's
// timer runs in its own goroutine, so a hung probe for one session never
// delays another's ticks.
type MonitorManager struct {
	tasks          map[string]*monitorTask
	mu             sync.Mutex
	connectTimeout time.Duration
	store          repositories.ServerStore
	logger         *utils.Logger
}

// NewMonitorManager creates a new monitor manager. The store is optional and
// only used to persist the last real metrics best-effort.
func NewMonitorManager(connectTimeout time.Duration, store repositories.ServerStore) *MonitorManager {
	return &MonitorManager{
		tasks:          make(map[string]*monitorTask),
		connectTimeout: connectTimeout,
		store:          store,
		logger:         utils.GetLogger("monitor"),
	}
}

// Start begins a recurring metrics poll for the session, replacing any
// existing task. The first emission happens after one full interval.
func (m *MonitorManager) Start(sessionID string, server *models.ServerRecord, interval time.Duration, sink EventSink) {
	m.Stop(sessionID)

	ctx, cancel := context.WithCancel(context.Background())
	task := &monitorTask{
		serverID: server.ID,
		target:   server.Target(),
		status:   server.Status,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[sessionID] = task
	m.mu.Unlock()

	go m.run(ctx, task, sink)
}

// run is the task loop. Target unavailability degrades to synthetic metrics
// and never stops the schedule; only Stop or session teardown does.
func (m *MonitorManager) run(ctx context.Context, task *monitorTask, sink EventSink) {
	defer close(task.done)

	ticker := time.NewTicker(task.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := m.collect(task.target)

			update := models.MonitorUpdate{
				ServerID:  task.serverID,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Status:    task.status,
				Metrics:   snapshot,
			}

			if err := sink.Send(models.MessageTypeMonitorUpdate, update); err != nil {
				m.logger.Warn("Failed to send monitor update for server %s: %v", task.serverID, err)
				continue
			}

			if !snapshot.Synthetic && m.store != nil {
				go func() {
					storeCtx, storeCancel := context.WithTimeout(context.Background(), m.connectTimeout)
					defer storeCancel()
					if err := m.store.UpdateServerMetrics(storeCtx, task.serverID, &models.ServerMetrics{
						CPU:    snapshot.CPU,
						Memory: snapshot.Memory,
						Disk:   snapshot.Disk,
					}); err != nil {
						m.logger.Warn("Failed to store metrics for server %s: %v", task.serverID, err)
					}
				}()
			}
		}
	}
}

// collect opens a short-lived connection to the target and runs the probe
// battery. Any failure, from dial to an individual probe, is replaced with a
// synthetic value so the monitoring stream stays alive.
func (m *MonitorManager) collect(target models.SSHTarget) models.MetricSnapshot {
	var authMethods []ssh.AuthMethod
	if target.Password != "" {
		authMethods = append(authMethods, ssh.Password(target.Password))
	}
	if target.PrivateKey != "" {
		if signer, err := ssh.ParsePrivateKey([]byte(target.PrivateKey)); err == nil {
			authMethods = append(authMethods, ssh.PublicKeys(signer))
		}
	}

	config := &ssh.ClientConfig{
		User:            target.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         m.connectTimeout,
	}

	client, err := ssh.Dial("tcp", target.Addr(), config)
	if err != nil {
		return syntheticSnapshot()
	}
	defer client.Close()

	snapshot := models.MetricSnapshot{}
	snapshot.CPU = m.probe(client, probeCPU, &snapshot.Synthetic)
	snapshot.Memory = m.probe(client, probeMemory, &snapshot.Synthetic)
	snapshot.Disk = m.probe(client, probeDisk, &snapshot.Synthetic)

	return snapshot
}

// probe runs one metric command on its own exec channel and parses the value.
func (m *MonitorManager) probe(client *ssh.Client, command string, synthetic *bool) float64 {
	session, err := client.NewSession()
	if err != nil {
		*synthetic = true
		return syntheticValue()
	}
	defer session.Close()

	output, err := session.Output(command)
	if err != nil {
		*synthetic = true
		return syntheticValue()
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		*synthetic = true
		return syntheticValue()
	}

	return value
}

// syntheticSnapshot produces a full placeholder reading when the target is
// unreachable.
func syntheticSnapshot() models.MetricSnapshot {
	return models.MetricSnapshot{
		CPU:       syntheticValue(),
		Memory:    syntheticValue(),
		Disk:      syntheticValue(),
		Synthetic: true,
	}
}

func syntheticValue() float64 {
	return rand.Float64() * 100
}

// Stop cancels the session's monitor task. It is idempotent and reports
// whether a task was actually running.
func (m *MonitorManager) Stop(sessionID string) bool {
	m.mu.Lock()
	task, exists := m.tasks[sessionID]
	if exists {
		delete(m.tasks, sessionID)
	}
	m.mu.Unlock()

	if !exists {
		return false
	}

	task.cancel()
	<-task.done
	return true
}

// HasTask reports whether the session currently has a monitor running
func (m *MonitorManager) HasTask(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.tasks[sessionID]
	return exists
}

// StopAll cancels every outstanding task, for process shutdown
func (m *MonitorManager) StopAll() {
	m.mu.Lock()
	tasks := make([]*monitorTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	m.tasks = make(map[string]*monitorTask)
	m.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
		<-task.done
	}
}
