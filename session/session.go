// Package session maintains the persistent websocket connection to the
// backend: authentication, reconnection with backoff, printer registration
// replay and the request/reply plumbing for backend operations.
package session

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"repairmind/print-agent/printers"
	"repairmind/print-agent/protocol"
	"repairmind/print-agent/ws"
)

// reconnectDelays index is the attempt count, clamped to the last element.
var reconnectDelays = []time.Duration{
	5 * time.Second, 5 * time.Second,
	10 * time.Second, 10 * time.Second,
	30 * time.Second, 30 * time.Second,
	60 * time.Second,
}

const maxReconnectDelay = 300 * time.Second

const (
	defaultAuthTimeout       = 10 * time.Second
	defaultRequestTimeout    = 10 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	writeTimeout             = 10 * time.Second
)

// The ping interval must undercut the read deadline: pongs are the only
// guaranteed inbound traffic on an otherwise idle connection.
var (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
)

// Credentials authenticate the agent against the backend tenant.
type Credentials struct {
	TenantID string
	ClientID string
	Token    string
	APIKey   string
}

// Config for one session.
type Config struct {
	// URL of the backend websocket endpoint (ws://, wss://, or http(s)
	// which is rewritten).
	URL          string
	Credentials  Credentials
	AgentVersion string

	HeartbeatInterval  time.Duration
	RequestTimeout     time.Duration
	AuthTimeout        time.Duration
	InsecureSkipVerify bool
}

// Handlers receive session callbacks. All fields are optional and are
// invoked from session goroutines.
type Handlers struct {
	// OnNewJob delivers a pushed print job.
	OnNewJob func(job *protocol.Job)
	// OnConnected fires after each successful authentication; reconnected
	// is false only for the first connection of the session's life.
	OnConnected func(reconnected bool)
	// OnStateChange fires on every state transition.
	OnStateChange func(state State)
	// OnReconnecting fires before each scheduled reconnect attempt.
	OnReconnecting func(attempt int, delay time.Duration)
	// OnReconnectFailed fires when a reconnect attempt fails.
	OnReconnectFailed func(attempt int, err error)
	// OnAuthError fires on a credential rejection; the session stays down
	// until the operator intervenes.
	OnAuthError func(message string)
}

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

type nullLogger struct{}

func (nullLogger) Error(msg string, context ...interface{}) {}
func (nullLogger) Warn(msg string, context ...interface{})  {}
func (nullLogger) Info(msg string, context ...interface{})  {}
func (nullLogger) Debug(msg string, context ...interface{}) {}

// waiter is one pending request-style emit. It resolves on the first
// message whose type matches ackType or errType and is removed on every
// resolution path.
type waiter struct {
	ackType string
	errType string
	ch      chan *ws.Message
}

// Session is the single live connection to the backend. At most one
// websocket exists at a time; a replaced connection is fully closed before
// the next dial.
type Session struct {
	cfg      Config
	handlers Handlers
	logger   Logger

	mu        sync.RWMutex
	conn      *ws.Conn
	state     State
	attempt   int
	everUp    bool
	stopped   bool
	waiters   []*waiter
	connEpoch int

	// registered printers in insertion order, replayed after reconnect
	regOrder []string
	regByID  map[string]printers.Descriptor

	reconnectChan chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// New creates a session. Call Start to connect.
func New(cfg Config, handlers Handlers, logger Logger) *Session {
	if logger == nil {
		logger = nullLogger{}
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:           cfg,
		handlers:      handlers,
		logger:        logger,
		state:         StateDisconnected,
		regByID:       make(map[string]printers.Descriptor),
		reconnectChan: make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start attempts the initial connection and launches the connection
// manager. A failed initial attempt is not fatal; the manager retries in
// the background.
func (s *Session) Start() {
	if err := s.connect(); err != nil {
		s.logger.Warn("initial connection failed, will retry", "error", err)
		if !errors.Is(err, errAuthRejected) {
			s.scheduleReconnect()
		}
	}
	s.wg.Add(2)
	go s.connectionManager()
	go s.heartbeatLoop()
}

// Stop disconnects and halts all session goroutines. The session does not
// reconnect after Stop.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		if err := conn.WriteClose(5 * time.Second); err != nil {
			s.logger.Debug("close message failed", "error", err)
		}
		conn.Close()
	}
	s.wg.Wait()
	s.setState(StateDisconnected)
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connected reports whether the session is authenticated and usable.
func (s *Session) Connected() bool { return s.State() == StateConnected }

func (s *Session) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		s.logger.Debug("connection state", "state", state.String())
		if s.handlers.OnStateChange != nil {
			s.handlers.OnStateChange(state)
		}
	}
}

// wsURL rewrites http(s) schemes and validates the endpoint.
func (s *Session) wsURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// connect dials, authenticates and promotes the session to connected.
func (s *Session) connect() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errors.New("session stopped")
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	s.setState(StateConnecting)

	urlStr, err := s.wsURL()
	if err != nil {
		return err
	}

	var tlsCfg *tls.Config
	if s.cfg.InsecureSkipVerify {
		tlsCfg = &tls.Config{InsecureSkipVerify: true}
	}
	conn, _, err := ws.Dial(urlStr, nil, tlsCfg, defaultHandshakeTimeout)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connEpoch++
	epoch := s.connEpoch
	s.mu.Unlock()

	// Pongs refresh the read deadline; on an idle connection they are the
	// only inbound traffic keeping it alive.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// The read loop must be running before authenticate so the reply can
	// be dispatched to the waiter.
	s.wg.Add(1)
	go s.readLoop(conn, epoch)

	s.setState(StateAuthenticating)
	if err := s.authenticate(conn); err != nil {
		// Retire the epoch before closing so the dying read loop cannot
		// schedule a reconnect of its own; whether to retry is the
		// caller's decision (rejected credentials wait for the operator).
		s.mu.Lock()
		s.connEpoch++
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()
		s.setState(StateDisconnected)
		return err
	}

	s.mu.Lock()
	s.attempt = 0
	reconnected := s.everUp
	s.everUp = true
	s.mu.Unlock()

	s.setState(StateConnected)
	s.logger.Info("connected to backend", "url", urlStr, "reconnected", reconnected)

	s.wg.Add(1)
	go s.pingLoop(conn, epoch)

	s.replayRegistrations()
	if s.handlers.OnConnected != nil {
		go s.handlers.OnConnected(reconnected)
	}
	return nil
}

var errAuthRejected = errors.New("authentication rejected")

// authenticate sends the credential handshake and awaits its reply.
func (s *Session) authenticate(conn *ws.Conn) error {
	msg := &ws.Message{
		Type: ws.MessageTypeAuthenticate,
		Data: map[string]interface{}{
			"tenantId": s.cfg.Credentials.TenantID,
			"clientId": s.cfg.Credentials.ClientID,
			"token":    s.cfg.Credentials.Token,
			"apiKey":   s.cfg.Credentials.APIKey,
		},
	}

	reply, err := s.request(conn, msg, ws.MessageTypeAuthenticated, ws.MessageTypeAuthError, s.cfg.AuthTimeout)
	if err != nil {
		return fmt.Errorf("authentication: %w", err)
	}

	if reply.Type == ws.MessageTypeAuthError || !boolField(reply.Data, "success") {
		message := stringField(reply.Data, "message")
		s.logger.Error("authentication rejected", "message", message)
		if s.handlers.OnAuthError != nil {
			s.handlers.OnAuthError(message)
		}
		return fmt.Errorf("%w: %s", errAuthRejected, message)
	}

	s.checkMinVersion(reply.Data)
	return nil
}

// checkMinVersion warns when the backend demands a newer agent.
func (s *Session) checkMinVersion(data map[string]interface{}) {
	minStr := stringField(data, "minAgentVersion")
	if minStr == "" || s.cfg.AgentVersion == "" {
		return
	}
	minVer, err := semver.NewVersion(minStr)
	if err != nil {
		s.logger.Debug("unparseable minAgentVersion from backend", "value", minStr)
		return
	}
	ours, err := semver.NewVersion(s.cfg.AgentVersion)
	if err != nil {
		return
	}
	if ours.LessThan(minVer) {
		s.logger.Warn("agent version below backend minimum, please update",
			"version", s.cfg.AgentVersion, "minimum", minStr)
	}
}

// connectionManager owns the reconnect schedule.
func (s *Session) connectionManager() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.reconnectChan:
		}

		s.mu.Lock()
		attempt := s.attempt
		s.attempt++
		s.mu.Unlock()

		delay := reconnectDelays[len(reconnectDelays)-1]
		if attempt < len(reconnectDelays) {
			delay = reconnectDelays[attempt]
		}
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}

		s.setState(StateReconnecting)
		s.logger.Info("reconnecting", "attempt", attempt+1, "delay", delay.String())
		if s.handlers.OnReconnecting != nil {
			s.handlers.OnReconnecting(attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.connect(); err != nil {
			s.logger.Warn("reconnect attempt failed", "attempt", attempt+1, "error", err)
			if s.handlers.OnReconnectFailed != nil {
				s.handlers.OnReconnectFailed(attempt+1, err)
			}
			// Rejected credentials wait for the operator instead of
			// burning attempts in a loop.
			if !errors.Is(err, errAuthRejected) {
				s.scheduleReconnect()
			}
		}
	}
}

func (s *Session) scheduleReconnect() {
	select {
	case s.reconnectChan <- struct{}{}:
	default:
	}
}

// readLoop drains one websocket until it dies, dispatching inbound
// messages. epoch guards against a stale loop scheduling reconnects after
// an in-place replacement.
func (s *Session) readLoop(conn *ws.Conn, epoch int) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		current := s.connEpoch == epoch && !s.stopped
		if current {
			s.conn = nil
		}
		s.mu.Unlock()
		if current {
			s.setState(StateDisconnected)
			s.scheduleReconnect()
		}
	}()

	for {
		if s.ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		raw, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var msg ws.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("discarding malformed message", "error", err)
			continue
		}
		s.dispatch(&msg)
	}
}

// pingLoop keeps an idle connection alive. It exits when its epoch is
// replaced or the ping write fails; the read loop owns reconnection.
func (s *Session) pingLoop(conn *ws.Conn, epoch int) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.RLock()
		current := s.connEpoch == epoch
		s.mu.RUnlock()
		if !current {
			return
		}
		if err := conn.WritePing(writeTimeout); err != nil {
			s.logger.Debug("keepalive ping failed", "error", err)
			return
		}
	}
}

// dispatch resolves a pending waiter or handles a push message.
func (s *Session) dispatch(msg *ws.Message) {
	if s.resolveWaiter(msg) {
		return
	}

	switch msg.Type {
	case ws.MessageTypeNewPrintJob:
		job, err := protocol.JobFromWire(msg.Data)
		if err == nil {
			err = job.Validate()
		}
		if err != nil {
			s.logger.Error("rejecting malformed print job", "error", err)
			return
		}
		s.logger.Info("received print job",
			"id", job.ID, "printer", job.PrinterSystemName, "type", string(job.DocumentType))
		if s.handlers.OnNewJob != nil {
			s.handlers.OnNewJob(job)
		}

	case ws.MessageTypeHeartbeatAck:
		s.logger.Debug("heartbeat acknowledged")

	case ws.MessageTypeJobStatusUpdated:
		// Fire-and-forget job updates do not wait for this ack.
		s.logger.Debug("job status acknowledged", "jobId", stringField(msg.Data, "jobId"))

	case ws.MessageTypeError:
		s.logger.Warn("backend error", "message", stringField(msg.Data, "message"))

	default:
		s.logger.Debug("unhandled message type", "type", msg.Type)
	}
}

// resolveWaiter delivers msg to the first waiter expecting its type.
func (s *Session) resolveWaiter(msg *ws.Message) bool {
	s.mu.Lock()
	for i, w := range s.waiters {
		if msg.Type == w.ackType || msg.Type == w.errType {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			s.mu.Unlock()
			w.ch <- msg
			return true
		}
	}
	s.mu.Unlock()
	return false
}

func (s *Session) removeWaiter(w *waiter) {
	s.mu.Lock()
	for i, cand := range s.waiters {
		if cand == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// request emits msg and blocks until the ack or error reply, removing the
// waiter on every path.
func (s *Session) request(conn *ws.Conn, msg *ws.Message, ackType, errType string, timeout time.Duration) (*ws.Message, error) {
	w := &waiter{ackType: ackType, errType: errType, ch: make(chan *ws.Message, 1)}
	s.mu.Lock()
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	if err := conn.WriteMessage(msg, writeTimeout); err != nil {
		s.removeWaiter(w)
		return nil, fmt.Errorf("sending %s: %w", msg.Type, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-w.ch:
		return reply, nil
	case <-timer.C:
		s.removeWaiter(w)
		return nil, fmt.Errorf("timed out waiting for %s", ackType)
	case <-s.ctx.Done():
		s.removeWaiter(w)
		return nil, s.ctx.Err()
	}
}

// currentConn returns the live connection or an error while down.
func (s *Session) currentConn() (*ws.Conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil || s.state != StateConnected {
		return nil, errors.New("not connected")
	}
	return s.conn, nil
}

// RegisterPrinter registers one descriptor and caches it for replay after
// reconnect.
func (s *Session) RegisterPrinter(desc printers.Descriptor) error {
	conn, err := s.currentConn()
	if err != nil {
		return err
	}

	msg := &ws.Message{Type: ws.MessageTypeRegister, Data: descriptorToWire(desc)}
	if _, err := s.request(conn, msg, ws.MessageTypeRegistered, ws.MessageTypeError, s.cfg.RequestTimeout); err != nil {
		return fmt.Errorf("registering %s: %w", desc.SystemName, err)
	}

	s.mu.Lock()
	if _, known := s.regByID[desc.SystemName]; !known {
		s.regOrder = append(s.regOrder, desc.SystemName)
	}
	s.regByID[desc.SystemName] = desc
	s.mu.Unlock()

	s.logger.Info("printer registered", "printer", desc.SystemName, "type", string(desc.Type))
	return nil
}

// RegisteredPrinters returns the replay cache in insertion order.
func (s *Session) RegisteredPrinters() []printers.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]printers.Descriptor, 0, len(s.regOrder))
	for _, id := range s.regOrder {
		out = append(out, s.regByID[id])
	}
	return out
}

// replayRegistrations re-registers every cached descriptor, best effort.
func (s *Session) replayRegistrations() {
	for _, desc := range s.RegisteredPrinters() {
		conn, err := s.currentConn()
		if err != nil {
			return
		}
		msg := &ws.Message{Type: ws.MessageTypeRegister, Data: descriptorToWire(desc)}
		if _, err := s.request(conn, msg, ws.MessageTypeRegistered, ws.MessageTypeError, s.cfg.RequestTimeout); err != nil {
			s.logger.Warn("registration replay failed", "printer", desc.SystemName, "error", err)
			continue
		}
		s.logger.Debug("registration replayed", "printer", desc.SystemName)
	}
}

// UpdatePrinterStatus reports a printer status change and awaits the ack.
func (s *Session) UpdatePrinterStatus(printerID, status string, meta map[string]interface{}) error {
	conn, err := s.currentConn()
	if err != nil {
		return err
	}
	msg := &ws.Message{
		Type: ws.MessageTypePrinterStatus,
		Data: map[string]interface{}{
			"printerId": printerID,
			"status":    status,
			"metadata":  meta,
		},
	}
	if _, err := s.request(conn, msg, ws.MessageTypeStatusUpdated, ws.MessageTypeError, s.cfg.RequestTimeout); err != nil {
		return fmt.Errorf("updating status of %s: %w", printerID, err)
	}
	return nil
}

// SendHeartbeat emits one heartbeat without awaiting the ack.
func (s *Session) SendHeartbeat(printerID string) error {
	conn, err := s.currentConn()
	if err != nil {
		return err
	}
	msg := &ws.Message{
		Type: ws.MessageTypeHeartbeat,
		Data: map[string]interface{}{"printerId": printerID},
	}
	return conn.WriteMessage(msg, writeTimeout)
}

// PendingJobs asks the backend for every job waiting for this client.
func (s *Session) PendingJobs() ([]*protocol.Job, error) {
	conn, err := s.currentConn()
	if err != nil {
		return nil, err
	}
	msg := &ws.Message{
		Type: ws.MessageTypePendingJobs,
		Data: map[string]interface{}{"clientId": s.cfg.Credentials.ClientID},
	}
	reply, err := s.request(conn, msg, ws.MessageTypePendingJobsReply, ws.MessageTypeError, s.cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetching pending jobs: %w", err)
	}
	if reply.Type == ws.MessageTypeError {
		return nil, fmt.Errorf("fetching pending jobs: %s", stringField(reply.Data, "message"))
	}

	rawJobs, _ := reply.Data["jobs"].([]interface{})
	jobs := make([]*protocol.Job, 0, len(rawJobs))
	for _, raw := range rawJobs {
		wire, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		job, err := protocol.JobFromWire(wire)
		if err == nil {
			err = job.Validate()
		}
		if err != nil {
			s.logger.Warn("skipping malformed pending job", "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// UpdateJobStatus reports job progress fire-and-forget. Awaiting acks here
// would race concurrent jobs on the shared reply channel.
func (s *Session) UpdateJobStatus(jobID, status string, meta map[string]interface{}) error {
	conn, err := s.currentConn()
	if err != nil {
		return err
	}
	msg := &ws.Message{
		Type: ws.MessageTypeJobStatus,
		Data: map[string]interface{}{
			"jobId":    jobID,
			"status":   status,
			"metadata": meta,
		},
	}
	return conn.WriteMessage(msg, writeTimeout)
}

// heartbeatLoop emits heartbeats for every registered printer while
// connected, silent otherwise.
func (s *Session) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.Connected() {
			continue
		}
		for _, desc := range s.RegisteredPrinters() {
			if err := s.SendHeartbeat(desc.SystemName); err != nil {
				s.logger.Debug("heartbeat failed", "printer", desc.SystemName, "error", err)
			}
		}
	}
}

// descriptorToWire flattens a descriptor through its JSON tags.
func descriptorToWire(desc printers.Descriptor) map[string]interface{} {
	raw, err := json.Marshal(desc)
	if err != nil {
		return map[string]interface{}{"systemName": desc.SystemName}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{"systemName": desc.SystemName}
	}
	return out
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	v, _ := data[key].(string)
	return v
}

func boolField(data map[string]interface{}, key string) bool {
	if data == nil {
		return false
	}
	v, _ := data[key].(bool)
	return v
}
