package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairmind/print-agent/printers"
	"repairmind/print-agent/protocol"
	"repairmind/print-agent/ws"
)

// fakeBackend is an in-process websocket endpoint speaking the agent
// protocol. It authenticates, acks registrations and records everything it
// receives.
type fakeBackend struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	conns       []*websocket.Conn
	received    []ws.Message
	rejectAuth  bool
	pendingJobs []map[string]interface{}
	ignoreTypes map[string]bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{t: t, ignoreTypes: map[string]bool{}}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func (b *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		b.mu.Lock()
		b.received = append(b.received, msg)
		reject := b.rejectAuth
		ignore := b.ignoreTypes[msg.Type]
		jobs := b.pendingJobs
		b.mu.Unlock()

		if ignore {
			continue
		}
		switch msg.Type {
		case ws.MessageTypeAuthenticate:
			if reject {
				conn.WriteJSON(ws.Message{
					Type: ws.MessageTypeAuthError,
					Data: map[string]interface{}{"message": "invalid token"},
				})
			} else {
				conn.WriteJSON(ws.Message{
					Type: ws.MessageTypeAuthenticated,
					Data: map[string]interface{}{"success": true, "minAgentVersion": "1.0.0"},
				})
			}
		case ws.MessageTypeRegister:
			conn.WriteJSON(ws.Message{Type: ws.MessageTypeRegistered})
		case ws.MessageTypePrinterStatus:
			conn.WriteJSON(ws.Message{Type: ws.MessageTypeStatusUpdated})
		case ws.MessageTypeHeartbeat:
			conn.WriteJSON(ws.Message{Type: ws.MessageTypeHeartbeatAck})
		case ws.MessageTypePendingJobs:
			payload := map[string]interface{}{}
			if jobs != nil {
				arr := make([]interface{}, len(jobs))
				for i, j := range jobs {
					arr[i] = j
				}
				payload["jobs"] = arr
			}
			conn.WriteJSON(ws.Message{Type: ws.MessageTypePendingJobsReply, Data: payload})
		}
	}
}

func (b *fakeBackend) push(msg ws.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(b.t, b.conns)
	require.NoError(b.t, b.conns[len(b.conns)-1].WriteJSON(msg))
}

func (b *fakeBackend) dropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		c.Close()
	}
}

func (b *fakeBackend) messagesOf(msgType string) []ws.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []ws.Message
	for _, m := range b.received {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func testConfig(url string) Config {
	return Config{
		URL:          url,
		Credentials:  Credentials{TenantID: "t1", ClientID: "c1", Token: "tok", APIKey: "key"},
		AgentVersion: "2.1.0",
		// Keep test failures fast.
		RequestTimeout: 2 * time.Second,
		AuthTimeout:    2 * time.Second,
	}
}

func fastReconnect(t *testing.T) {
	t.Helper()
	old := reconnectDelays
	reconnectDelays = []time.Duration{10 * time.Millisecond}
	t.Cleanup(func() { reconnectDelays = old })
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond, msg)
}

func TestConnectAndAuthenticate(t *testing.T) {
	backend := newFakeBackend(t)

	var mu sync.Mutex
	var connectedCalls []bool
	s := New(testConfig(backend.url()), Handlers{
		OnConnected: func(reconnected bool) {
			mu.Lock()
			connectedCalls = append(connectedCalls, reconnected)
			mu.Unlock()
		},
	}, nil)
	defer s.Stop()

	s.Start()
	waitFor(t, s.Connected, "session never connected")

	auth := backend.messagesOf(ws.MessageTypeAuthenticate)
	require.Len(t, auth, 1)
	assert.Equal(t, "t1", auth[0].Data["tenantId"])
	assert.Equal(t, "c1", auth[0].Data["clientId"])

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(connectedCalls) == 1
	}, "OnConnected never fired")
	mu.Lock()
	assert.False(t, connectedCalls[0], "first connection is not a reconnect")
	mu.Unlock()
}

func TestAuthRejectionStaysDown(t *testing.T) {
	backend := newFakeBackend(t)
	backend.rejectAuth = true
	fastReconnect(t)

	var mu sync.Mutex
	var authErr string
	s := New(testConfig(backend.url()), Handlers{
		OnAuthError: func(message string) {
			mu.Lock()
			authErr = message
			mu.Unlock()
		},
	}, nil)
	defer s.Stop()

	s.Start()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return authErr != ""
	}, "OnAuthError never fired")

	mu.Lock()
	assert.Equal(t, "invalid token", authErr)
	mu.Unlock()

	// No credential-rejection loop: the attempt count stays put.
	time.Sleep(100 * time.Millisecond)
	assert.NotEqual(t, StateConnected, s.State())
	auth := backend.messagesOf(ws.MessageTypeAuthenticate)
	assert.LessOrEqual(t, len(auth), 2, "must not hammer rejected credentials")
}

func TestRegisterPrinterAndReplayOnReconnect(t *testing.T) {
	backend := newFakeBackend(t)
	fastReconnect(t)

	var mu sync.Mutex
	var reconnects int
	s := New(testConfig(backend.url()), Handlers{
		OnConnected: func(reconnected bool) {
			if reconnected {
				mu.Lock()
				reconnects++
				mu.Unlock()
			}
		},
	}, nil)
	defer s.Stop()

	s.Start()
	waitFor(t, s.Connected, "session never connected")

	desc := printers.Descriptor{SystemName: "EPSON_TM_T88V", Type: printers.TypeThermal}
	require.NoError(t, s.RegisterPrinter(desc))
	assert.Len(t, s.RegisteredPrinters(), 1)

	backend.dropConnections()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reconnects >= 1
	}, "session never reconnected")

	waitFor(t, func() bool {
		return len(backend.messagesOf(ws.MessageTypeRegister)) >= 2
	}, "registration was not replayed")

	regs := backend.messagesOf(ws.MessageTypeRegister)
	assert.Equal(t, "EPSON_TM_T88V", regs[len(regs)-1].Data["systemName"])
}

func TestPendingJobs(t *testing.T) {
	backend := newFakeBackend(t)
	backend.pendingJobs = []map[string]interface{}{
		{
			"id":                "srv-1",
			"printerSystemName": "P1",
			"documentType":      "receipt",
			"content":           map[string]interface{}{"storeName": "Atelier"},
		},
		{
			// Malformed entries are skipped, not fatal.
			"documentType": "receipt",
		},
	}

	s := New(testConfig(backend.url()), Handlers{}, nil)
	defer s.Stop()
	s.Start()
	waitFor(t, s.Connected, "session never connected")

	jobs, err := s.PendingJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "srv-1", jobs[0].ID)
	assert.Equal(t, protocol.DocReceipt, jobs[0].DocumentType)

	sent := backend.messagesOf(ws.MessageTypePendingJobs)
	require.Len(t, sent, 1)
	assert.Equal(t, "c1", sent[0].Data["clientId"])
}

func TestNewPrintJobPush(t *testing.T) {
	backend := newFakeBackend(t)

	jobCh := make(chan *protocol.Job, 1)
	s := New(testConfig(backend.url()), Handlers{
		OnNewJob: func(job *protocol.Job) { jobCh <- job },
	}, nil)
	defer s.Stop()
	s.Start()
	waitFor(t, s.Connected, "session never connected")

	backend.push(ws.Message{
		Type: ws.MessageTypeNewPrintJob,
		Data: map[string]interface{}{
			"id":                "push-1",
			"printerSystemName": "P1",
			"documentType":      "raw",
			"content":           map[string]interface{}{"rawData": "aGVsbG8="},
		},
	})

	select {
	case job := <-jobCh:
		assert.Equal(t, "push-1", job.ID)
		assert.Equal(t, protocol.DocRaw, job.DocumentType)
	case <-time.After(5 * time.Second):
		t.Fatal("pushed job never delivered")
	}
}

func TestMalformedPushedJobIgnored(t *testing.T) {
	backend := newFakeBackend(t)

	jobCh := make(chan *protocol.Job, 2)
	s := New(testConfig(backend.url()), Handlers{
		OnNewJob: func(job *protocol.Job) { jobCh <- job },
	}, nil)
	defer s.Stop()
	s.Start()
	waitFor(t, s.Connected, "session never connected")

	// No printerSystemName: dropped before reaching the handler.
	backend.push(ws.Message{
		Type: ws.MessageTypeNewPrintJob,
		Data: map[string]interface{}{"id": "bad-1", "documentType": "receipt"},
	})
	backend.push(ws.Message{
		Type: ws.MessageTypeNewPrintJob,
		Data: map[string]interface{}{
			"id":                "good-1",
			"printerSystemName": "P1",
			"documentType":      "receipt",
			"content":           map[string]interface{}{"storeName": "Atelier"},
		},
	})

	select {
	case job := <-jobCh:
		assert.Equal(t, "good-1", job.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("valid job never delivered")
	}
	select {
	case job := <-jobCh:
		t.Fatalf("invalid job %q must not be delivered", job.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func fastKeepalive(t *testing.T) {
	t.Helper()
	oldRead, oldPing := readTimeout, pingInterval
	readTimeout = 75 * time.Millisecond
	pingInterval = 25 * time.Millisecond
	t.Cleanup(func() { readTimeout, pingInterval = oldRead, oldPing })
}

func TestIdleConnectionStaysAlive(t *testing.T) {
	backend := newFakeBackend(t)
	fastKeepalive(t)
	fastReconnect(t)

	s := New(testConfig(backend.url()), Handlers{}, nil)
	defer s.Stop()
	s.Start()
	waitFor(t, s.Connected, "session never connected")

	// Several read-deadline windows with no application traffic; only the
	// keepalive pings hold the connection open.
	time.Sleep(400 * time.Millisecond)

	assert.True(t, s.Connected(), "idle connection must stay up")
	assert.Len(t, backend.messagesOf(ws.MessageTypeAuthenticate), 1,
		"an idle connection must not be redialed")
}

func TestUpdateJobStatusFireAndForget(t *testing.T) {
	backend := newFakeBackend(t)

	s := New(testConfig(backend.url()), Handlers{}, nil)
	defer s.Stop()
	s.Start()
	waitFor(t, s.Connected, "session never connected")

	require.NoError(t, s.UpdateJobStatus("j1", "sent", nil))
	require.NoError(t, s.UpdateJobStatus("j1", "completed", map[string]interface{}{"detail": "ok"}))

	waitFor(t, func() bool {
		return len(backend.messagesOf(ws.MessageTypeJobStatus)) == 2
	}, "job status messages never arrived")

	updates := backend.messagesOf(ws.MessageTypeJobStatus)
	assert.Equal(t, "sent", updates[0].Data["status"])
	assert.Equal(t, "completed", updates[1].Data["status"])
}

func TestRequestTimeoutCleansUpWaiter(t *testing.T) {
	backend := newFakeBackend(t)
	backend.mu.Lock()
	backend.ignoreTypes[ws.MessageTypePrinterStatus] = true
	backend.mu.Unlock()

	cfg := testConfig(backend.url())
	cfg.RequestTimeout = 100 * time.Millisecond
	s := New(cfg, Handlers{}, nil)
	defer s.Stop()
	s.Start()
	waitFor(t, s.Connected, "session never connected")

	err := s.UpdatePrinterStatus("P1", "ready", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	s.mu.RLock()
	pending := len(s.waiters)
	s.mu.RUnlock()
	assert.Zero(t, pending, "waiter must be removed on timeout")
}

func TestOperationsWhileDisconnected(t *testing.T) {
	s := New(testConfig("ws://127.0.0.1:1"), Handlers{}, nil)
	// Never started: every operation refuses cleanly.

	assert.Error(t, s.RegisterPrinter(printers.Descriptor{SystemName: "P"}))
	assert.Error(t, s.UpdatePrinterStatus("P", "ready", nil))
	assert.Error(t, s.SendHeartbeat("P"))
	assert.Error(t, s.UpdateJobStatus("j", "sent", nil))
	_, err := s.PendingJobs()
	assert.Error(t, err)
}

func TestDescriptorToWire(t *testing.T) {
	desc := printers.Descriptor{
		SystemName:  "Star_TSP143",
		DisplayName: "Star TSP143",
		Type:        printers.TypeThermal,
		Transport:   printers.TransportUSB,
	}
	wire := descriptorToWire(desc)
	assert.Equal(t, "Star_TSP143", wire["systemName"])
	assert.Equal(t, "thermal", wire["type"])

	// Round-trips through plain JSON.
	raw, err := json.Marshal(wire)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"usb"`)
}
