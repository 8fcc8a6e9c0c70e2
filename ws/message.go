// Package ws holds the websocket message envelope and a small connection
// wrapper shared by the session layer and its tests.
package ws

import (
	"encoding/json"
	"time"
)

// Message is the wire envelope: one JSON message per event.
type Message struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
	// ReqID correlates a request-style emit with its ack or error reply.
	// Fire-and-forget messages leave it empty.
	ReqID     string    `json:"reqId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Marshal marshals the message to JSON bytes, stamping the timestamp if unset.
func (m *Message) Marshal() ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return json.Marshal(m)
}

// Message types the agent sends.
const (
	MessageTypeAuthenticate  = "authenticate"
	MessageTypeRegister      = "register_printer"
	MessageTypePrinterStatus = "printer_status"
	MessageTypeHeartbeat     = "heartbeat"
	MessageTypePendingJobs   = "get_pending_jobs"
	MessageTypeJobStatus     = "job_status"
)

// Message types the agent receives.
const (
	MessageTypeAuthenticated    = "authenticated"
	MessageTypeAuthError        = "auth_error"
	MessageTypeRegistered       = "printer_registered"
	MessageTypeStatusUpdated    = "status_updated"
	MessageTypeHeartbeatAck     = "heartbeat_ack"
	MessageTypePendingJobsReply = "pending_jobs"
	MessageTypeJobStatusUpdated = "job_status_updated"
	MessageTypeNewPrintJob      = "new_print_job"
	MessageTypeError            = "error"
)
