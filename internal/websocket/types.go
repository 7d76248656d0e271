package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaihank/fin-sentinel/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeMasking reports how many spans a request had masked
	EventTypeMasking EventType = "masking"
	// EventTypeVerdict reports an output gate decision
	EventTypeVerdict EventType = "gate_verdict"
	// EventTypeIngest reports a finished statement ingestion
	EventTypeIngest EventType = "ingest"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients. Event payloads carry
// counts, classes and hashes only.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// MaskingEvent summarizes masking of one request
type MaskingEvent struct {
	Direction     string            `json:"direction"` // prompt or response
	Findings      []privacy.Finding `json:"findings"`
	TotalFindings int               `json:"total_findings"`
	PromptHash    string            `json:"prompt_hash,omitempty"`
}

// VerdictEvent reports the output gate decision for a request
type VerdictEvent struct {
	Status     string `json:"status"`
	Confidence string `json:"confidence"`
	Sources    int    `json:"sources"`
	PromptHash string `json:"prompt_hash"`
}

// IngestEvent reports an ingestion run
type IngestEvent struct {
	Source   string            `json:"source"`
	Rows     int64             `json:"rows"`
	Indexed  int64             `json:"indexed"`
	Skipped  int64             `json:"skipped"`
	Failed   int64             `json:"failed"`
	Findings []privacy.Finding `json:"findings"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	// nil means every event type
	subscription map[EventType]bool
}
