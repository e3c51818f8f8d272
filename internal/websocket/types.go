package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/compliance-sentinel/internal/compliance"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeComplianceCheck is sent after every finished check
	EventTypeComplianceCheck EventType = "compliance_check"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"

	eventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// ComplianceCheckEvent describes one finished check
type ComplianceCheckEvent struct {
	PostID       string               `json:"post_id"`
	Platform     string               `json:"platform"`
	IsCompliant  bool                 `json:"is_compliant"`
	RiskLevel    compliance.RiskLevel `json:"risk_level"`
	Violations   int                  `json:"violations"`
	Labels       []string             `json:"labels"`
	ClientIP     string               `json:"client_ip,omitempty"`
	Cached       bool                 `json:"cached"`
	ProcessingMS float64              `json:"processing_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalChecks      int64  `json:"total_checks"`
	NonCompliant     int64  `json:"non_compliant"`
	RulesVersion     string `json:"rules_version"`
	ActiveRules      int    `json:"active_rules"`
	ConnectedClients int    `json:"connected_clients"`
	MemoryUsage      string `json:"memory_usage"`
	Goroutines       int    `json:"goroutines"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows compliance_check events. Other event types pass.
type EventFilter struct {
	MinRisk          compliance.RiskLevel `json:"min_risk,omitempty"`
	Platforms        []string             `json:"platforms,omitempty"`
	ExcludeCompliant bool                 `json:"exclude_compliant,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu           sync.Mutex
	subscription *SubscriptionRequest
	lastPing     time.Time
}

// Subscription returns the client's current subscription, nil meaning all events.
func (c *Client) Subscription() *SubscriptionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscription
}

func (c *Client) setSubscription(sub *SubscriptionRequest) {
	c.mu.Lock()
	c.subscription = sub
	c.mu.Unlock()
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}
