// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package realtime pushes task lifecycle events and monitoring updates
// to dashboard clients over WebSocket.
package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/metrics"
	"github.com/bgapp-platform/bgapp/internal/models"
)

// Message types pushed to clients.
const (
	MessageTypeTaskSubmitted = "task_submitted"
	MessageTypeTaskCompleted = "task_completed"
	MessageTypeTaskFailed    = "task_failed"
	MessageTypeDataUpdate    = "data_update"
	MessageTypeSystemStatus  = "system_status"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Message is one WebSocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of active clients and fans broadcasts out to
// them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub. Run Serve under the supervisor before
// attaching clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Serve runs the hub until context cancellation. Selection is
// prioritized: shutdown first, then client lifecycle, then broadcasts,
// so client state is consistent before messages fan out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.register:
			h.addClient(client)
			continue
		case client := <-h.unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("WebSocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("WebSocket client disconnected")
}

// broadcastToClients fans one message out in client-ID order. Clients
// with a full send buffer are dropped rather than allowed to stall the
// hub.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		logging.Warn().Msg("Dropping slow WebSocket client")
	}
	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WSConnections.Set(0)
	logging.Info().
		Str("component", "realtime-hub").
		Int("clients_closed", count).
		AnErr("reason", ctx.Err()).
		Msg("WebSocket hub stopped")
}

// Broadcast queues a message for all clients, dropping it if the hub is
// saturated.
func (h *Hub) Broadcast(messageType string, data any) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("Broadcast channel full, dropping message")
	}
}

// TaskEventData is the payload of task lifecycle broadcasts.
type TaskEventData struct {
	TaskID    string `json:"task_id"`
	TaskType  string `json:"task_type"`
	Queue     string `json:"queue"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// BroadcastTaskEvent pushes a task lifecycle transition. Succeeded maps
// to task_completed, everything else terminal to task_failed.
func (h *Hub) BroadcastTaskEvent(taskID, taskType, queue, status, errMsg string) {
	msgType := MessageTypeTaskFailed
	switch status {
	case "pending":
		msgType = MessageTypeTaskSubmitted
	case "succeeded":
		msgType = MessageTypeTaskCompleted
	}

	h.Broadcast(msgType, TaskEventData{
		TaskID:    taskID,
		TaskType:  taskType,
		Queue:     queue,
		Status:    status,
		Error:     errMsg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// BroadcastDataUpdate pushes a fresh measurement snapshot after an
// ingest run.
func (h *Hub) BroadcastDataUpdate(data *models.RealTimeData) {
	h.Broadcast(MessageTypeDataUpdate, data)
}

// BroadcastSystemStatus pushes a platform health summary.
func (h *Hub) BroadcastSystemStatus(status *models.SystemStatus) {
	h.Broadcast(MessageTypeSystemStatus, status)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
