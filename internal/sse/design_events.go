package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"printmill/internal/models"
)

// DesignEventEmitter manages SSE connections and fan-out of design lifecycle
// events. Render workers publish to Kafka; the API service consumes the topic
// and feeds this emitter, which pushes to per-user and per-design subscribers.
type DesignEventEmitter struct {
	// key: userID, value: slice of client channels
	userClients     map[string][]chan models.DesignEvent
	userClientMutex sync.RWMutex

	// key: designID, value: slice of client channels
	designClients     map[string][]chan models.DesignEvent
	designClientMutex sync.RWMutex
}

func NewDesignEventEmitter() *DesignEventEmitter {
	return &DesignEventEmitter{
		userClients:   make(map[string][]chan models.DesignEvent),
		designClients: make(map[string][]chan models.DesignEvent),
	}
}

// SubscribeToUser adds a client receiving every design event of one user.
func (e *DesignEventEmitter) SubscribeToUser(ctx context.Context, userID string) chan models.DesignEvent {
	clientChan := make(chan models.DesignEvent, 10)

	e.userClientMutex.Lock()
	e.userClients[userID] = append(e.userClients[userID], clientChan)
	e.userClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeUserClient(userID, clientChan)
	}()

	return clientChan
}

// SubscribeToDesign adds a client receiving events for one design.
func (e *DesignEventEmitter) SubscribeToDesign(ctx context.Context, designID string) chan models.DesignEvent {
	clientChan := make(chan models.DesignEvent, 10)

	e.designClientMutex.Lock()
	e.designClients[designID] = append(e.designClients[designID], clientChan)
	e.designClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeDesignClient(designID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts a design event to all subscribed clients.
func (e *DesignEventEmitter) Emit(ev models.DesignEvent) {
	e.userClientMutex.RLock()
	userClients := e.userClients[ev.UserID]
	e.userClientMutex.RUnlock()

	for _, clientChan := range userClients {
		// Non-blocking send so a slow client never stalls the emitter.
		select {
		case clientChan <- ev:
		default:
		}
	}

	e.designClientMutex.RLock()
	designClients := e.designClients[ev.DesignID]
	e.designClientMutex.RUnlock()

	for _, clientChan := range designClients {
		select {
		case clientChan <- ev:
		default:
		}
	}
}

func (e *DesignEventEmitter) removeUserClient(userID string, clientChan chan models.DesignEvent) {
	e.userClientMutex.Lock()
	defer e.userClientMutex.Unlock()

	clients := e.userClients[userID]
	for i, ch := range clients {
		if ch == clientChan {
			e.userClients[userID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.userClients[userID]) == 0 {
		delete(e.userClients, userID)
	}
}

func (e *DesignEventEmitter) removeDesignClient(designID string, clientChan chan models.DesignEvent) {
	e.designClientMutex.Lock()
	defer e.designClientMutex.Unlock()

	clients := e.designClients[designID]
	for i, ch := range clients {
		if ch == clientChan {
			e.designClients[designID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.designClients[designID]) == 0 {
		delete(e.designClients, designID)
	}
}

// GetUserClientCount returns the number of clients subscribed for a user.
func (e *DesignEventEmitter) GetUserClientCount(userID string) int {
	e.userClientMutex.RLock()
	defer e.userClientMutex.RUnlock()
	return len(e.userClients[userID])
}

// ServeUserStream writes the SSE stream of one user's design events until the
// client disconnects.
func (e *DesignEventEmitter) ServeUserStream(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := e.SubscribeToUser(r.Context(), userID)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		}
	}
}
