package notification

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
	"go.llib.dev/testcase/clock"
)

type UpdateType string

const (
	UpdateProjectCreated      UpdateType = "project_created"
	UpdateProjectAssigned     UpdateType = "project_assigned"
	UpdateProjectMemberJoined UpdateType = "project_member_joined"
	UpdateMemberJoined        UpdateType = "member_joined"
	UpdateOrderCreated        UpdateType = "order_created"
	UpdateOrderStatusChanged  UpdateType = "order_status_changed"
)

type Update struct {
	TeamID    string         `json:"team_id"`
	Type      UpdateType     `json:"update_type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Hub queues team updates until a subscribed user collects them.
// An update is delivered to the first subscriber of its team who polls.
// All state is guarded by a single mutex.
//
// The zero value is ready to use.
type Hub struct {
	m           sync.Mutex
	subscribers map[string][]string
	queue       []Update
	listeners   map[string][]chan struct{}
}

// Subscribe ignores an empty team id, updates without a team are never queued.
func (h *Hub) Subscribe(ctx context.Context, userID, teamID string) {
	if teamID == "" {
		return
	}
	h.m.Lock()
	defer h.m.Unlock()
	if h.subscribers == nil {
		h.subscribers = make(map[string][]string)
	}
	if slices.Contains(h.subscribers[teamID], userID) {
		return
	}
	h.subscribers[teamID] = append(h.subscribers[teamID], userID)
	logger.Debug(ctx, "user subscribed to team updates",
		logging.Field("user_id", userID),
		logging.Field("team_id", teamID))
}

func (h *Hub) Unsubscribe(ctx context.Context, userID, teamID string) {
	h.m.Lock()
	defer h.m.Unlock()
	subs := h.subscribers[teamID]
	i := slices.Index(subs, userID)
	if i < 0 {
		return
	}
	h.subscribers[teamID] = slices.Delete(subs, i, i+1)
	logger.Debug(ctx, "user unsubscribed from team updates",
		logging.Field("user_id", userID),
		logging.Field("team_id", teamID))
}

// Publish queues an update for the team and wakes the listeners of its subscribers.
// Updates of projects without a team are dropped since no one can subscribe to them.
func (h *Hub) Publish(ctx context.Context, teamID string, typ UpdateType, data map[string]any) {
	if teamID == "" {
		return
	}
	h.m.Lock()
	defer h.m.Unlock()
	h.queue = append(h.queue, Update{
		TeamID:    teamID,
		Type:      typ,
		Data:      data,
		Timestamp: clock.Now().UTC(),
	})
	for _, userID := range h.subscribers[teamID] {
		for _, ch := range h.listeners[userID] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
	logger.Debug(ctx, "queued team update",
		logging.Field("team_id", teamID),
		logging.Field("update_type", string(typ)))
}

// Poll removes and returns, in publication order, every queued update
// of the teams the user is subscribed to.
func (h *Hub) Poll(userID string) []Update {
	h.m.Lock()
	defer h.m.Unlock()
	out := []Update{}
	rest := h.queue[:0]
	for _, u := range h.queue {
		if slices.Contains(h.subscribers[u.TeamID], userID) {
			out = append(out, u)
			continue
		}
		rest = append(rest, u)
	}
	clear(h.queue[len(rest):])
	h.queue = rest
	return out
}

// Listen returns a channel that receives a signal whenever an update
// may be waiting for the user. The returned func releases the listener.
func (h *Hub) Listen(userID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.m.Lock()
	defer h.m.Unlock()
	if h.listeners == nil {
		h.listeners = make(map[string][]chan struct{})
	}
	h.listeners[userID] = append(h.listeners[userID], ch)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.m.Lock()
			defer h.m.Unlock()
			ls := h.listeners[userID]
			if i := slices.Index(ls, ch); i >= 0 {
				h.listeners[userID] = slices.Delete(ls, i, i+1)
			}
			if len(h.listeners[userID]) == 0 {
				delete(h.listeners, userID)
			}
		})
	}
}

// Stream calls fn with the user's pending updates every time the user is signalled,
// until ctx is done or fn returns an error.
func (h *Hub) Stream(ctx context.Context, userID string, fn func([]Update) error) error {
	signal, release := h.Listen(userID)
	defer release()
	for {
		if updates := h.Poll(userID); len(updates) > 0 {
			if err := fn(updates); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-signal:
		}
	}
}
