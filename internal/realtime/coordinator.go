package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"boardroom/api/internal/store"
	"boardroom/api/internal/tally"
)

// IssueCard is one issue plus the current tally of its director votes.
type IssueCard struct {
	Issue   store.Issue     `json:"issue"`
	Summary []tally.Summary `json:"summary"`
}

// Snapshot is the board state a session renders from. The coordinator
// mutates it only from its event loop, so readers always see a state that
// some sequence of applied events produced.
type Snapshot struct {
	Chat        []store.ChatMessage `json:"chat"`
	ChatCount   int                 `json:"chat_count"`
	Issues      []IssueCard         `json:"issues"`
	ActionItems []store.ActionItem  `json:"action_items"`
}

// Loader reloads board state from the store. Chat is the only family
// applied incrementally; issues and action items are always reloaded
// whole.
type Loader interface {
	LoadChat(ctx context.Context) ([]store.ChatMessage, int, error)
	LoadIssueCards(ctx context.Context) ([]IssueCard, error)
	LoadActionItems(ctx context.Context) ([]store.ActionItem, error)
}

// Coordinator owns one signed-in session's subscriptions and snapshot.
// It subscribes to all three event families, applies events in arrival
// order per family, and on any subscription drop resubscribes first and
// then reloads everything, so no event can slip between the two.
type Coordinator struct {
	bus    *RedisBus
	loader Loader

	mu               sync.Mutex
	snapshot         Snapshot
	actionViewActive bool
	actionsStale     bool
	listeners        map[int]listener
	nextListener     int
	closed           bool
	pubsub           *redis.PubSub

	cancel context.CancelFunc
	done   chan struct{}
}

type listener struct {
	family string
	ch     chan store.ChangeEvent
}

// NewCoordinator builds a coordinator. Call Start to load the initial
// snapshot and begin receiving events.
func NewCoordinator(bus *RedisBus, loader Loader) *Coordinator {
	return &Coordinator{
		bus:       bus,
		loader:    loader,
		listeners: make(map[int]listener),
		done:      make(chan struct{}),
	}
}

// Start subscribes to all event families and then performs the initial
// full load. Events that arrive while the load is in flight are applied
// after it, which at worst repeats state the load already saw.
func (c *Coordinator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	pubsub := c.bus.Subscribe(runCtx, store.FamilyChat, store.FamilyIssues, store.FamilyActionItems)
	c.setPubSub(pubsub)
	if _, err := pubsub.Receive(runCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return err
	}

	if err := c.reloadAll(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return err
	}

	go c.run(runCtx, pubsub)
	return nil
}

func (c *Coordinator) run(ctx context.Context, pubsub *redis.PubSub) {
	defer close(c.done)
	defer func() {
		if pubsub != nil {
			_ = pubsub.Close()
		}
	}()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Dropped subscription. Resubscribe before reloading so
			// nothing published in between is missed, then treat the
			// reload as the new baseline.
			_ = pubsub.Close()
			pubsub = c.resubscribe(ctx)
			if pubsub == nil {
				return
			}
			if err := c.reloadAll(ctx); err != nil {
				log.Printf(`{"level":"error","msg":"reload after reconnect","error":%q}`, err.Error())
			}
			continue
		}

		family := c.bus.FamilyFromChannel(msg.Channel)
		var event store.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf(`{"level":"warn","msg":"malformed change event","family":%q,"error":%q}`, family, err.Error())
			continue
		}

		c.apply(ctx, family, event)
		c.notify(family, event)
	}
}

func (c *Coordinator) resubscribe(ctx context.Context) *redis.PubSub {
	for {
		if ctx.Err() != nil {
			return nil
		}
		pubsub := c.bus.Subscribe(ctx, store.FamilyChat, store.FamilyIssues, store.FamilyActionItems)
		c.setPubSub(pubsub)
		if _, err := pubsub.Receive(ctx); err == nil {
			return pubsub
		}
		_ = pubsub.Close()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

// setPubSub records the subscription the event loop currently blocks
// on, so Close can unblock it. ReceiveMessage does not return on
// context cancellation alone; closing the PubSub is what interrupts it.
func (c *Coordinator) setPubSub(pubsub *redis.PubSub) {
	c.mu.Lock()
	c.pubsub = pubsub
	c.mu.Unlock()
}

func (c *Coordinator) apply(ctx context.Context, family string, event store.ChangeEvent) {
	switch family {
	case store.FamilyChat:
		// Chat is insert-only: append and bump the count, no reload.
		if event.EventType != store.EventInsert {
			return
		}
		message, ok := chatMessageFromEvent(event)
		if !ok {
			return
		}
		c.mu.Lock()
		c.snapshot.Chat = append(c.snapshot.Chat, message)
		c.snapshot.ChatCount++
		c.mu.Unlock()

	case store.FamilyIssues:
		// Any issue or vote change invalidates the derived cards, so
		// recompute the whole set rather than patching one card.
		cards, err := c.loader.LoadIssueCards(ctx)
		if err != nil {
			log.Printf(`{"level":"error","msg":"reload issue cards","error":%q}`, err.Error())
			return
		}
		c.mu.Lock()
		c.snapshot.Issues = cards
		c.mu.Unlock()

	case store.FamilyActionItems:
		c.mu.Lock()
		active := c.actionViewActive
		if !active {
			c.actionsStale = true
		}
		c.mu.Unlock()
		if !active {
			return
		}
		items, err := c.loader.LoadActionItems(ctx)
		if err != nil {
			log.Printf(`{"level":"error","msg":"reload action items","error":%q}`, err.Error())
			return
		}
		c.mu.Lock()
		c.snapshot.ActionItems = items
		c.mu.Unlock()
	}
}

func (c *Coordinator) reloadAll(ctx context.Context) error {
	chat, count, err := c.loader.LoadChat(ctx)
	if err != nil {
		return err
	}
	cards, err := c.loader.LoadIssueCards(ctx)
	if err != nil {
		return err
	}
	items, err := c.loader.LoadActionItems(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.snapshot = Snapshot{Chat: chat, ChatCount: count, Issues: cards, ActionItems: items}
	c.actionsStale = false
	c.mu.Unlock()
	return nil
}

// SetActionItemsViewActive marks whether the session is looking at the
// action items view. Events for an inactive view only mark the list
// stale; activating a stale view reloads it once.
func (c *Coordinator) SetActionItemsViewActive(ctx context.Context, active bool) error {
	c.mu.Lock()
	c.actionViewActive = active
	stale := c.actionsStale
	c.mu.Unlock()

	if !active || !stale {
		return nil
	}

	items, err := c.loader.LoadActionItems(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.snapshot.ActionItems = items
	c.actionsStale = false
	c.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current board state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Chat:        make([]store.ChatMessage, len(c.snapshot.Chat)),
		ChatCount:   c.snapshot.ChatCount,
		Issues:      make([]IssueCard, len(c.snapshot.Issues)),
		ActionItems: make([]store.ActionItem, len(c.snapshot.ActionItems)),
	}
	copy(snap.Chat, c.snapshot.Chat)
	copy(snap.Issues, c.snapshot.Issues)
	copy(snap.ActionItems, c.snapshot.ActionItems)
	return snap
}

// Events registers a listener for one family's change events, for
// streaming to the browser. The returned cancel func unregisters it; the
// channel is closed on cancel or coordinator shutdown.
func (c *Coordinator) Events(family string) (<-chan store.ChangeEvent, func()) {
	ch := make(chan store.ChangeEvent, 32)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = listener{family: family, ch: ch}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if l, ok := c.listeners[id]; ok {
			delete(c.listeners, id)
			close(l.ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Coordinator) notify(family string, event store.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.listeners {
		if l.family != family {
			continue
		}
		select {
		case l.ch <- event:
		default:
			// Slow consumer; drop rather than stall the event loop.
		}
	}
}

// Close tears the session down: the subscription stops first, then
// listener channels close, then the snapshot is released. Safe to call
// more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.mu.Lock()
		pubsub := c.pubsub
		c.mu.Unlock()
		if pubsub != nil {
			_ = pubsub.Close()
		}
		<-c.done
	}

	c.mu.Lock()
	for id, l := range c.listeners {
		delete(c.listeners, id)
		close(l.ch)
	}
	c.snapshot = Snapshot{}
	c.mu.Unlock()
}

func chatMessageFromEvent(event store.ChangeEvent) (store.ChatMessage, bool) {
	var row struct {
		ID           string    `json:"id"`
		UserEmail    string    `json:"user_email"`
		UserName     string    `json:"user_name"`
		Message      string    `json:"message"`
		OffTheRecord bool      `json:"off_the_record"`
		CreatedAt    time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(event.NewRow, &row); err != nil || row.ID == "" {
		return store.ChatMessage{}, false
	}
	return store.ChatMessage{
		ID:           row.ID,
		UserEmail:    row.UserEmail,
		UserName:     row.UserName,
		Message:      row.Message,
		OffTheRecord: row.OffTheRecord,
		CreatedAt:    row.CreatedAt,
	}, true
}
