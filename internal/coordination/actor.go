// Package coordination fans batch status transitions out to connected
// stream subscribers. One actor goroutine exists per live batch id; every
// subscribe, unsubscribe, and notify for that batch is serialized through
// the actor's command channel, so a subscriber can neither miss a notify
// that happens after its subscribe nor be notified twice.
package coordination

import (
	"time"

	"github.com/feedworks/refresh-engine/internal/domain"
)

// EventType discriminates the wire events pushed to stream subscribers.
type EventType string

const (
	EventConnected EventType = "connected"
	EventStatus    EventType = "status"
	EventTimeout   EventType = "timeout"
)

// Event is the wire shape shared by the push and fallback streaming
// paths; a client cannot tell the two modes apart by payload.
type Event struct {
	Type        EventType           `json:"type"`
	BatchID     string              `json:"batchId"`
	Status      domain.Status       `json:"status,omitempty"`
	QueuedAt    int64               `json:"queuedAt,omitempty"`
	CompletedAt *int64              `json:"completedAt,omitempty"`
	Result      *domain.BatchResult `json:"result,omitempty"`
}

func ConnectedEvent(batchID string) Event {
	return Event{Type: EventConnected, BatchID: batchID}
}

func StatusEvent(record *domain.BatchStatus) Event {
	return Event{
		Type:        EventStatus,
		BatchID:     record.BatchID,
		Status:      record.Status,
		QueuedAt:    record.QueuedAt,
		CompletedAt: record.CompletedAt,
		Result:      record.Result,
	}
}

func TimeoutEvent(batchID string) Event {
	return Event{Type: EventTimeout, BatchID: batchID}
}

// subscriberBuffer bounds each subscriber channel. The actor never blocks
// on a slow consumer: a full channel drops the subscriber as disconnected.
const subscriberBuffer = 8

type commandKind int

const (
	cmdSubscribe commandKind = iota
	cmdUnsubscribe
	cmdNotify
	// cmdSeed carries the status store snapshot read after the actor was
	// registered. It behaves like a notify, except a same-stage snapshot
	// silently refreshes the state instead of being discarded, so the
	// placeholder the actor started from picks up the store's timestamps.
	cmdSeed
)

type actorCommand struct {
	kind       commandKind
	subscriber chan Event
	record     *domain.BatchStatus
}

type actor struct {
	batchID string
	cmds    chan actorCommand
	// stopped is closed after the run loop exits and the actor has been
	// removed from the registry; senders select on it to avoid blocking
	// on a dead actor.
	stopped chan struct{}
}

func newActor(batchID string) *actor {
	return &actor{
		batchID: batchID,
		cmds:    make(chan actorCommand),
		stopped: make(chan struct{}),
	}
}

func (a *actor) send(cmd actorCommand) bool {
	select {
	case a.cmds <- cmd:
		return true
	case <-a.stopped:
		return false
	}
}

// run owns all actor state. It exits once a terminal status has been
// delivered and the fan-out set drained, or after idleTTL with no
// subscribers and no activity.
func (a *actor) run(initial domain.BatchStatus, idleTTL time.Duration, onExit func()) {
	defer func() {
		onExit()
		close(a.stopped)
	}()

	state := initial
	subs := make(map[chan Event]struct{})

	idle := time.NewTimer(idleTTL)
	defer idle.Stop()

	for {
		select {
		case cmd := <-a.cmds:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleTTL)

			switch cmd.kind {
			case cmdSubscribe:
				ch := cmd.subscriber
				deliver(ch, ConnectedEvent(a.batchID))
				deliver(ch, StatusEvent(&state))
				if state.Status.IsTerminal() {
					close(ch)
					if len(subs) == 0 {
						return
					}
					continue
				}
				subs[ch] = struct{}{}

			case cmdUnsubscribe:
				if _, ok := subs[cmd.subscriber]; ok {
					delete(subs, cmd.subscriber)
					close(cmd.subscriber)
				}
				if state.Status.IsTerminal() && len(subs) == 0 {
					return
				}

			case cmdNotify, cmdSeed:
				record := cmd.record
				if record == nil {
					continue
				}
				if cmd.kind == cmdSeed && record.Status == state.Status {
					state = *record
					continue
				}
				if !state.Status.CanTransitionTo(record.Status) {
					// Duplicate or out-of-order notify: at-least-once
					// delivery makes these normal, not errors.
					continue
				}
				state = *record
				event := StatusEvent(&state)
				for ch := range subs {
					if !deliver(ch, event) {
						delete(subs, ch)
						close(ch)
					}
				}
				if state.Status.IsTerminal() {
					for ch := range subs {
						close(ch)
						delete(subs, ch)
					}
					// A terminal seed keeps the actor alive: the subscribe
					// that triggered the seeding read is still in flight
					// and exits the actor through the terminal subscribe
					// path once served.
					if cmd.kind == cmdNotify {
						return
					}
				}
			}

		case <-idle.C:
			if len(subs) == 0 {
				return
			}
			idle.Reset(idleTTL)
		}
	}
}

func deliver(ch chan Event, event Event) bool {
	select {
	case ch <- event:
		return true
	default:
		return false
	}
}
