package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const subscriberBuffer = 256

// Publisher keeps an append-only, strictly ordered event log per session and
// fans events out to live subscribers. A subscriber that falls behind is
// dropped; it can reconnect with the last sequence it saw and replay the gap.
type Publisher struct {
	mu   sync.RWMutex
	logs map[string]*sessionLog

	// Optional bridge: every published event is mirrored to a watermill
	// topic for delivery-side consumers (websocket relay, NATS mirror).
	bus      message.Publisher
	busTopic string

	now func() time.Time
}

type sessionLog struct {
	mu      sync.Mutex
	events  []Event
	subs    map[int]chan Event
	nextSub int
}

func NewPublisher() *Publisher {
	return &Publisher{
		logs: make(map[string]*sessionLog),
		now:  time.Now,
	}
}

// AttachBus mirrors every published event onto a watermill topic.
func (p *Publisher) AttachBus(bus message.Publisher, topic string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = bus
	p.busTopic = topic
}

func (p *Publisher) log(sessionID string) *sessionLog {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.logs[sessionID]
	if !ok {
		l = &sessionLog{subs: make(map[int]chan Event)}
		p.logs[sessionID] = l
	}
	return l
}

// Publish appends one event to the session log and fans it out.
// It returns the stored event with its assigned sequence number.
func (p *Publisher) Publish(sessionID string, typ Type, stage string, data map[string]interface{}) Event {
	l := p.log(sessionID)

	l.mu.Lock()
	ev := Event{
		Type:      typ,
		SessionID: sessionID,
		Stage:     stage,
		Sequence:  uint64(len(l.events) + 1),
		Timestamp: p.now(),
		Data:      data,
	}
	l.events = append(l.events, ev)
	for id, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			// Slow consumer: drop it. The resume contract lets it
			// re-subscribe from its last sequence.
			close(ch)
			delete(l.subs, id)
		}
	}
	l.mu.Unlock()

	p.mirror(ev)
	return ev
}

func (p *Publisher) mirror(ev Event) {
	p.mu.RLock()
	bus, topic := p.bus, p.busTopic
	p.mu.RUnlock()
	if bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("session_id", ev.SessionID)
	_ = bus.Publish(topic, msg)
}

// Subscribe returns a channel that first replays every event with a sequence
// greater than fromSeq, then continues with live events, with no gap and no
// duplicates. Pass fromSeq=0 for the full log, or the last sequence observed
// to resume after a dropped connection. The returned cancel func releases the
// subscription; the channel is closed when the subscriber is cancelled,
// dropped, or ctx is done.
func (p *Publisher) Subscribe(ctx context.Context, sessionID string, fromSeq uint64) (<-chan Event, func()) {
	l := p.log(sessionID)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++

	var backlog []Event
	if fromSeq < uint64(len(l.events)) {
		backlog = append(backlog, l.events[fromSeq:]...)
	}
	live := make(chan Event, subscriberBuffer)
	l.subs[id] = live
	l.mu.Unlock()

	out := make(chan Event, subscriberBuffer)
	cancel := func() {
		l.mu.Lock()
		if ch, ok := l.subs[id]; ok {
			close(ch)
			delete(l.subs, id)
		}
		l.mu.Unlock()
	}

	go func() {
		defer close(out)
		for _, ev := range backlog {
			select {
			case out <- ev:
			case <-ctx.Done():
				cancel()
				return
			}
		}
		for {
			select {
			case ev, ok := <-live:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					cancel()
					return
				}
			case <-ctx.Done():
				cancel()
				return
			}
		}
	}()

	return out, cancel
}

// SubscribeNow delivers only events published after the call.
func (p *Publisher) SubscribeNow(ctx context.Context, sessionID string) (<-chan Event, func()) {
	l := p.log(sessionID)
	l.mu.Lock()
	head := uint64(len(l.events))
	l.mu.Unlock()
	return p.Subscribe(ctx, sessionID, head)
}

// History returns a copy of the log entries with sequence > fromSeq.
func (p *Publisher) History(sessionID string, fromSeq uint64) []Event {
	l := p.log(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if fromSeq >= uint64(len(l.events)) {
		return nil
	}
	out := make([]Event, len(l.events)-int(fromSeq))
	copy(out, l.events[fromSeq:])
	return out
}

// Discard drops a session's log and closes its subscribers. Called after the
// post-terminal grace period.
func (p *Publisher) Discard(sessionID string) {
	p.mu.Lock()
	l, ok := p.logs[sessionID]
	delete(p.logs, sessionID)
	p.mu.Unlock()
	if !ok {
		return
	}
	l.mu.Lock()
	for id, ch := range l.subs {
		close(ch)
		delete(l.subs, id)
	}
	l.mu.Unlock()
}

// DiscardAfter schedules Discard once the grace period elapses.
func (p *Publisher) DiscardAfter(sessionID string, grace time.Duration) {
	time.AfterFunc(grace, func() { p.Discard(sessionID) })
}
