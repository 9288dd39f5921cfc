package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/model"
)

type Type string

const (
	TypeTierChanged    Type = "tier_changed"
	TypePointsEarned   Type = "points_earned"
	TypePointsExpired  Type = "points_expired"
	TypeRewardRedeemed Type = "reward_redeemed"
	TypeTopUpCompleted Type = "topup_completed"
	TypeBonusExpired   Type = "bonus_expired"
)

type Event struct {
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
	Type       Type           `json:"type"`
	AccountID  string         `json:"account_id,omitempty"`
	WalletID   string         `json:"wallet_id,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// Pending buffers events raised inside a store unit. They are published only
// after the unit commits; a rolled back or retried unit resets the buffer.
type Pending struct {
	events []Event
}

func (p *Pending) Add(ev Event) {
	p.events = append(p.events, ev)
}

func (p *Pending) Reset() {
	p.events = p.events[:0]
}

func (p *Pending) Events() []Event {
	return p.events
}

// Flush publishes the buffered events. Delivery failures are logged and dropped.
func (p *Pending) Flush(ctx context.Context, pub Publisher, log *slog.Logger) {
	if pub == nil {
		p.Reset()
		return
	}
	for _, ev := range p.events {
		if err := pub.Publish(ctx, ev); err != nil {
			log.LogAttrs(ctx,
				slog.LevelWarn,
				"failed to publish event",
				slog.String("type", string(ev.Type)),
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}
	p.Reset()
}

type NoopPublisher struct {
	Log *slog.Logger
}

func (p *NoopPublisher) Publish(ctx context.Context, ev Event) error {
	if p.Log != nil {
		p.Log.LogAttrs(ctx,
			slog.LevelDebug,
			"publish skipped",
			slog.String("type", string(ev.Type)),
		)
	}
	return nil
}

func (p *NoopPublisher) Close() {}

// Recorder keeps published events in memory.
type Recorder struct {
	events []Event
	mu     sync.Mutex
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() {}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) OfType(t Type) []Event {
	out := make([]Event, 0)
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
