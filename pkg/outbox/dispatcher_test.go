package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"crowdfundin/pkg/trace"
)

type fakeStore struct {
	events []*Event
	sent   []int64
	failed []int64
}

func (f *fakeStore) ClaimPendingEvents(ctx context.Context, limit int, lease time.Duration) ([]*Event, error) {
	return f.events, nil
}

func (f *fakeStore) MarkAsSent(ctx context.Context, id int64) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeStore) MarkAsFailed(ctx context.Context, id int64, maxRetries int) error {
	f.failed = append(f.failed, id)
	return nil
}

type published struct {
	routingKey string
	messageID  string
	traceID    string
}

type fakePublisher struct {
	PublishFunc func(ctx context.Context, routingKey string) error
	calls       []published
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, routingKey, messageID string, payload any) error {
	f.calls = append(f.calls, published{routingKey, messageID, trace.FromContext(ctx)})
	if f.PublishFunc != nil {
		return f.PublishFunc(ctx, routingKey)
	}
	return nil
}

func TestDispatcherMarksSentAndFailed(t *testing.T) {
	store := &fakeStore{events: []*Event{
		{ID: 1, RoutingKey: "donation.confirmed", Payload: json.RawMessage(`{"trace_id":"t-1"}`)},
		{ID: 2, RoutingKey: "campaign.milestone", Payload: json.RawMessage(`{}`)},
		{ID: 3, RoutingKey: "donation.confirmed", Payload: json.RawMessage(`not json`)},
	}}
	pub := &fakePublisher{PublishFunc: func(ctx context.Context, rk string) error {
		if rk == "campaign.milestone" {
			return errors.New("channel closed")
		}
		return nil
	}}

	d := NewDispatcher(store, pub, zap.NewNop())
	if n := d.processPendingEvents(context.Background()); n != 1 {
		t.Fatalf("sent = %d, want 1", n)
	}

	if len(store.sent) != 1 || store.sent[0] != 1 {
		t.Errorf("sent ids = %v, want [1]", store.sent)
	}
	if len(store.failed) != 2 {
		t.Errorf("failed ids = %v, want [2 3]", store.failed)
	}
	if pub.calls[0].messageID != "outbox-1" {
		t.Errorf("message id = %q, want outbox-1", pub.calls[0].messageID)
	}
	if pub.calls[0].traceID != "t-1" {
		t.Errorf("trace id not propagated: %q", pub.calls[0].traceID)
	}
}

type fakeReplayStore struct {
	fakeStore
	byID map[int64]*Event
}

func (f *fakeReplayStore) GetEventByID(ctx context.Context, id int64) (*Event, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (f *fakeReplayStore) GetFailedEvents(ctx context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for _, e := range f.byID {
		out = append(out, e)
	}
	return out, nil
}

func TestReplayService(t *testing.T) {
	store := &fakeReplayStore{byID: map[int64]*Event{
		7: {ID: 7, RoutingKey: "campaign.completed", Payload: json.RawMessage(`{}`), Status: StatusFailed},
	}}
	pub := &fakePublisher{}
	svc := NewReplayService(store, pub, zap.NewNop())

	if err := svc.ReplayEvent(context.Background(), 99); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}

	n, err := svc.ReplayFailedEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReplayFailedEvents: %v", err)
	}
	if n != 1 || len(store.sent) != 1 || store.sent[0] != 7 {
		t.Errorf("replayed = %d, sent = %v", n, store.sent)
	}
}
