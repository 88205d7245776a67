package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"leaguewatch/internal/eventbus"
	"leaguewatch/internal/outbox"
	"leaguewatch/internal/transport"
	logx "leaguewatch/pkg/logx"
)

type fakeStore struct {
	mu      sync.Mutex
	pending []outbox.Message
	marked  []string
	failed  map[string]string
	markErr error
}

func (f *fakeStore) InsertMessages(_ context.Context, msgs []outbox.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, msgs...)
	return nil
}

func (f *fakeStore) PendingMessages(_ context.Context, limit int) ([]outbox.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sent := map[string]bool{}
	for _, id := range f.marked {
		sent[id] = true
	}
	var out []outbox.Message
	for _, m := range f.pending {
		if _, dead := f.failed[m.ID]; dead || sent[m.ID] {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) MarkSent(_ context.Context, ids []string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, ids...)
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, ids []string, _ time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = map[string]string{}
	}
	for _, id := range ids {
		f.failed[id] = reason
	}
	return nil
}

type fakeSender struct {
	mu    sync.Mutex
	order []string
	fail  func(m outbox.Message, attempt int) error
	tries map[string]int
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, m outbox.Message) (transport.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tries == nil {
		f.tries = map[string]int{}
	}
	f.tries[m.ID]++
	if f.fail != nil {
		if err := f.fail(m, f.tries[m.ID]); err != nil {
			return transport.Receipt{}, err
		}
	}
	f.order = append(f.order, m.ID)
	return transport.Receipt{Ref: "r-" + m.ID}, nil
}

func msg(id, guild, channel string) outbox.Message {
	return outbox.Message{ID: id, GuildID: guild, ChannelID: channel, Content: outbox.Content{Body: id}}
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		BatchSize:     50,
		Workers:       2,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
	}
}

func newService(t *testing.T, cfg Config, store outbox.Store, sender transport.Sender, bus eventbus.Bus) *Service {
	t.Helper()
	s, err := New(cfg, store, sender, logx.Nop(), bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestDrainOnceMarksSent(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pending: []outbox.Message{msg("a", "g1", "c1"), msg("b", "g2", "c1"), msg("c", "g1", "c1")}}
	sender := &fakeSender{}
	s := newService(t, testConfig(), store, sender, nil)

	res, err := s.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if res.Loaded != 3 || res.Sent != 3 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(store.marked) != 3 {
		t.Fatalf("marked = %v", store.marked)
	}

	// Nothing left on the next pass.
	res, err = s.DrainOnce(context.Background())
	if err != nil || res.Loaded != 0 {
		t.Fatalf("second pass = %+v, %v", res, err)
	}
}

func TestDrainOnceKeepsDestinationOrder(t *testing.T) {
	t.Parallel()

	var pending []outbox.Message
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		pending = append(pending, msg(id, "g", "c"))
	}
	store := &fakeStore{pending: pending}
	sender := &fakeSender{}
	s := newService(t, testConfig(), store, sender, nil)

	if _, err := s.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	want := []string{"1", "2", "3", "4", "5"}
	for i := range want {
		if sender.order[i] != want[i] {
			t.Fatalf("send order = %v, want %v", sender.order, want)
		}
	}
}

func TestFailureStopsGroupAndStaysPending(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pending: []outbox.Message{
		msg("a", "g1", "c1"),
		msg("b", "g1", "c1"),
		msg("c", "g1", "c1"),
		msg("d", "g2", "c1"),
	}}
	sender := &fakeSender{fail: func(m outbox.Message, _ int) error {
		if m.ID == "b" {
			return errors.New("boom")
		}
		return nil
	}}
	s := newService(t, testConfig(), store, sender, nil)

	res, err := s.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if res.Sent != 2 || res.Failed != 1 || res.Blocked != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := sender.tries["b"]; got != 3 {
		t.Fatalf("attempts for b = %d, want 3", got)
	}
	if _, ok := sender.tries["c"]; ok {
		t.Fatalf("c must not overtake the failed b")
	}

	left, _ := store.PendingMessages(context.Background(), 10)
	if len(left) != 2 || left[0].ID != "b" || left[1].ID != "c" {
		t.Fatalf("pending after pass = %+v", left)
	}
}

func TestRetryRecovers(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pending: []outbox.Message{msg("a", "g", "c")}}
	sender := &fakeSender{fail: func(_ outbox.Message, attempt int) error {
		if attempt < 2 {
			return errors.New("flaky")
		}
		return nil
	}}
	s := newService(t, testConfig(), store, sender, nil)

	res, err := s.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if res.Sent != 1 || sender.tries["a"] != 2 {
		t.Fatalf("result = %+v tries = %d", res, sender.tries["a"])
	}
}

func TestInvalidTargetIsNotRetried(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pending: []outbox.Message{msg("a", "g", "c")}}
	sender := &fakeSender{fail: func(outbox.Message, int) error {
		return fmt.Errorf("%w: chat not found", transport.ErrInvalidTarget)
	}}
	s := newService(t, testConfig(), store, sender, nil)

	res, err := s.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if res.Dead != 1 || res.Failed != 0 || sender.tries["a"] != 1 {
		t.Fatalf("result = %+v tries = %d", res, sender.tries["a"])
	}
	if reason := store.failed["a"]; reason == "" {
		t.Fatalf("a not set aside: %v", store.failed)
	}
}

func TestInvalidTargetsDoNotStallDelivery(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pending: []outbox.Message{
		msg("x1", "g1", "gone"),
		msg("x2", "g1", "gone"),
		msg("ok", "g2", "c1"),
	}}
	sender := &fakeSender{fail: func(m outbox.Message, _ int) error {
		if m.ChannelID == "gone" {
			return fmt.Errorf("%w: chat not found", transport.ErrInvalidTarget)
		}
		return nil
	}}
	cfg := testConfig()
	cfg.BatchSize = 2
	s := newService(t, cfg, store, sender, nil)

	res, err := s.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if res.Dead != 2 || res.Blocked != 0 {
		t.Fatalf("first pass = %+v", res)
	}

	res, err = s.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if res.Loaded != 1 || res.Sent != 1 {
		t.Fatalf("second pass = %+v", res)
	}
	if len(sender.order) != 1 || sender.order[0] != "ok" {
		t.Fatalf("delivered = %v", sender.order)
	}
	if sender.tries["x1"] != 1 || sender.tries["x2"] != 1 {
		t.Fatalf("dead messages retried: %v", sender.tries)
	}
}

func TestDrainPublishesEvents(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	store := &fakeStore{pending: []outbox.Message{msg("ok", "g1", "c"), msg("bad", "g2", "c")}}
	sender := &fakeSender{fail: func(m outbox.Message, _ int) error {
		if m.ID == "bad" {
			return transport.ErrInvalidTarget
		}
		return nil
	}}
	s := newService(t, testConfig(), store, sender, bus)
	if _, err := s.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}

	got := map[string]DeliveryEvent{}
	for len(events) > 0 {
		ev := <-events
		got[ev.Type] = ev.Data.(DeliveryEvent)
	}
	if ev, ok := got[eventbus.DeliverySent]; !ok || ev.MessageID != "ok" || ev.Ref != "r-ok" || ev.Transport != "fake" {
		t.Fatalf("sent event = %+v (%v)", ev, ok)
	}
	if ev, ok := got[eventbus.DeliveryFailed]; !ok || ev.MessageID != "bad" || ev.Error == "" {
		t.Fatalf("failed event = %+v (%v)", ev, ok)
	}
}

func TestMarkSentFailureIsReported(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pending: []outbox.Message{msg("a", "g", "c")}, markErr: errors.New("disk full")}
	s := newService(t, testConfig(), store, &fakeSender{}, nil)
	if _, err := s.DrainOnce(context.Background()); err == nil {
		t.Fatalf("expected mark error")
	}
}

func TestStartDrainsOnTicker(t *testing.T) {
	store := &fakeStore{pending: []outbox.Message{msg("a", "g", "c")}}
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	s := newService(t, cfg, store, &fakeSender{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.marked)
		store.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("message never delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()

	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		if d < 0 || d > time.Second {
			t.Fatalf("retryDelay(%d) = %v out of bounds", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("retryDelay(1) = %v, want ~100ms", d)
	}
}
