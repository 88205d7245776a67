package notifier

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"leaguewatch/internal/eventbus"
	"leaguewatch/internal/outbox"
	rtsup "leaguewatch/internal/runtime/supervisor"
	"leaguewatch/internal/transport"
	logx "leaguewatch/pkg/logx"
)

var ErrDisabled = errors.New("delivery disabled")

// Service is the delivery drainer. It is safe for concurrent use; drain
// passes never overlap.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender transport.Sender
	store  outbox.Store
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter
	pool    *ants.Pool

	drainMu sync.Mutex
	sup     *rtsup.Supervisor
	now     func() time.Time
}

func New(cfg Config, store outbox.Store, sender transport.Sender, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	cfg = withDefaults(cfg)
	pool, err := ants.NewPool(cfg.Workers, ants.WithPanicHandler(func(p any) {
		log.Error("delivery worker panicked", logx.Any("panic", p))
	}))
	if err != nil {
		return nil, errors.Wrap(err, "create delivery pool")
	}
	return &Service{
		log:     log.With(logx.String("comp", "delivery")),
		sender:  sender,
		store:   store,
		bus:     bus,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		pool:    pool,
		now:     time.Now,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return cfg
}

// Apply swaps rate and retry settings. Pool size and interval apply on the
// next Start.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start launches the ticker loop. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.sup != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// delivery failures should not take down the whole app.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	interval := s.cfg.Interval
	s.mu.Unlock()

	sup.GoRestart("delivery.loop", func(c context.Context) error {
		s.loop(c, interval)
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New("delivery loop exited unexpectedly")
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))
}

// Stop cancels the loop, waits for the in-flight pass and releases the pool.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	var err error
	if sup != nil {
		err = sup.Stop(ctx)
	}
	s.pool.Release()
	return err
}

func (s *Service) loop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := s.DrainOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("delivery pass failed", logx.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// DrainOnce delivers one batch of pending messages.
func (s *Service) DrainOnce(ctx context.Context) (Result, error) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	start := time.Now()
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()
	if s.sender == nil {
		return Result{}, ErrDisabled
	}

	msgs, err := s.store.PendingMessages(ctx, cfg.BatchSize)
	if err != nil {
		return Result{}, errors.Wrap(err, "load pending messages")
	}
	res := Result{Loaded: len(msgs)}
	if len(msgs) == 0 {
		return res, nil
	}

	groups := groupByDestination(msgs)
	dead := map[string][]string{} // reason -> ids
	var (
		wg    sync.WaitGroup
		rmu   sync.Mutex
		sent  []string
		ndead int
		fails int
		block int
	)
	for _, g := range groups {
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			gr := s.deliverGroup(ctx, cfg, lim, g)
			rmu.Lock()
			sent = append(sent, gr.sent...)
			for _, d := range gr.dead {
				dead[d.reason] = append(dead[d.reason], d.id)
			}
			ndead += len(gr.dead)
			if gr.failed {
				fails++
				block += len(g) - len(gr.sent) - len(gr.dead) - 1
			}
			rmu.Unlock()
		}); err != nil {
			wg.Done()
			s.log.Warn("delivery submit failed", logx.Err(err))
			rmu.Lock()
			block += len(g)
			rmu.Unlock()
		}
	}
	wg.Wait()

	res.Sent, res.Failed, res.Blocked, res.Dead = len(sent), fails, block, ndead
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if len(sent) > 0 {
		if err := s.store.MarkSent(mctx, sent, s.now().UTC()); err != nil {
			return res, errors.Wrap(err, "mark sent")
		}
	}
	for reason, ids := range dead {
		if err := s.store.MarkFailed(mctx, ids, s.now().UTC(), reason); err != nil {
			return res, errors.Wrap(err, "mark failed")
		}
	}
	res.Took = time.Since(start)
	s.log.Debug("delivery pass",
		logx.Int("loaded", res.Loaded),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Int("blocked", res.Blocked),
		logx.Int("dead", res.Dead),
		logx.Duration("took", res.Took),
	)
	return res, nil
}

// groupByDestination keeps the store's order within and across groups.
func groupByDestination(msgs []outbox.Message) [][]outbox.Message {
	idx := map[string]int{}
	var out [][]outbox.Message
	for _, m := range msgs {
		k := m.GuildID + "/" + m.ChannelID
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], m)
	}
	return out
}

type deadMessage struct {
	id     string
	reason string
}

type groupResult struct {
	sent   []string
	dead   []deadMessage
	failed bool
}

// deliverGroup sends msgs in order and stops at the first retryable
// failure. A message the transport rejects for good is set aside and the
// group moves on.
func (s *Service) deliverGroup(ctx context.Context, cfg Config, lim *rate.Limiter, msgs []outbox.Message) groupResult {
	var gr groupResult
	for _, m := range msgs {
		if ctx.Err() != nil {
			return gr
		}
		err := s.sendWithRetry(ctx, cfg, lim, m)
		switch {
		case err == nil:
			gr.sent = append(gr.sent, m.ID)
		case errors.Is(err, transport.ErrInvalidTarget):
			gr.dead = append(gr.dead, deadMessage{id: m.ID, reason: err.Error()})
		default:
			gr.failed = ctx.Err() == nil
			return gr
		}
	}
	return gr
}

func (s *Service) sendWithRetry(ctx context.Context, cfg Config, lim *rate.Limiter, m outbox.Message) error {
	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		rec, err := s.sender.Send(callCtx, m)
		cancel()
		if err == nil {
			s.publish(eventbus.DeliverySent, m, rec.Ref, attempt, nil)
			return nil
		}
		lastErr = err
		s.log.Debug("delivery send failed",
			logx.String("id", m.ID),
			logx.Err(err),
			logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts),
		)
		if errors.Is(err, transport.ErrInvalidTarget) || attempt >= maxAttempts {
			break
		}
		delay := retryDelay(cfg, attempt)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	s.log.Warn("delivery failed",
		logx.String("id", m.ID),
		logx.String("guild", m.GuildID),
		logx.String("channel", m.ChannelID),
		logx.Err(lastErr),
	)
	s.publish(eventbus.DeliveryFailed, m, "", maxAttempts, lastErr)
	return lastErr
}

func (s *Service) publish(typ string, m outbox.Message, ref string, attempts int, err error) {
	ev := DeliveryEvent{
		MessageID: m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Transport: s.sender.Name(),
		Ref:       ref,
		Attempts:  attempts,
		At:        s.now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
