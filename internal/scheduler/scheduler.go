package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
	"github.com/MrDDream/ReminderVoteBot/internal/logger"
)

// DefaultSpec evaluates every subscription once a minute.
const DefaultSpec = "* * * * *"

// Store is the part of the subscription store the scheduler reads and writes.
type Store interface {
	Get(id string) (domain.Subscription, bool)
	Update(ctx context.Context, id string, fn func(*domain.Subscription)) (domain.Subscription, bool, error)
}

// Cooldowns resolves the cooldown of a vote URL entry.
type Cooldowns interface {
	CooldownFor(voteURLID string) time.Duration
}

// Sender delivers one reminder and reports whether it got through.
type Sender interface {
	SendReminder(ctx context.Context, sub domain.Subscription) bool
}

type Options struct {
	DefaultTZ string
	Spec      string
	Now       func() time.Time
}

type entry struct {
	cronID cron.EntryID
	gen    uint64
}

// Scheduler keeps one recurring evaluation per subscription.
type Scheduler struct {
	cron      *cron.Cron
	store     Store
	cooldowns Cooldowns
	sender    Sender
	log       *zap.Logger
	defaultTZ string
	spec      string
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	gen     uint64
	// locks outlive entries: a retired evaluator and its replacement share
	// the same mutex, so at most one evaluation per id runs at a time.
	locks map[string]*sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func New(st Store, cooldowns Cooldowns, sender Sender, log *zap.Logger, opts Options) (*Scheduler, error) {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(opts.Spec); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger.Cron(log)),
			cron.WithChain(cron.Recover(logger.Cron(log))),
		),
		store:     st,
		cooldowns: cooldowns,
		sender:    sender,
		log:       log,
		defaultTZ: opts.DefaultTZ,
		spec:      opts.Spec,
		now:       opts.Now,
		entries:   make(map[string]entry),
		locks:     make(map[string]*sync.Mutex),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Schedule starts evaluating sub, replacing any evaluator already registered
// for the same id.
func (s *Scheduler) Schedule(sub domain.Subscription) error {
	if sub.ID == "" {
		return errors.New("subscription without id")
	}
	id := sub.ID

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[id]; ok {
		s.cron.Remove(prev.cronID)
	}
	if s.locks[id] == nil {
		s.locks[id] = &sync.Mutex{}
	}
	s.gen++
	gen := s.gen
	cronID, err := s.cron.AddFunc(s.spec, func() { s.tick(id, gen) })
	if err != nil {
		delete(s.entries, id)
		s.pruneLockLocked(id)
		return err
	}
	s.entries[id] = entry{cronID: cronID, gen: gen}
	return nil
}

// Unschedule stops evaluating id. Unknown ids are ignored.
func (s *Scheduler) Unschedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[id]; ok {
		s.cron.Remove(prev.cronID)
		delete(s.entries, id)
	}
	s.pruneLockLocked(id)
}

// pruneLockLocked drops the mutex of an unscheduled id unless an evaluation
// still holds it.
func (s *Scheduler) pruneLockLocked(id string) {
	if _, scheduled := s.entries[id]; scheduled {
		return
	}
	if l, ok := s.locks[id]; ok && l.TryLock() {
		delete(s.locks, id)
		l.Unlock()
	}
}

// ScheduleAll retires every evaluator and schedules each subscription that
// has a user and a vote URL id. It returns how many were scheduled.
func (s *Scheduler) ScheduleAll(subs []domain.Subscription) int {
	s.mu.Lock()
	for id, e := range s.entries {
		s.cron.Remove(e.cronID)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	n := 0
	for _, sub := range subs {
		if sub.UserID == "" || sub.VoteURLID == "" {
			continue
		}
		if err := s.Schedule(sub); err != nil {
			s.log.Error("schedule failed", zap.String("subscriptionId", sub.ID), zap.Error(err))
			continue
		}
		n++
	}

	s.mu.Lock()
	for id := range s.locks {
		s.pruneLockLocked(id)
	}
	s.mu.Unlock()

	s.log.Info("subscriptions scheduled", zap.Int("count", n))
	return n
}

// Active returns the number of live evaluators.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.String("spec", s.spec))
}

// Stop halts new ticks and waits for running ones until ctx expires. Running
// evaluations keep a live context until they finish or the wait times out.
func (s *Scheduler) Stop(ctx context.Context) {
	defer s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", zap.Error(ctx.Err()))
	}
}

// tick runs one evaluation if gen is still the current generation for id and
// no earlier evaluation of id is still running.
func (s *Scheduler) tick(id string, gen uint64) {
	if !s.current(id, gen) {
		return
	}
	s.mu.Lock()
	lock := s.locks[id]
	s.mu.Unlock()
	if lock == nil {
		return
	}
	if !lock.TryLock() {
		s.log.Debug("previous evaluation still running", zap.String("subscriptionId", id))
		return
	}
	defer lock.Unlock()
	// The evaluator may have been replaced while we waited for the lock.
	if !s.current(id, gen) {
		return
	}
	s.evaluate(s.ctx, id, gen)
}

func (s *Scheduler) current(id string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return ok && e.gen == gen
}

func (s *Scheduler) evaluate(ctx context.Context, id string, gen uint64) {
	sub, ok := s.store.Get(id)
	if !ok {
		s.log.Info("subscription gone, unscheduling", zap.String("subscriptionId", id))
		s.unscheduleGen(id, gen)
		return
	}

	now := s.now()
	loc := domain.LoadLocation(sub.Timezone, s.defaultTZ)
	d := domain.Decide(sub, s.cooldowns.CooldownFor(sub.VoteURLID), now, loc)
	if !d.Fire {
		return
	}
	s.log.Debug("reminder due",
		zap.String("subscriptionId", id),
		zap.String("userId", sub.UserID),
		zap.String("reason", string(d.Reason)),
	)
	if !s.sender.SendReminder(ctx, sub) {
		return
	}
	// A delivered reminder is recorded even when shutdown has begun.
	if _, found, err := s.store.Update(context.WithoutCancel(ctx), id, func(x *domain.Subscription) {
		x.LastReminderAt = domain.TimePtr(now)
	}); err != nil {
		s.log.Error("persist reminder time", zap.String("subscriptionId", id), zap.Error(err))
	} else if !found {
		s.unscheduleGen(id, gen)
	}
}

// unscheduleGen removes id only if it still belongs to generation gen.
func (s *Scheduler) unscheduleGen(id string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok && e.gen == gen {
		s.cron.Remove(e.cronID)
		delete(s.entries, id)
	}
}
