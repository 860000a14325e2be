package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Trigger identifies what woke the orchestrator up.
type Trigger string

// Trigger sources. Each is debounced independently before a cycle starts.
const (
	TriggerConnectivity Trigger = "connectivity"
	TriggerForeground   Trigger = "foreground"
	TriggerFocus        Trigger = "focus"
	TriggerPeriodic     Trigger = "periodic"
)

// SessionProvider supplies the authenticated identity. Absence of a session
// is a precondition failure, not an error.
type SessionProvider interface {
	IsAuthenticated() bool
	UserID() string
}

// Connectivity reports whether the device currently has network access.
type Connectivity interface {
	IsOnline() bool
}

// Deliverer posts one queue entry to the reconciliation endpoint. Errors
// should be wrapped in RetryableError to distinguish transient failures
// from permanent rejections.
type Deliverer interface {
	Deliver(ctx context.Context, entry Entry) error
}

// Notifier receives user-visible sync events. The sync core renders nothing
// itself; a toast layer consumes these.
type Notifier interface {
	SyncSummary(synced, failed int)
	EntryFailed(entry Entry, reason string)
}

// OrchestratorConfig contains orchestrator configuration.
type OrchestratorConfig struct {
	ConnectivityDebounce time.Duration
	ForegroundDebounce   time.Duration
	FocusDebounce        time.Duration
	PeriodicInterval     time.Duration
	DeliveryTimeout      time.Duration
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	// PacingInterval spaces successive deliveries within a cycle so a long
	// queue does not burst against the endpoint.
	PacingInterval time.Duration
}

// DefaultOrchestratorConfig returns default orchestrator configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ConnectivityDebounce: 2 * time.Second,
		ForegroundDebounce:   1 * time.Second,
		FocusDebounce:        500 * time.Millisecond,
		PeriodicInterval:     5 * time.Minute,
		DeliveryTimeout:      15 * time.Second,
		InitialBackoff:       1 * time.Second,
		MaxBackoff:           30 * time.Second,
		PacingInterval:       200 * time.Millisecond,
	}
}

// Orchestrator observes trigger events, debounces them, and drives the queue
// through single-flight sync cycles with per-entry exponential backoff.
//
// The original event-loop model relied on being single-threaded; here the
// single-flight guarantee is an explicit mutex, and triggers that fire while
// a cycle runs are dropped rather than queued.
type Orchestrator struct {
	config       OrchestratorConfig
	queue        *Queue
	session      SessionProvider
	connectivity Connectivity
	deliverer    Deliverer
	notifier     Notifier
	limiter      *rate.Limiter

	cycleMu sync.Mutex // single-flight lock, held for the whole cycle

	triggerCh chan Trigger
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	timersMu    sync.Mutex
	retryTimers map[string]*time.Timer
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(config OrchestratorConfig, queue *Queue, session SessionProvider, connectivity Connectivity, deliverer Deliverer, notifier Notifier) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if config.ConnectivityDebounce <= 0 {
		config.ConnectivityDebounce = def.ConnectivityDebounce
	}
	if config.ForegroundDebounce <= 0 {
		config.ForegroundDebounce = def.ForegroundDebounce
	}
	if config.FocusDebounce <= 0 {
		config.FocusDebounce = def.FocusDebounce
	}
	if config.PeriodicInterval <= 0 {
		config.PeriodicInterval = def.PeriodicInterval
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = def.DeliveryTimeout
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = def.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.PacingInterval <= 0 {
		config.PacingInterval = def.PacingInterval
	}

	return &Orchestrator{
		config:       config,
		queue:        queue,
		session:      session,
		connectivity: connectivity,
		deliverer:    deliverer,
		notifier:     notifier,
		limiter:      rate.NewLimiter(rate.Every(config.PacingInterval), 1),
		triggerCh:    make(chan Trigger, 16),
		stopCh:       make(chan struct{}),
		retryTimers:  make(map[string]*time.Timer),
	}
}

// Start launches the trigger loop.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(1)
	go o.run(ctx)

	slog.Info("sync orchestrator started",
		"periodic_interval", o.config.PeriodicInterval,
		"delivery_timeout", o.config.DeliveryTimeout,
	)
}

// Stop cancels pending retry timers and stops the trigger loop.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })

	o.timersMu.Lock()
	for id, t := range o.retryTimers {
		t.Stop()
		delete(o.retryTimers, id)
	}
	o.timersMu.Unlock()

	o.wg.Wait()
	slog.Info("sync orchestrator stopped")
}

// Notify reports a trigger event. Never blocks: if the trigger buffer is
// full the event is dropped, which is safe because triggers are only hints.
func (o *Orchestrator) Notify(trigger Trigger) {
	select {
	case o.triggerCh <- trigger:
	default:
	}
}

// run is the trigger loop. Each debounced trigger gets its own timer; a
// burst of identical triggers keeps resetting the timer and results in one
// cycle once the burst settles.
func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()

	newStoppedTimer := func() *time.Timer {
		t := time.NewTimer(time.Hour)
		if !t.Stop() {
			<-t.C
		}
		return t
	}

	connTimer := newStoppedTimer()
	foregroundTimer := newStoppedTimer()
	focusTimer := newStoppedTimer()
	defer connTimer.Stop()
	defer foregroundTimer.Stop()
	defer focusTimer.Stop()

	ticker := time.NewTicker(o.config.PeriodicInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case trigger := <-o.triggerCh:
			switch trigger {
			case TriggerConnectivity:
				connTimer.Reset(o.config.ConnectivityDebounce)
			case TriggerForeground:
				foregroundTimer.Reset(o.config.ForegroundDebounce)
			case TriggerFocus:
				focusTimer.Reset(o.config.FocusDebounce)
			case TriggerPeriodic:
				o.RunCycle(ctx, TriggerPeriodic)
			}
		case <-connTimer.C:
			o.RunCycle(ctx, TriggerConnectivity)
		case <-foregroundTimer.C:
			o.RunCycle(ctx, TriggerForeground)
		case <-focusTimer.C:
			o.RunCycle(ctx, TriggerFocus)
		case <-ticker.C:
			o.RunCycle(ctx, TriggerPeriodic)
		}
	}
}

// RunCycle runs one sync cycle. Only one cycle may run at a time; if another
// is in progress the call returns immediately and the trigger is dropped.
func (o *Orchestrator) RunCycle(ctx context.Context, trigger Trigger) {
	if !o.cycleMu.TryLock() {
		slog.Debug("sync cycle already in progress, dropping trigger", "trigger", trigger)
		recordCycle("dropped")
		return
	}
	defer o.cycleMu.Unlock()

	if !o.preconditionsMet() {
		recordCycle("skipped")
		return
	}

	pending := o.queue.ListPending()
	if len(pending) == 0 {
		recordCycle("empty")
		return
	}

	slog.Info("sync cycle started", "trigger", trigger, "pending", len(pending))

	synced, failed := 0, 0
	for _, entry := range pending {
		// Pacing between deliveries; sequential on purpose so updates to
		// the same logical object keep their enqueue order.
		if err := o.limiter.Wait(ctx); err != nil {
			break
		}

		switch o.deliverEntry(ctx, entry) {
		case deliverySynced:
			synced++
		case deliveryFailed:
			failed++
		}
	}

	slog.Info("sync cycle finished",
		"trigger", trigger,
		"synced", synced,
		"failed", failed,
	)
	recordCycle("completed")

	if o.notifier != nil && (synced > 0 || failed > 0) {
		o.notifier.SyncSummary(synced, failed)
	}
}

type deliveryOutcome int

const (
	deliverySynced deliveryOutcome = iota
	deliveryRetrying
	deliveryFailed
)

// deliverEntry attempts one delivery and applies the per-entry state
// machine: success marks synced; a retryable failure increments the retry
// count and schedules a private retry; a permanent failure or an exhausted
// retry budget marks the entry failed.
func (o *Orchestrator) deliverEntry(ctx context.Context, entry Entry) deliveryOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, o.config.DeliveryTimeout)
	defer cancel()

	start := time.Now()
	err := o.deliverer.Deliver(attemptCtx, entry)
	duration := time.Since(start)

	if err == nil {
		if markErr := o.queue.MarkSynced(ctx, entry.ID); markErr != nil {
			slog.Error("failed to mark entry synced", "entry_id", entry.ID, "error", markErr)
		}
		recordDelivery(entry.EntityType, "synced", duration)
		return deliverySynced
	}

	slog.Warn("delivery failed",
		"entry_id", entry.ID,
		"entity_type", entry.EntityType,
		"retry_count", entry.RetryCount,
		"error", err,
	)

	if !isRetryable(err) {
		if markErr := o.queue.MarkFailed(ctx, entry.ID, err); markErr != nil {
			slog.Error("failed to mark entry failed", "entry_id", entry.ID, "error", markErr)
		}
		recordDelivery(entry.EntityType, "rejected", duration)
		if o.notifier != nil {
			o.notifier.EntryFailed(entry, err.Error())
		}
		return deliveryFailed
	}

	stillPending, incErr := o.queue.IncrementRetry(ctx, entry.ID, err)
	if incErr != nil {
		slog.Error("failed to increment retry count", "entry_id", entry.ID, "error", incErr)
		return deliveryFailed
	}

	if !stillPending {
		recordDelivery(entry.EntityType, "exhausted", duration)
		if o.notifier != nil {
			o.notifier.EntryFailed(entry, err.Error())
		}
		return deliveryFailed
	}

	delay := o.backoffDelay(entry.RetryCount)
	o.scheduleRetry(ctx, entry.ID, delay)
	recordDelivery(entry.EntityType, "retry", duration)

	slog.Info("entry scheduled for retry",
		"entry_id", entry.ID,
		"delay", delay,
	)
	return deliveryRetrying
}

// backoffDelay computes min(InitialBackoff * 2^retryCount, MaxBackoff).
func (o *Orchestrator) backoffDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 30 {
		return o.config.MaxBackoff
	}
	delay := o.config.InitialBackoff << uint(retryCount)
	if delay > o.config.MaxBackoff || delay <= 0 {
		delay = o.config.MaxBackoff
	}
	return delay
}

// scheduleRetry arms a private retry timer for one entry, independent of the
// next trigger-driven cycle. Preconditions are rechecked when the timer
// fires, not just here: the app state may have changed in the meantime.
func (o *Orchestrator) scheduleRetry(ctx context.Context, entryID string, delay time.Duration) {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()

	if existing, ok := o.retryTimers[entryID]; ok {
		existing.Stop()
	}

	o.retryTimers[entryID] = time.AfterFunc(delay, func() {
		o.timersMu.Lock()
		delete(o.retryTimers, entryID)
		o.timersMu.Unlock()

		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if !o.preconditionsMet() {
			return
		}

		entry, ok := o.queue.Get(entryID)
		if !ok || entry.Status != StatusPending {
			return
		}

		o.deliverEntry(ctx, entry)
	})
}

func (o *Orchestrator) preconditionsMet() bool {
	if o.session == nil || !o.session.IsAuthenticated() {
		slog.Debug("skipping sync, no authenticated session")
		return false
	}
	if o.connectivity == nil || !o.connectivity.IsOnline() {
		slog.Debug("skipping sync, device offline")
		return false
	}
	return true
}
