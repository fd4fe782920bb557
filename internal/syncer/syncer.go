package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/rewardsync/internal/metrics"
	"github.com/wnt/rewardsync/internal/models"
	"github.com/wnt/rewardsync/internal/policy"
	"github.com/wnt/rewardsync/internal/store"
	"github.com/wnt/rewardsync/internal/submitter"
)

// Source identifies what triggered a sync run.
type Source string

const (
	SourceScheduled Source = "scheduled"
	SourceAPI       Source = "api"
	SourceStartup   Source = "startup"
	SourceHealth    Source = "health"
)

// AlreadyRunningMessage is returned to triggers rejected by the single-flight
// guard. Not an error: the active run covers the same work.
const AlreadyRunningMessage = "sync already running"

// BatchResult records the outcome of one batch within a run.
type BatchResult struct {
	Index     int    `json:"index"`
	Members   int    `json:"members"`
	Signature string `json:"signature,omitempty"`
	Confirmed bool   `json:"confirmed"`
	Updated   int    `json:"updated"`
	Error     string `json:"error,omitempty"`
}

// RunResult is the record of one orchestrated sync run.
type RunResult struct {
	StartedAt  time.Time     `json:"started_at"`
	DurationMs int64         `json:"duration_ms"`
	Source     Source        `json:"source"`
	Success    bool          `json:"success"`
	Message    string        `json:"message,omitempty"`
	Processed  int           `json:"processed"`
	Errors     int           `json:"errors"`
	Batches    []BatchResult `json:"batches,omitempty"`
}

// Health is the result of a lightweight health check. It never writes to the
// chain or the ledger.
type Health struct {
	Healthy   bool       `json:"healthy"`
	Ledger    string     `json:"ledger"`
	Chain     string     `json:"chain"`
	Running   bool       `json:"running"`
	LastRun   *RunResult `json:"last_run,omitempty"`
	CheckedAt time.Time  `json:"checked_at"`
}

// Store is the ledger surface the orchestrator needs.
type Store interface {
	FetchEligible(ctx context.Context, limit int) ([]models.Engagement, error)
	ApplyRewards(ctx context.Context, updates []store.RewardUpdate) (int, error)
	Ping(ctx context.Context) error
}

// BatchSubmitter sends one batch on-chain and reports its outcome.
type BatchSubmitter interface {
	Submit(ctx context.Context, batch submitter.Batch) submitter.TxResult
}

// Notifier pushes run results to an external sink. Implementations must treat
// delivery as best-effort.
type Notifier interface {
	Notify(ctx context.Context, payload interface{}) error
}

// Pinger reports endpoint reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Params carries the orchestrator's constructor-injected dependencies.
type Params struct {
	Store     Store
	Policy    *policy.Policy
	Submitter BatchSubmitter
	Notifier  Notifier // optional
	Chain     Pinger   // optional, nil when chain init failed
	ChainErr  error    // init error surfaced through health checks
	Logger    zerolog.Logger

	BatchSize    int
	FetchLimit   int
	BatchDelay   time.Duration
	ReferralRate uint64
	HistoryLimit int
	Now          func() time.Time // optional, defaults to time.Now().UTC
}

// Orchestrator owns the end-to-end sync run. All trigger sources funnel into
// the one instance, which is the sole writer of run state.
type Orchestrator struct {
	store     Store
	policy    *policy.Policy
	submitter BatchSubmitter
	notifier  Notifier
	chain     Pinger
	chainErr  error
	logger    zerolog.Logger

	batchSize    int
	fetchLimit   int
	batchDelay   time.Duration
	referralRate uint64
	historyLimit int
	now          func() time.Time
	startedAt    time.Time

	mu      sync.Mutex
	running bool
	history []*RunResult
}

// New creates the orchestrator.
func New(p Params) *Orchestrator {
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		store:        p.Store,
		policy:       p.Policy,
		submitter:    p.Submitter,
		notifier:     p.Notifier,
		chain:        p.Chain,
		chainErr:     p.ChainErr,
		logger:       p.Logger.With().Str("component", "syncer").Logger(),
		batchSize:    p.BatchSize,
		fetchLimit:   p.FetchLimit,
		batchDelay:   p.BatchDelay,
		referralRate: p.ReferralRate,
		historyLimit: p.HistoryLimit,
		now:          now,
		startedAt:    now(),
	}
}

// ExecuteSync performs one full run: fetch, compute, batch, submit, reconcile
// and record. At most one run executes at a time; a trigger arriving while a
// run is active gets an immediate "already running" result that is not
// recorded in history.
func (o *Orchestrator) ExecuteSync(ctx context.Context, source Source) *RunResult {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		o.logger.Info().Str("source", string(source)).Msg("Sync trigger rejected, run already active")
		return &RunResult{
			StartedAt: o.now(),
			Source:    source,
			Success:   false,
			Message:   AlreadyRunningMessage,
		}
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	log := o.logger.With().Str("source", string(source)).Logger()
	log.Info().Msg("Starting sync run")

	run := &RunResult{StartedAt: o.now(), Source: source}
	o.execute(ctx, run, log)
	o.finalize(ctx, run, log)
	return run
}

func (o *Orchestrator) execute(ctx context.Context, run *RunResult, log zerolog.Logger) {
	records, err := o.store.FetchEligible(ctx, o.fetchLimit)
	if err != nil {
		// Nothing was submitted yet; the next scheduled run retries.
		log.Error().Err(err).Msg("Eligibility fetch failed, aborting run")
		run.Message = fmt.Sprintf("eligibility fetch failed: %v", err)
		return
	}

	members := o.computeMembers(records)
	if len(members) == 0 {
		run.Success = true
		run.Message = "No pending rewards"
		log.Info().Int("fetched", len(records)).Msg("No pending rewards")
		return
	}

	log.Info().
		Int("eligible", len(records)).
		Int("rewardable", len(members)).
		Msg("Processing eligible accounts")

	for index := 0; index*o.batchSize < len(members); index++ {
		if index > 0 && o.batchDelay > 0 {
			// Fixed pause between batches to keep RPC load bounded.
			select {
			case <-ctx.Done():
				run.Message = "run cancelled"
				run.Errors += len(members) - index*o.batchSize
				return
			case <-time.After(o.batchDelay):
			}
		}

		end := (index + 1) * o.batchSize
		if end > len(members) {
			end = len(members)
		}
		group := members[index*o.batchSize : end]

		run.Batches = append(run.Batches, o.processBatch(ctx, index, group, log))
		last := &run.Batches[len(run.Batches)-1]
		if last.Confirmed && last.Error == "" {
			run.Processed += last.Members
		} else {
			run.Errors += last.Members
		}
	}

	run.Success = run.Errors == 0
	run.Message = fmt.Sprintf("processed %d accounts in %d batches", run.Processed, len(run.Batches))
}

// computeMembers resolves each fetched record to a reward and drops records
// with no new milestone (possible when the cooldown clause alone selected
// them). Dropped records count as neither processed nor errored.
func (o *Orchestrator) computeMembers(records []models.Engagement) []submitter.Member {
	members := make([]submitter.Member, 0, len(records))
	for _, record := range records {
		comp := o.policy.Compute(record.ActivitySeconds)
		if comp.Milestone == 0 || comp.Milestone <= record.LastMilestone {
			continue
		}
		members = append(members, submitter.Member{Record: record, Computation: comp})
	}
	return members
}

// processBatch submits one batch and reconciles the ledger for its members
// iff the transaction confirmed. A failure here is contained to this batch.
func (o *Orchestrator) processBatch(ctx context.Context, index int, group []submitter.Member, log zerolog.Logger) BatchResult {
	result := BatchResult{Index: index, Members: len(group)}

	batch := submitter.BuildBatch(group, o.referralRate)
	txResult := o.submitter.Submit(ctx, batch)
	result.Signature = txResult.Signature
	result.Confirmed = txResult.Confirmed

	if !txResult.Confirmed {
		if txResult.Err != nil {
			result.Error = txResult.Err.Error()
		} else {
			result.Error = "transaction not confirmed"
		}
		log.Warn().
			Int("batch", index).
			Int("members", len(group)).
			Str("error", result.Error).
			Msg("Batch failed, members stay eligible")
		return result
	}

	updates := make([]store.RewardUpdate, 0, len(group))
	for _, member := range group {
		updates = append(updates, store.RewardUpdate{
			EngagementID: member.Record.ID,
			Milestone:    member.Computation.Milestone,
			Amount:       member.Computation.Amount,
		})
	}

	updated, err := o.store.ApplyRewards(ctx, updates)
	if err != nil {
		// The transaction landed but the ledger write failed. The deterministic
		// registration codes make the inevitable resubmission detectable
		// on-chain as a duplicate.
		result.Error = fmt.Sprintf("ledger reconciliation failed: %v", err)
		log.Error().
			Int("batch", index).
			Str("signature", result.Signature).
			Err(err).
			Msg("Confirmed batch could not be reconciled")
		return result
	}

	result.Updated = updated
	log.Info().
		Int("batch", index).
		Int("members", len(group)).
		Int("updated", updated).
		Str("signature", result.Signature).
		Msg("Batch confirmed and reconciled")
	return result
}

func (o *Orchestrator) finalize(ctx context.Context, run *RunResult, log zerolog.Logger) {
	run.DurationMs = o.now().Sub(run.StartedAt).Milliseconds()

	o.mu.Lock()
	o.history = append([]*RunResult{run}, o.history...)
	if len(o.history) > o.historyLimit {
		o.history = o.history[:o.historyLimit]
	}
	o.mu.Unlock()

	status := "success"
	if !run.Success {
		status = "failed"
	}
	metrics.RecordRun(string(run.Source), status, float64(run.DurationMs)/1000)

	log.Info().
		Bool("success", run.Success).
		Int("processed", run.Processed).
		Int("errors", run.Errors).
		Int64("duration_ms", run.DurationMs).
		Msg("Sync run finished")

	if o.notifier != nil {
		if err := o.notifier.Notify(ctx, run); err != nil {
			log.Warn().Err(err).Msg("Run notification failed")
		}
	}
}

// HealthCheck pings the ledger and the chain endpoint and summarizes run
// state. It performs no writes.
func (o *Orchestrator) HealthCheck(ctx context.Context) Health {
	health := Health{
		Ledger:    "ok",
		Chain:     "ok",
		Healthy:   true,
		Running:   o.Running(),
		LastRun:   o.LastRun(),
		CheckedAt: o.now(),
	}

	if err := o.store.Ping(ctx); err != nil {
		health.Healthy = false
		health.Ledger = err.Error()
	}

	switch {
	case o.chainErr != nil:
		health.Healthy = false
		health.Chain = fmt.Sprintf("not configured: %v", o.chainErr)
		metrics.SetChainHealth(false)
	case o.chain == nil:
		health.Healthy = false
		health.Chain = "not configured"
		metrics.SetChainHealth(false)
	default:
		if err := o.chain.Ping(ctx); err != nil {
			health.Healthy = false
			health.Chain = err.Error()
			metrics.SetChainHealth(false)
		} else {
			metrics.SetChainHealth(true)
		}
	}

	return health
}

// Running reports whether a run is currently active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// LastRun returns the most recent recorded run, or nil.
func (o *Orchestrator) LastRun() *RunResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.history) == 0 {
		return nil
	}
	return o.history[0]
}

// History returns up to limit recorded runs, most recent first.
func (o *Orchestrator) History(limit int) []*RunResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if limit <= 0 || limit > len(o.history) {
		limit = len(o.history)
	}
	out := make([]*RunResult, limit)
	copy(out, o.history[:limit])
	return out
}

// Uptime reports how long the orchestrator has been alive.
func (o *Orchestrator) Uptime() time.Duration {
	return o.now().Sub(o.startedAt)
}
