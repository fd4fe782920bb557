package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/wnt/rewardsync/internal/metrics"
	"github.com/wnt/rewardsync/internal/models"
	"github.com/wnt/rewardsync/internal/policy"
)

// Member pairs a ledger row with the reward computed for it this run.
type Member struct {
	Record      models.Engagement
	Computation policy.Computation
}

// Batch is one bounded group of rewards submitted as a single transaction.
// The three arrays stay aligned index-for-index with Members because they are
// only ever produced together by BuildBatch.
type Batch struct {
	Codes   []string
	Rates   []uint64
	Amounts []uint64
	Members []Member
}

// TxResult reports the on-chain outcome for one batch.
type TxResult struct {
	Signature string
	Confirmed bool
	Err       error
}

// ChainClient is the chain surface the submitter needs. Satisfied by
// chain.Client and by fakes in tests.
type ChainClient interface {
	SubmitRewardBatch(ctx context.Context, codes []string, rates []uint64, amounts []uint64) (solana.Signature, error)
	WaitForConfirmation(ctx context.Context, sig solana.Signature) error
}

// RegistrationCode derives the on-chain code for one reward. The code is a
// pure function of account and milestone, so resubmitting a batch whose
// transaction already landed produces the same codes and the program can
// reject them as duplicates instead of minting a second reward.
func RegistrationCode(externalID string, milestone int) string {
	return fmt.Sprintf("%s_%d", externalID, milestone)
}

// BuildBatch constructs the aligned arrays for one batch. Pure.
func BuildBatch(members []Member, referralRate uint64) Batch {
	batch := Batch{
		Codes:   make([]string, 0, len(members)),
		Rates:   make([]uint64, 0, len(members)),
		Amounts: make([]uint64, 0, len(members)),
		Members: members,
	}
	for _, m := range members {
		batch.Codes = append(batch.Codes, RegistrationCode(m.Record.ExternalID, m.Computation.Milestone))
		batch.Rates = append(batch.Rates, referralRate)
		batch.Amounts = append(batch.Amounts, m.Computation.Amount)
	}
	return batch
}

// TotalAmount sums the rewards carried by the batch.
func (b Batch) TotalAmount() uint64 {
	var total uint64
	for _, amount := range b.Amounts {
		total += amount
	}
	return total
}

// Submitter sends reward batches on-chain and waits for confirmation.
type Submitter struct {
	chain     ChainClient
	txTimeout time.Duration
	logger    zerolog.Logger
}

// New creates a submitter. txTimeout bounds how long one batch may wait for
// confirmation before being marked failed.
func New(chainClient ChainClient, txTimeout time.Duration, logger zerolog.Logger) *Submitter {
	return &Submitter{
		chain:     chainClient,
		txTimeout: txTimeout,
		logger:    logger.With().Str("component", "submitter").Logger(),
	}
}

// Submit sends one batch as a single transaction and waits for it to confirm.
// A failed or timed-out batch is not retried here; its members remain
// eligible and are re-selected on the next run.
func (s *Submitter) Submit(ctx context.Context, batch Batch) TxResult {
	if s.chain == nil {
		err := fmt.Errorf("chain client is not configured")
		metrics.RecordBatch("failed")
		return TxResult{Err: err}
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	sig, err := s.chain.SubmitRewardBatch(txCtx, batch.Codes, batch.Rates, batch.Amounts)
	if err != nil {
		metrics.RecordBatch("failed")
		return TxResult{Err: fmt.Errorf("batch submission failed: %w", err)}
	}

	s.logger.Debug().
		Str("signature", sig.String()).
		Int("members", len(batch.Members)).
		Msg("Batch submitted, awaiting confirmation")

	if err := s.chain.WaitForConfirmation(txCtx, sig); err != nil {
		metrics.RecordBatch("failed")
		return TxResult{Signature: sig.String(), Err: fmt.Errorf("batch confirmation failed: %w", err)}
	}

	metrics.RecordBatch("confirmed")
	metrics.RecordRewards(batch.TotalAmount())
	return TxResult{Signature: sig.String(), Confirmed: true}
}
