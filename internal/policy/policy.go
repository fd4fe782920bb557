package policy

import (
	"errors"
	"fmt"
)

// SecondsPerHour converts tracked activity into whole milestone hours.
const SecondsPerHour = 3600

// Tier maps an activity milestone (in whole hours) to a reward amount.
type Tier struct {
	ThresholdHours int    `json:"threshold_hours"`
	Amount         uint64 `json:"amount"`
}

// DefaultTiers is the static reward table, ordered by threshold descending.
var DefaultTiers = []Tier{
	{ThresholdHours: 100, Amount: 1500},
	{ThresholdHours: 50, Amount: 600},
	{ThresholdHours: 20, Amount: 200},
	{ThresholdHours: 10, Amount: 90},
	{ThresholdHours: 5, Amount: 50},
}

// Computation is the derived reward for a single account. It is never
// persisted; the orchestrator recomputes it from ledger state on every run.
type Computation struct {
	Hours     int    `json:"hours"`
	Milestone int    `json:"milestone"`
	Amount    uint64 `json:"amount"`
}

// Policy resolves activity time to a reward tier. It performs no I/O.
type Policy struct {
	tiers []Tier
}

var ErrNoTiers = errors.New("tier table is empty")

// NewPolicy validates the tier table and returns a policy over it. The table
// must be ordered by threshold strictly descending with positive thresholds.
func NewPolicy(tiers []Tier) (*Policy, error) {
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}
	for i, tier := range tiers {
		if tier.ThresholdHours <= 0 {
			return nil, fmt.Errorf("tier %d: threshold must be positive, got %d", i, tier.ThresholdHours)
		}
		if i > 0 && tier.ThresholdHours >= tiers[i-1].ThresholdHours {
			return nil, fmt.Errorf("tier %d: thresholds must be strictly descending", i)
		}
	}
	return &Policy{tiers: tiers}, nil
}

// Default returns a policy over DefaultTiers.
func Default() *Policy {
	p, err := NewPolicy(DefaultTiers)
	if err != nil {
		panic(err) // static table, validated by tests
	}
	return p
}

// Tiers returns the tier table.
func (p *Policy) Tiers() []Tier {
	return p.tiers
}

// MinThresholdSeconds returns the activity floor below which no tier applies.
func (p *Policy) MinThresholdSeconds() int64 {
	return int64(p.tiers[len(p.tiers)-1].ThresholdHours) * SecondsPerHour
}

// Compute maps tracked activity seconds to the highest tier whose threshold
// has been reached. Accounts below the lowest tier get the zero computation.
func (p *Policy) Compute(activitySeconds int64) Computation {
	hours := int(activitySeconds / SecondsPerHour)
	for _, tier := range p.tiers {
		if hours >= tier.ThresholdHours {
			return Computation{
				Hours:     hours,
				Milestone: tier.ThresholdHours,
				Amount:    tier.Amount,
			}
		}
	}
	return Computation{Hours: hours}
}
