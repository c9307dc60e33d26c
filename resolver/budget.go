package resolver

import "github.com/copse-social/copse/models"

// Budget bounds how many remote fetches one inbound activity may trigger.
// It is shared across the whole resolution chain started by that activity
// and never across unrelated activities, so a malicious or cyclic object
// graph can only cost a fixed number of hops.
type Budget struct {
	remaining int
}

// NewBudget allows n fetch hops.
func NewBudget(n int) *Budget {
	return &Budget{remaining: n}
}

// Spend consumes one hop. Once the budget is exhausted every further hop
// fails with RecursionExceeded; the counter never goes negative.
func (b *Budget) Spend() error {
	if b.remaining <= 0 {
		return models.Errorf(models.KindRecursionExceeded, "resolution chain exceeded its fetch budget")
	}
	b.remaining--
	return nil
}

// Remaining reports the hops left.
func (b *Budget) Remaining() int {
	return b.remaining
}
