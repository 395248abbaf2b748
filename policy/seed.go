package policy

import "context"

// Seed is the declarative form of an initial policy set: a table of rules
// and grouping edges applied in one pass at startup.
type Seed struct {
	Rules     []Rule
	Groupings []GroupingRule
}

// SeedPolicies applies seed idempotently: entries that already exist are
// skipped, so re-running at every boot is safe.
func (e *Enforcer) SeedPolicies(ctx context.Context, seed Seed) error {
	for _, r := range seed.Rules {
		if _, err := e.AddRule(ctx, r.Subject, r.Object, r.Action); err != nil {
			return err
		}
	}
	for _, g := range seed.Groupings {
		if _, err := e.AddGroupingRule(ctx, g.Subject, g.Role); err != nil {
			return err
		}
	}
	return nil
}
