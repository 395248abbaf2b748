package authcore

import (
	"context"

	"github.com/hexora/authcore/policy"
)

// IsAllowed decides whether sub may perform act on obj, consulting the
// decision cache first. Deny is the default for unknown subjects.
func (e *Engine) IsAllowed(ctx context.Context, sub, obj, act string) (bool, error) {
	if e == nil || e.enforcer == nil {
		return false, ErrEngineNotReady
	}
	return e.enforcer.IsAllowed(ctx, sub, obj, act)
}

// AddPolicyRule inserts a (subject, object, action) triple. Adding a present
// rule reports created=false without erroring.
func (e *Engine) AddPolicyRule(ctx context.Context, sub, obj, act string) (bool, error) {
	if e == nil || e.enforcer == nil {
		return false, ErrEngineNotReady
	}
	created, err := e.enforcer.AddRule(ctx, sub, obj, act)
	if err != nil {
		return created, err
	}
	if created {
		e.emitAudit(ctx, "", auditActionPolicyMutation, sub+":"+obj+":"+act, OutcomeSuccess, map[string]string{
			"op": "add_rule",
		})
	}
	return created, nil
}

// RemovePolicyRule deletes a triple, returning policy.ErrRuleNotFound when
// it was absent.
func (e *Engine) RemovePolicyRule(ctx context.Context, sub, obj, act string) error {
	if e == nil || e.enforcer == nil {
		return ErrEngineNotReady
	}
	if err := e.enforcer.RemoveRule(ctx, sub, obj, act); err != nil {
		return err
	}
	e.emitAudit(ctx, "", auditActionPolicyMutation, sub+":"+obj+":"+act, OutcomeSuccess, map[string]string{
		"op": "remove_rule",
	})
	return nil
}

// AddGroupingRule inserts a subject→role membership edge.
func (e *Engine) AddGroupingRule(ctx context.Context, sub, role string) (bool, error) {
	if e == nil || e.enforcer == nil {
		return false, ErrEngineNotReady
	}
	created, err := e.enforcer.AddGroupingRule(ctx, sub, role)
	if err != nil {
		return created, err
	}
	if created {
		e.emitAudit(ctx, "", auditActionPolicyMutation, sub+"->"+role, OutcomeSuccess, map[string]string{
			"op": "add_grouping",
		})
	}
	return created, nil
}

// RemoveGroupingRule deletes a subject→role edge.
func (e *Engine) RemoveGroupingRule(ctx context.Context, sub, role string) error {
	if e == nil || e.enforcer == nil {
		return ErrEngineNotReady
	}
	if err := e.enforcer.RemoveGroupingRule(ctx, sub, role); err != nil {
		return err
	}
	e.emitAudit(ctx, "", auditActionPolicyMutation, sub+"->"+role, OutcomeSuccess, map[string]string{
		"op": "remove_grouping",
	})
	return nil
}

// SeedPolicies applies a declarative rule set once at startup. Present
// entries are left alone, so seeding is safe to repeat on every boot.
func (e *Engine) SeedPolicies(ctx context.Context, seed policy.Seed) error {
	if e == nil || e.enforcer == nil {
		return ErrEngineNotReady
	}
	return e.enforcer.SeedPolicies(ctx, seed)
}
