package stores

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PolicyStore is the GORM implementation of policy.Store.
//
// Inserts use ON CONFLICT DO NOTHING so the idempotent-add race (two admins
// adding the same triple concurrently) resolves without an error.
type PolicyStore struct {
	db *gorm.DB
}

// NewPolicyStore returns a policy rule store over db.
func NewPolicyStore(db *gorm.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

// HasRule reports whether the exact triple exists.
func (s *PolicyStore) HasRule(ctx context.Context, sub, obj, act string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&PolicyRuleModel{}).
		Where("subject = ? AND object = ? AND action = ?", sub, obj, act).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddRule inserts the triple, reporting created=false when already present.
func (s *PolicyStore) AddRule(ctx context.Context, sub, obj, act string) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&PolicyRuleModel{Subject: sub, Object: obj, Action: act})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RemoveRule deletes the triple, reporting found=false when absent.
func (s *PolicyStore) RemoveRule(ctx context.Context, sub, obj, act string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("subject = ? AND object = ? AND action = ?", sub, obj, act).
		Delete(&PolicyRuleModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RolesFor returns the roles sub belongs to directly.
func (s *PolicyStore) RolesFor(ctx context.Context, sub string) ([]string, error) {
	var roles []string
	err := s.db.WithContext(ctx).
		Model(&GroupingRuleModel{}).
		Where("subject = ?", sub).
		Pluck("role", &roles).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return roles, nil
}

// AddGroupingRule inserts the edge, reporting created=false when present.
func (s *PolicyStore) AddGroupingRule(ctx context.Context, sub, role string) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&GroupingRuleModel{Subject: sub, Role: role})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RemoveGroupingRule deletes the edge, reporting found=false when absent.
func (s *PolicyStore) RemoveGroupingRule(ctx context.Context, sub, role string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("subject = ? AND role = ?", sub, role).
		Delete(&GroupingRuleModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
