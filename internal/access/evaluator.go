package access

import (
	"context"
	"strings"
	"time"

	"docvault/internal/model"
)

// ApprovalChecker answers whether a principal holds an approved access
// request for an item. Backed by the access request repository.
type ApprovalChecker interface {
	HasApproved(ctx context.Context, userID, itemID string) (bool, error)
}

// Evaluator decides item visibility for a principal.
type Evaluator struct {
	approvals ApprovalChecker
	now       func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given approval lookup.
func NewEvaluator(approvals ApprovalChecker) *Evaluator {
	return &Evaluator{approvals: approvals, now: time.Now}
}

// Decide is the pure visibility decision. Rules are evaluated in a fixed
// order and the first match wins:
//
//  1. administrator            -> allow
//  2. expired                  -> deny
//  3. restricted with grant    -> allow
//  4. department "all"         -> allow
//  5. department match, or shared-department match (case-insensitive) -> allow
//  6. approved access request  -> allow
//  7. otherwise                -> deny
//
// A nil item always denies. When isRestricted is false the allowedUsers set
// is inert: it neither grants nor blocks.
func Decide(p model.Principal, item *model.Item, approved bool, now time.Time) bool {
	if item == nil {
		return false
	}

	if p.IsAdmin() {
		return true
	}

	if item.Expired(now) {
		return false
	}

	if item.IsRestricted && item.HasAllowedUser(p.ID) {
		return true
	}

	if item.Department == model.DeptAll {
		return true
	}
	if item.Department != "" && item.Department != model.DeptNone {
		if strings.EqualFold(string(item.Department), p.Department) {
			return true
		}
	}
	if p.Department != "" && item.SharedWith(p.Department) {
		return true
	}

	return approved
}

// CanView resolves the approved-request rule against the store and applies
// Decide. The lookup is skipped when an earlier rule already settles the
// decision.
func (e *Evaluator) CanView(ctx context.Context, p model.Principal, item *model.Item) (bool, error) {
	if item == nil {
		return false, nil
	}
	now := e.now()
	if Decide(p, item, false, now) {
		return true, nil
	}
	// Only the approved-request rule is left to check; an expired item denies
	// regardless of approval, so skip the lookup.
	if item.Expired(now) {
		return false, nil
	}
	approved, err := e.approvals.HasApproved(ctx, p.ID, item.ID)
	if err != nil {
		return false, err
	}
	return Decide(p, item, approved, now), nil
}
