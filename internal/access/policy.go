package access

import (
	"errors"
	"log/slog"

	"marketplace/internal/credential"
	"marketplace/internal/database"
	"marketplace/internal/gateway"
	"marketplace/internal/metrics"

	"github.com/gin-gonic/gin"
)

// ErrForbidden is returned when an authenticated caller does not own the resource.
var ErrForbidden = errors.New("forbidden access")

// Authorize succeeds when owner is exactly the claim email.
func Authorize(claim credential.Claim, owner string) error {
	if claim.Email == "" || owner != claim.Email {
		return ErrForbidden
	}
	return nil
}

// Policy applies a table's ownership checks.
type Policy struct {
	table    *Table
	recorder metrics.AuthRecorder
}

// NewPolicy creates a policy over table. Denials are recorded on recorder.
func NewPolicy(table *Table, recorder metrics.AuthRecorder) *Policy {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Policy{table: table, recorder: recorder}
}

// Table returns the rules the policy enforces.
func (p *Policy) Table() *Table {
	return p.table
}

// Rule returns the rule for op.
func (p *Policy) Rule(op Operation) Rule {
	return p.table.Rule(op)
}

// RequirePathOwner answers 403 unless the email path parameter is the
// caller's. It runs after the gate and before the handler, so a mismatch
// never reaches the data layer.
func (p *Policy) RequirePathOwner(rule Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		claim, ok := gateway.ClaimFromContext(c)
		if !ok {
			gateway.AbortUnauthorized(c)
			return
		}

		if err := Authorize(claim, c.Param(EmailParam)); err != nil {
			p.deny(rule, claim)
			gateway.AbortForbidden(c)
			return
		}

		c.Next()
	}
}

// ListFilter returns the filter for an owner-scoped listing. When the rule
// checks the path email the filter uses the claim email; otherwise the path
// value is used as received.
func (p *Policy) ListFilter(rule Rule, claim credential.Claim, pathEmail string) database.Filter {
	if rule.Check == CheckPathEmail {
		return database.Filter{rule.OwnerField: claim.Email}
	}
	return database.Filter{rule.OwnerField: pathEmail}
}

// CheckBody verifies the owner field of a new document for rules that
// check the body.
func (p *Policy) CheckBody(rule Rule, claim credential.Claim, body database.Document) error {
	if rule.Check != CheckBodyOwner {
		return nil
	}

	owner, _ := database.LookupString(body, rule.OwnerField)
	if err := Authorize(claim, owner); err != nil {
		p.deny(rule, claim)
		return err
	}
	return nil
}

// CheckStored verifies a mutation for rules that check the stored owner.
// stored is the current document, nil when it does not exist yet. The
// caller must own stored, and must still own the document once set is
// applied.
func (p *Policy) CheckStored(rule Rule, claim credential.Claim, stored, set database.Document) error {
	if rule.Check != CheckStoredOwner {
		return nil
	}

	if stored != nil {
		owner, _ := database.LookupString(stored, rule.OwnerField)
		if err := Authorize(claim, owner); err != nil {
			p.deny(rule, claim)
			return err
		}
	}

	if set == nil {
		return nil
	}

	base := stored
	if base == nil {
		base = database.Document{}
	}
	next, _, err := database.ApplySet(base, set)
	if err != nil {
		return err
	}
	owner, _ := database.LookupString(next, rule.OwnerField)
	if err := Authorize(claim, owner); err != nil {
		p.deny(rule, claim)
		return err
	}
	return nil
}

// OwnerGuard returns the owner condition a checked mutation adds to its
// filter, so the write only applies while the caller still owns the
// document. It is nil for rules that do not check the stored owner.
func (p *Policy) OwnerGuard(rule Rule, claim credential.Claim) database.Filter {
	if rule.Check != CheckStoredOwner {
		return nil
	}
	return database.Filter{rule.OwnerField: claim.Email}
}

// BindBidBuyer returns bid with its buyer taken from the stored job it is
// placed on. A bid naming another buyer, or placed on the caller's own job,
// is forbidden. Rules that do not check the body return bid unchanged.
func (p *Policy) BindBidBuyer(rule Rule, claim credential.Claim, bid, job database.Document) (database.Document, error) {
	if rule.Check != CheckBodyOwner {
		return bid, nil
	}

	buyer, _ := database.LookupString(job, JobOwnerField)
	if buyer == "" || buyer == claim.Email {
		p.deny(rule, claim)
		return nil, ErrForbidden
	}
	if named, ok := database.Lookup(bid, BidRequestOwnerField); ok && named != buyer {
		p.deny(rule, claim)
		return nil, ErrForbidden
	}

	bound, _, err := database.ApplySet(bid, database.Document{BidRequestOwnerField: buyer})
	if err != nil {
		return nil, err
	}
	return bound, nil
}

func (p *Policy) deny(rule Rule, claim credential.Claim) {
	p.recorder.RecordAuthDecision(metrics.OutcomeForbidden)
	slog.Warn("Ownership check failed",
		"operation", string(rule.Operation),
		"check", rule.Check.String(),
		"email", claim.Email,
	)
}
