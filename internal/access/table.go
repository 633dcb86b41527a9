// Package access holds the ownership policy: the per-route table saying
// which operations need a credential and which compare the caller's email
// against a resource owner.
//
// Two tables exist. The compat table reproduces the enforcement the
// marketplace has always shipped with, gaps included: creating a job,
// updating, deleting and patching bids are not owner checked, and the bid
// listings only require a credential. The hardened table applies the
// ownership check to every owner-scoped operation.
package access

import (
	"fmt"
	"net/http"
	"strings"
)

// Mode selects a policy table.
type Mode string

const (
	ModeCompat   Mode = "compat"
	ModeHardened Mode = "hardened"
)

// ParseMode converts compat or hardened into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCompat:
		return ModeCompat, nil
	case ModeHardened:
		return ModeHardened, nil
	default:
		return "", fmt.Errorf("invalid access policy %q (valid options: compat, hardened)", s)
	}
}

// Operation names one route of the API.
type Operation string

const (
	OpLogin           Operation = "login"
	OpLogout          Operation = "logout"
	OpListJobs        Operation = "list_jobs"
	OpFetchJob        Operation = "fetch_job"
	OpCreateJob       Operation = "create_job"
	OpCreateBid       Operation = "create_bid"
	OpListJobsByOwner Operation = "list_jobs_by_owner"
	OpUpdateJob       Operation = "update_job"
	OpDeleteJob       Operation = "delete_job"
	OpListMyBids      Operation = "list_my_bids"
	OpListBidRequests Operation = "list_bid_requests"
	OpPatchBidStatus  Operation = "patch_bid_status"
)

// Check is the ownership comparison a route performs.
type Check int

const (
	// CheckNone performs no ownership comparison.
	CheckNone Check = iota
	// CheckPathEmail compares the email path parameter with the claim
	// before any data access.
	CheckPathEmail
	// CheckBodyOwner compares the owner field of the request body with the claim.
	CheckBodyOwner
	// CheckStoredOwner compares the owner field of the stored document
	// with the claim before it is mutated.
	CheckStoredOwner
)

func (c Check) String() string {
	switch c {
	case CheckNone:
		return "none"
	case CheckPathEmail:
		return "path_email"
	case CheckBodyOwner:
		return "body_owner"
	case CheckStoredOwner:
		return "stored_owner"
	default:
		return fmt.Sprintf("check(%d)", int(c))
	}
}

// EmailParam is the path parameter carrying an owner email.
const EmailParam = "email"

// Rule is one row of a policy table.
type Rule struct {
	Operation Operation
	Method    string
	Path      string
	// Auth requires a verified credential.
	Auth  bool
	Check Check
	// OwnerField is the dotted path of the owner reference on the resource
	// the operation reads or writes. Empty for routes without a resource owner.
	OwnerField string
}

// Table is an ordered set of rules, one per operation.
type Table struct {
	mode  Mode
	rules []Rule
	index map[Operation]int
}

func newTable(mode Mode, rules []Rule) *Table {
	t := &Table{mode: mode, rules: rules, index: make(map[Operation]int, len(rules))}
	for i, r := range rules {
		t.index[r.Operation] = i
	}
	return t
}

// Mode returns the mode the table was built for.
func (t *Table) Mode() Mode {
	return t.mode
}

// Rules returns the rules in registration order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Rule returns the rule for op. It panics on an unknown operation, which
// is a programming error.
func (t *Table) Rule(op Operation) Rule {
	i, ok := t.index[op]
	if !ok {
		panic(fmt.Sprintf("access: no rule for operation %q", op))
	}
	return t.rules[i]
}

// Validate reports rules that compare ownership without requiring a
// credential, duplicate operations and missing owner fields.
func (t *Table) Validate() error {
	if len(t.index) != len(t.rules) {
		return fmt.Errorf("access: %s table has duplicate operations", t.mode)
	}
	for _, r := range t.rules {
		if r.Check != CheckNone && !r.Auth {
			return fmt.Errorf("access: %s requires %s without a credential", r.Operation, r.Check)
		}
		if r.Check != CheckNone && r.OwnerField == "" {
			return fmt.Errorf("access: %s requires %s without an owner field", r.Operation, r.Check)
		}
		if r.Check == CheckPathEmail && !strings.Contains(r.Path, ":"+EmailParam) {
			return fmt.Errorf("access: %s checks the path email but %s has no :%s parameter", r.Operation, r.Path, EmailParam)
		}
	}
	return nil
}

// Owner reference fields.
const (
	JobOwnerField        = "buyer.email"
	BidOwnerField        = "email"
	BidRequestOwnerField = "buyer.email"
)

// BidJobField names the job a bid is placed on.
const BidJobField = "jobId"

// CompatTable returns the rules as the marketplace has enforced them.
func CompatTable() *Table {
	return newTable(ModeCompat, []Rule{
		{Operation: OpLogin, Method: http.MethodPost, Path: "/jwt"},
		{Operation: OpLogout, Method: http.MethodGet, Path: "/logout"},
		{Operation: OpListJobs, Method: http.MethodGet, Path: "/jobs"},
		{Operation: OpFetchJob, Method: http.MethodGet, Path: "/job/:id"},
		{Operation: OpCreateJob, Method: http.MethodPost, Path: "/job", OwnerField: JobOwnerField},
		{Operation: OpCreateBid, Method: http.MethodPost, Path: "/bid", OwnerField: BidOwnerField},
		{Operation: OpListJobsByOwner, Method: http.MethodGet, Path: "/jobs/:email", Auth: true, Check: CheckPathEmail, OwnerField: JobOwnerField},
		{Operation: OpUpdateJob, Method: http.MethodPut, Path: "/job/:id", Auth: true, OwnerField: JobOwnerField},
		{Operation: OpDeleteJob, Method: http.MethodDelete, Path: "/job/:id", OwnerField: JobOwnerField},
		{Operation: OpListMyBids, Method: http.MethodGet, Path: "/my-bids/:email", Auth: true, OwnerField: BidOwnerField},
		{Operation: OpListBidRequests, Method: http.MethodGet, Path: "/bid-requests/:email", Auth: true, OwnerField: BidRequestOwnerField},
		{Operation: OpPatchBidStatus, Method: http.MethodPatch, Path: "/bid/:id", OwnerField: BidRequestOwnerField},
	})
}

// HardenedTable returns the rules with every owner-scoped operation checked.
func HardenedTable() *Table {
	return newTable(ModeHardened, []Rule{
		{Operation: OpLogin, Method: http.MethodPost, Path: "/jwt"},
		{Operation: OpLogout, Method: http.MethodGet, Path: "/logout"},
		{Operation: OpListJobs, Method: http.MethodGet, Path: "/jobs"},
		{Operation: OpFetchJob, Method: http.MethodGet, Path: "/job/:id"},
		{Operation: OpCreateJob, Method: http.MethodPost, Path: "/job", Auth: true, Check: CheckBodyOwner, OwnerField: JobOwnerField},
		{Operation: OpCreateBid, Method: http.MethodPost, Path: "/bid", Auth: true, Check: CheckBodyOwner, OwnerField: BidOwnerField},
		{Operation: OpListJobsByOwner, Method: http.MethodGet, Path: "/jobs/:email", Auth: true, Check: CheckPathEmail, OwnerField: JobOwnerField},
		{Operation: OpUpdateJob, Method: http.MethodPut, Path: "/job/:id", Auth: true, Check: CheckStoredOwner, OwnerField: JobOwnerField},
		{Operation: OpDeleteJob, Method: http.MethodDelete, Path: "/job/:id", Auth: true, Check: CheckStoredOwner, OwnerField: JobOwnerField},
		{Operation: OpListMyBids, Method: http.MethodGet, Path: "/my-bids/:email", Auth: true, Check: CheckPathEmail, OwnerField: BidOwnerField},
		{Operation: OpListBidRequests, Method: http.MethodGet, Path: "/bid-requests/:email", Auth: true, Check: CheckPathEmail, OwnerField: BidRequestOwnerField},
		{Operation: OpPatchBidStatus, Method: http.MethodPatch, Path: "/bid/:id", Auth: true, Check: CheckStoredOwner, OwnerField: BidRequestOwnerField},
	})
}

// ForMode returns the table for mode.
func ForMode(mode Mode) (*Table, error) {
	switch mode {
	case ModeCompat:
		return CompatTable(), nil
	case ModeHardened:
		return HardenedTable(), nil
	default:
		return nil, fmt.Errorf("invalid access policy %q (valid options: compat, hardened)", mode)
	}
}
