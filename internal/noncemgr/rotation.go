package noncemgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	agerrors "github.com/kestrel-systems/sniper/infrastructure/errors"
	"github.com/kestrel-systems/sniper/infrastructure/logging"
	"github.com/kestrel-systems/sniper/internal/domain"
)

// RotationState is a step in the authority-rotation approval workflow
// for swapping a nonce account's authority key.
type RotationState string

const (
	RotationIdle       RotationState = "idle"
	RotationProposed   RotationState = "proposed"
	RotationApproved   RotationState = "approved"
	RotationExecuting  RotationState = "executing"
	RotationCommitted  RotationState = "committed"
	RotationFinalized  RotationState = "finalized"
	RotationFailed     RotationState = "failed"
	RotationRolledBack RotationState = "rolled_back"
)

// Approval records one approver's sign-off on a proposal.
type Approval struct {
	Approver  domain.Mint
	ApprovedAt time.Time
}

// RotationProposal is one in-flight authority rotation.
type RotationProposal struct {
	ID                string
	NonceAccount      domain.Mint
	CurrentAuthority  domain.Mint
	NewAuthority      domain.Mint
	CreatedAt         time.Time
	Reason            string
	State             RotationState
	Approvals         []Approval
	RequiredApprovals int
	TimelockUntil     time.Time
	FailureReason     string
}

// AuditEntry is one immutable record of a proposal's state transition.
type AuditEntry struct {
	ProposalID string
	FromState  RotationState
	ToState    RotationState
	At         time.Time
	Detail     string
}

// RotationManager tracks in-flight proposals and their audit trail. A
// proposal only reaches Executing once it has RequiredApprovals
// distinct approvers and any configured timelock has elapsed.
type RotationManager struct {
	log *logging.Logger

	mu        sync.Mutex
	proposals map[string]*RotationProposal
	audit     []AuditEntry
}

// NewRotationManager constructs an empty tracker.
func NewRotationManager(log *logging.Logger) *RotationManager {
	if log == nil {
		log = logging.New("noncemgr.rotation", "info", "json")
	}
	return &RotationManager{
		log:       log,
		proposals: make(map[string]*RotationProposal),
	}
}

// Propose opens a new rotation proposal in the Proposed state.
func (r *RotationManager) Propose(nonceAccount, currentAuthority, newAuthority domain.Mint, reason string, requiredApprovals int, timelock time.Duration) *RotationProposal {
	p := &RotationProposal{
		ID:                uuid.New().String(),
		NonceAccount:      nonceAccount,
		CurrentAuthority:  currentAuthority,
		NewAuthority:      newAuthority,
		CreatedAt:         time.Now(),
		Reason:            reason,
		State:             RotationProposed,
		RequiredApprovals: requiredApprovals,
		TimelockUntil:     time.Now().Add(timelock),
	}

	r.mu.Lock()
	r.proposals[p.ID] = p
	r.audit = append(r.audit, AuditEntry{ProposalID: p.ID, FromState: RotationIdle, ToState: RotationProposed, At: p.CreatedAt, Detail: reason})
	r.mu.Unlock()

	return p
}

// Approve records approver's sign-off. Once RequiredApprovals distinct
// approvers have signed, the proposal transitions to Approved; the
// timelock is not checked here but by Execute.
func (r *RotationManager) Approve(proposalID string, approver domain.Mint) (*RotationProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[proposalID]
	if !ok {
		return nil, agerrors.New(agerrors.ErrCodeInvalidConfig, "unknown rotation proposal").WithDetails("proposal_id", proposalID)
	}
	if p.State != RotationProposed && p.State != RotationApproved {
		return nil, agerrors.New(agerrors.ErrCodeInvalidConfig, "proposal not awaiting approval").WithDetails("state", string(p.State))
	}

	for _, a := range p.Approvals {
		if a.Approver == approver {
			return p, nil
		}
	}
	p.Approvals = append(p.Approvals, Approval{Approver: approver, ApprovedAt: time.Now()})

	if len(p.Approvals) >= p.RequiredApprovals {
		from := p.State
		p.State = RotationApproved
		r.audit = append(r.audit, AuditEntry{ProposalID: p.ID, FromState: from, ToState: RotationApproved, At: time.Now()})
	}

	return p, nil
}

// Execute transitions an Approved proposal to Executing, recording the
// broadcast signature. Returns an error if the timelock has not
// elapsed or the proposal is not yet Approved.
func (r *RotationManager) Execute(proposalID string, signature [64]byte) (*RotationProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[proposalID]
	if !ok {
		return nil, agerrors.New(agerrors.ErrCodeInvalidConfig, "unknown rotation proposal").WithDetails("proposal_id", proposalID)
	}
	if p.State != RotationApproved {
		return nil, agerrors.New(agerrors.ErrCodeInvalidConfig, "proposal not approved").WithDetails("state", string(p.State))
	}
	if time.Now().Before(p.TimelockUntil) {
		return nil, agerrors.New(agerrors.ErrCodeInvalidConfig, "timelock has not elapsed")
	}

	from := p.State
	p.State = RotationExecuting
	r.audit = append(r.audit, AuditEntry{ProposalID: p.ID, FromState: from, ToState: RotationExecuting, At: time.Now(), Detail: fmt.Sprintf("sig=%x", signature[:8])})
	return p, nil
}

// Commit marks an Executing proposal as confirmed on-chain.
func (r *RotationManager) Commit(proposalID string) (*RotationProposal, error) {
	return r.transition(proposalID, RotationExecuting, RotationCommitted, "")
}

// Finalize marks a Committed proposal as complete.
func (r *RotationManager) Finalize(proposalID string) (*RotationProposal, error) {
	return r.transition(proposalID, RotationCommitted, RotationFinalized, "")
}

// Fail marks any in-flight proposal as Failed, recording why.
func (r *RotationManager) Fail(proposalID, reason string) (*RotationProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[proposalID]
	if !ok {
		return nil, agerrors.New(agerrors.ErrCodeInvalidConfig, "unknown rotation proposal").WithDetails("proposal_id", proposalID)
	}
	from := p.State
	p.State = RotationFailed
	p.FailureReason = reason
	r.audit = append(r.audit, AuditEntry{ProposalID: p.ID, FromState: from, ToState: RotationFailed, At: time.Now(), Detail: reason})
	return p, nil
}

// RollBack transitions a Failed proposal to RolledBack, the
// compensating branch for a rotation that was broadcast but should not
// be treated as authoritative.
func (r *RotationManager) RollBack(proposalID, reason string) (*RotationProposal, error) {
	return r.transition(proposalID, RotationFailed, RotationRolledBack, reason)
}

func (r *RotationManager) transition(proposalID string, from, to RotationState, detail string) (*RotationProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[proposalID]
	if !ok {
		return nil, agerrors.New(agerrors.ErrCodeInvalidConfig, "unknown rotation proposal").WithDetails("proposal_id", proposalID)
	}
	if p.State != from {
		return nil, agerrors.New(agerrors.ErrCodeInvalidConfig, "invalid rotation transition").
			WithDetails("from", string(p.State)).WithDetails("want_from", string(from))
	}
	p.State = to
	r.audit = append(r.audit, AuditEntry{ProposalID: p.ID, FromState: from, ToState: to, At: time.Now(), Detail: detail})
	return p, nil
}

// Get returns the proposal by ID, if it exists.
func (r *RotationManager) Get(proposalID string) (*RotationProposal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[proposalID]
	return p, ok
}

// AuditLog returns a copy of the full transition history.
func (r *RotationManager) AuditLog() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditEntry, len(r.audit))
	copy(out, r.audit)
	return out
}
