// Package txbuilder plans instruction sequences, acquires a nonce
// lease when required, simulates and signs the resulting transaction,
// and returns an output that holds the lease until explicit release or
// reaper cleanup.
package txbuilder

import (
	"bytes"
	"crypto/sha256"

	"github.com/kestrel-systems/sniper/internal/domain"
)

// well-known program IDs this builder recognizes by name for
// instruction-ordering validation; real values are 32-byte on-chain
// addresses supplied by configuration/allow-list.
var (
	SystemProgramID       domain.Mint
	ComputeBudgetProgramID domain.Mint
)

// InstructionKind distinguishes the fixed instruction-ordering slots
// from arbitrary program-specific instructions.
type InstructionKind uint8

const (
	KindAdvanceNonce InstructionKind = iota
	KindComputeUnitLimit
	KindComputeUnitPrice
	KindProgram
)

// Instruction is one entry in the ordered list embedded in a
// transaction message.
type Instruction struct {
	Kind      InstructionKind
	ProgramID domain.Mint
	Data      []byte
	Accounts  []domain.Mint
}

// OperationPriority selects the nonce/blockhash policy for a build.
type OperationPriority uint8

const (
	// CriticalSniper MUST use a durable nonce; no recent-blockhash
	// fallback is permitted.
	CriticalSniper OperationPriority = iota
	// Utility uses a quorum-confirmed recent blockhash; Build never
	// acquires a nonce lease for it, even when one is free.
	Utility
	// Bulk always uses a recent blockhash and never consumes a lease.
	Bulk
)

// RequiresNonce reports whether priority mandates a durable nonce.
func (p OperationPriority) RequiresNonce() bool {
	return p == CriticalSniper
}

// sanityCheckIxOrder validates the documented invariants: if durable,
// instruction 0 is advance_nonce and there is no second one; exactly
// zero or one compute-unit-price instruction, present only for a
// non-placeholder build with a non-zero fee and absent otherwise;
// every program ID is allow-listed when the allow-list is non-empty.
func sanityCheckIxOrder(ixs []Instruction, durable, placeholder bool, fee uint64, allowList []domain.Mint) error {
	advanceNonceCount := 0
	priceCount := 0

	for i, ix := range ixs {
		switch ix.Kind {
		case KindAdvanceNonce:
			advanceNonceCount++
			if i != 0 {
				return errInvalidOrder("advance_nonce must be instruction 0")
			}
		case KindComputeUnitPrice:
			priceCount++
		}

		if len(allowList) > 0 && ix.Kind == KindProgram {
			if !programAllowed(ix.ProgramID, allowList) {
				return errUnknownProgram(ix.ProgramID)
			}
		}
	}

	if durable && advanceNonceCount != 1 {
		return errInvalidOrder("durable build must have exactly one advance_nonce instruction")
	}
	if !durable && advanceNonceCount != 0 {
		return errInvalidOrder("non-durable build must not contain advance_nonce")
	}
	if priceCount > 1 {
		return errInvalidOrder("at most one compute-unit-price instruction is allowed")
	}
	if (placeholder || fee == 0) && priceCount != 0 {
		return errInvalidOrder("placeholder or zero-fee build must not contain a compute-unit-price instruction")
	}
	if !placeholder && fee > 0 && priceCount != 1 {
		return errInvalidOrder("non-placeholder build with a non-zero fee must contain a compute-unit-price instruction")
	}

	return nil
}

func programAllowed(id domain.Mint, allowList []domain.Mint) bool {
	for _, a := range allowList {
		if a == id {
			return true
		}
	}
	return false
}

// instructionBytes serializes the ordered instructions (kind, program
// ID, data, accounts) deterministically for hashing. The blockhash is
// never included: the simulation cache key must depend only on
// instruction content.
func instructionBytes(ixs []Instruction) []byte {
	var buf bytes.Buffer
	for _, ix := range ixs {
		buf.WriteByte(byte(ix.Kind))
		buf.Write(ix.ProgramID[:])
		buf.Write(ix.Data)
		for _, a := range ix.Accounts {
			buf.Write(a[:])
		}
	}
	return buf.Bytes()
}

// simulationCacheKey is the SHA-256 of the ordered instruction bytes
// only, so two builds with identical instructions but different
// blockhashes collide on the same cache entry.
func simulationCacheKey(ixs []Instruction) [32]byte {
	return sha256.Sum256(instructionBytes(ixs))
}

// stripAdvanceNonce returns ixs with any advance_nonce instruction
// removed, used to build the simulation-only message: simulation must
// not consume the nonce.
func stripAdvanceNonce(ixs []Instruction) []Instruction {
	out := make([]Instruction, 0, len(ixs))
	for _, ix := range ixs {
		if ix.Kind == KindAdvanceNonce {
			continue
		}
		out = append(out, ix)
	}
	return out
}
