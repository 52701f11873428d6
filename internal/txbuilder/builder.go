package txbuilder

import (
	"context"

	agerrors "github.com/kestrel-systems/sniper/infrastructure/errors"
	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/noncemgr"
	"github.com/kestrel-systems/sniper/internal/signer"
)

// NonceAcquirer is the narrow noncemgr.Manager surface the builder
// needs.
type NonceAcquirer interface {
	Acquire(ctx context.Context) (*domain.NonceLease, error)
}

// SignedTransaction is the fully-built, signed output ready for
// broadcast.
type SignedTransaction struct {
	RawBytes   []byte
	Signature  []byte
	Signer     domain.Mint
	Blockhash  [32]byte
}

// BuildRequest describes one transaction to plan, simulate, and sign.
type BuildRequest struct {
	Priority             OperationPriority
	ProgramInstructions  []Instruction
	BaseFeeMicroLamports uint64
	CongestionMultiplier float64
	AllowListProgramIDs  []domain.Mint
	MinQuorumResponses   int
	AvailableEndpoints   int
	MaxSlotDiffSlots     int
	ComputeUnitLimit     uint32
	// SimulationEnabled gates the preflight simulateTransaction call.
	// Operators disable it to trade the safety net for latency once a
	// program instruction set is proven out.
	SimulationEnabled bool
	// Placeholder marks a build whose program instructions stand in for
	// a real DEX integration (a plain SystemProgram transfer rather
	// than an actual swap). Placeholder builds never emit a
	// compute-unit-price instruction, even when the adaptive fee is
	// non-zero, since the fee would price a swap that never happens.
	Placeholder bool
}

// TxBuildOutput is the product of a successful build. It holds the
// acquired nonce lease (if any) until the caller explicitly releases
// it via ReleaseNonce, or until the lease's own reaper reclaims it on
// TTL expiry if the caller never does.
type TxBuildOutput struct {
	Tx    SignedTransaction
	lease *domain.NonceLease
}

// IntoTx returns the signed, ready-to-broadcast transaction.
func (o *TxBuildOutput) IntoTx() SignedTransaction {
	return o.Tx
}

// TxRef returns the base58-free raw signature bytes identifying this
// transaction, suitable for logging and dedup.
func (o *TxBuildOutput) TxRef() []byte {
	return o.Tx.Signature
}

// RequiredSigners returns the signer public keys the transaction
// message references (currently always exactly the builder's signer).
func (o *TxBuildOutput) RequiredSigners() []domain.Mint {
	return []domain.Mint{o.Tx.Signer}
}

// ReleaseNonce releases the held nonce lease, if this build consumed
// one. Safe to call on a build that never acquired a lease, and safe
// to call more than once.
func (o *TxBuildOutput) ReleaseNonce() {
	if o.lease != nil {
		o.lease.Release()
	}
}

// Builder plans an ordered instruction list, resolves a durable nonce
// or a quorum-confirmed recent blockhash depending on priority,
// simulates the result, signs it, and returns a TxBuildOutput holding
// any acquired lease.
type Builder struct {
	nonces     NonceAcquirer
	blockhash  BlockhashSource
	sim        *SimulationCache
	signer     signer.Signer
}

// NewBuilder wires the collaborators a build needs.
func NewBuilder(nonces NonceAcquirer, blockhash BlockhashSource, sim *SimulationCache, s signer.Signer) *Builder {
	return &Builder{nonces: nonces, blockhash: blockhash, sim: sim, signer: s}
}

// Build runs the full pipeline: ExecutionContext preparation (nonce or
// quorum blockhash depending on priority), instruction assembly and
// ordering validation, adaptive fee, simulation, and signing.
func (b *Builder) Build(ctx context.Context, simulator Simulator, req BuildRequest) (*TxBuildOutput, error) {
	durable := req.Priority.RequiresNonce()

	var lease *domain.NonceLease
	var recentBlockhash [32]byte

	if durable {
		l, err := b.nonces.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		lease = l
		recentBlockhash = l.NonceBlockhash
	} else {
		resp, err := QuorumBlockhash(ctx, b.blockhash, req.MinQuorumResponses, req.AvailableEndpoints, req.MaxSlotDiffSlots)
		if err != nil {
			return nil, err
		}
		recentBlockhash = resp.Blockhash
	}

	fee := AdaptiveFee(req.BaseFeeMicroLamports, req.CongestionMultiplier)

	ixs := assembleInstructions(req, fee, durable)

	if err := sanityCheckIxOrder(ixs, durable, req.Placeholder, fee, req.AllowListProgramIDs); err != nil {
		releaseOnFailure(lease)
		return nil, err
	}

	if req.SimulationEnabled {
		if err := b.sim.Simulate(ctx, simulator, ixs); err != nil {
			releaseOnFailure(lease)
			return nil, err
		}
	}

	message := signingMessage(ixs, recentBlockhash)
	sig, err := b.signer.Sign(message)
	if err != nil {
		releaseOnFailure(lease)
		return nil, agerrors.Wrap(agerrors.ErrCodeSigningFailed, "signing failed", err)
	}

	tx := SignedTransaction{
		RawBytes:  message,
		Signature: sig,
		Signer:    b.signer.PublicKey(),
		Blockhash: recentBlockhash,
	}

	return &TxBuildOutput{Tx: tx, lease: lease}, nil
}

// releaseOnFailure returns an acquired lease to the pool immediately
// when a later build stage rejects the transaction, instead of
// leaving it held until TTL reaping.
func releaseOnFailure(lease *domain.NonceLease) {
	if lease != nil {
		lease.Release()
	}
}

// assembleInstructions orders the fixed instruction slots ahead of the
// caller-supplied program instructions: advance_nonce (when durable)
// first, then compute-unit-limit, then compute-unit-price (only for a
// non-placeholder build with a non-zero fee), then the program
// instructions in the order given.
func assembleInstructions(req BuildRequest, fee uint64, durable bool) []Instruction {
	ixs := make([]Instruction, 0, len(req.ProgramInstructions)+3)

	if durable {
		ixs = append(ixs, Instruction{Kind: KindAdvanceNonce, ProgramID: SystemProgramID})
	}

	limitBytes := uint32ToBytes(req.ComputeUnitLimit)
	ixs = append(ixs, Instruction{Kind: KindComputeUnitLimit, ProgramID: ComputeBudgetProgramID, Data: limitBytes})

	if fee > 0 && !req.Placeholder {
		priceBytes := uint64ToBytes(fee)
		ixs = append(ixs, Instruction{Kind: KindComputeUnitPrice, ProgramID: ComputeBudgetProgramID, Data: priceBytes})
	}

	ixs = append(ixs, req.ProgramInstructions...)
	return ixs
}

func signingMessage(ixs []Instruction, blockhash [32]byte) []byte {
	msg := instructionBytes(ixs)
	out := make([]byte, 0, len(msg)+32)
	out = append(out, blockhash[:]...)
	out = append(out, msg...)
	return out
}

func uint32ToBytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func uint64ToBytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

var _ NonceAcquirer = (*noncemgr.Manager)(nil)
