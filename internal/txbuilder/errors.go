package txbuilder

import (
	"encoding/hex"

	agerrors "github.com/kestrel-systems/sniper/infrastructure/errors"
	"github.com/kestrel-systems/sniper/internal/domain"
)

func errInvalidOrder(reason string) *agerrors.AgentError {
	return agerrors.New(agerrors.ErrCodeInvariantViolated, "instruction order violates invariant").WithDetails("reason", reason)
}

func errUnknownProgram(id domain.Mint) *agerrors.AgentError {
	return agerrors.UnknownInstruction(hex.EncodeToString(id[:]))
}
