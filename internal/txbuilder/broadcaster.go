package txbuilder

import (
	"context"
	"fmt"
	"time"
)

// confirmationPollInterval and confirmationAttempts bound how long a
// broadcaster waits for a submitted signature to reach at least the
// "confirmed" commitment level before giving up.
const (
	confirmationPollInterval = 400 * time.Millisecond
	confirmationAttempts     = 15
)

// Broadcaster submits a signed transaction for inclusion. Two concrete
// variants are expected (local direct submission, bundle submission
// for MEV-aware inclusion); both are narrow capability handles rather
// than an inheritance hierarchy, since the capability set is a single
// method.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx SignedTransaction) (signature string, err error)
}

// RPCSender is the narrow RpcPool surface a Broadcaster needs.
type RPCSender interface {
	Call(ctx context.Context, method string, params, out any) error
}

// LocalBroadcaster submits directly via sendTransaction.
type LocalBroadcaster struct {
	sender RPCSender
}

// NewLocalBroadcaster wraps sender for direct submission.
func NewLocalBroadcaster(sender RPCSender) *LocalBroadcaster {
	return &LocalBroadcaster{sender: sender}
}

// Broadcast submits tx via a plain sendTransaction call, then polls
// getSignatureStatus until the signature confirms or the poll budget
// is exhausted.
func (b *LocalBroadcaster) Broadcast(ctx context.Context, tx SignedTransaction) (string, error) {
	var sig string
	if err := b.sender.Call(ctx, "sendTransaction", tx.RawBytes, &sig); err != nil {
		return "", err
	}
	if err := confirmSignature(ctx, b.sender, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// BundleBroadcaster wraps one or more transactions in a bundle
// envelope for MEV-aware inclusion, requested when the caller opts
// into bundle submission.
type BundleBroadcaster struct {
	sender   RPCSender
	tipLamports uint64
}

// NewBundleBroadcaster wraps sender, attaching tipLamports to every
// submitted bundle.
func NewBundleBroadcaster(sender RPCSender, tipLamports uint64) *BundleBroadcaster {
	return &BundleBroadcaster{sender: sender, tipLamports: tipLamports}
}

// Broadcast wraps tx in a single-transaction bundle envelope and
// submits it via sendBundle.
func (b *BundleBroadcaster) Broadcast(ctx context.Context, tx SignedTransaction) (string, error) {
	bundle := struct {
		Transactions [][]byte `json:"transactions"`
		TipLamports  uint64   `json:"tip_lamports"`
	}{
		Transactions: [][]byte{tx.RawBytes},
		TipLamports:  b.tipLamports,
	}

	var bundleID string
	if err := b.sender.Call(ctx, "sendBundle", bundle, &bundleID); err != nil {
		return "", err
	}
	return bundleID, nil
}

// confirmSignature polls getSignatureStatus for sig until its
// confirmation status is at least "confirmed", the poll budget is
// exhausted, or ctx is cancelled.
func confirmSignature(ctx context.Context, sender RPCSender, sig string) error {
	var lastErr error
	for attempt := 0; attempt < confirmationAttempts; attempt++ {
		var status struct {
			Value []*struct {
				ConfirmationStatus string `json:"confirmationStatus"`
				Err                any    `json:"err"`
			} `json:"value"`
		}
		if err := sender.Call(ctx, "getSignatureStatus", []string{sig}, &status); err != nil {
			lastErr = err
		} else if len(status.Value) > 0 && status.Value[0] != nil {
			entry := status.Value[0]
			if entry.Err != nil {
				return fmt.Errorf("txbuilder: transaction %s failed on-chain: %v", sig, entry.Err)
			}
			if entry.ConfirmationStatus == "confirmed" || entry.ConfirmationStatus == "finalized" {
				return nil
			}
			lastErr = nil
		} else {
			lastErr = nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(confirmationPollInterval):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("txbuilder: confirming %s: %w", sig, lastErr)
	}
	return fmt.Errorf("txbuilder: signature %s did not confirm within the poll budget", sig)
}

var (
	_ Broadcaster = (*LocalBroadcaster)(nil)
	_ Broadcaster = (*BundleBroadcaster)(nil)
)
