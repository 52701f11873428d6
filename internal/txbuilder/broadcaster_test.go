package txbuilder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBroadcastSender struct {
	sendErr    error
	statusSeq  []string // confirmationStatus per getSignatureStatus call
	statusCall int
}

func (f *fakeBroadcastSender) Call(ctx context.Context, method string, params, out any) error {
	switch method {
	case "sendTransaction":
		if f.sendErr != nil {
			return f.sendErr
		}
		*out.(*string) = "sig123"
	case "getSignatureStatus":
		status := ""
		if f.statusCall < len(f.statusSeq) {
			status = f.statusSeq[f.statusCall]
		} else if len(f.statusSeq) > 0 {
			status = f.statusSeq[len(f.statusSeq)-1]
		}
		f.statusCall++

		raw := out.(*struct {
			Value []*struct {
				ConfirmationStatus string `json:"confirmationStatus"`
				Err                any    `json:"err"`
			} `json:"value"`
		})
		if status == "" {
			raw.Value = nil
			return nil
		}
		raw.Value = []*struct {
			ConfirmationStatus string `json:"confirmationStatus"`
			Err                any    `json:"err"`
		}{{ConfirmationStatus: status}}
	}
	return nil
}

func TestLocalBroadcaster_ReturnsSignatureOnImmediateConfirmation(t *testing.T) {
	sender := &fakeBroadcastSender{statusSeq: []string{"confirmed"}}
	b := NewLocalBroadcaster(sender)

	sig, err := b.Broadcast(context.Background(), SignedTransaction{RawBytes: []byte("tx")})
	require.NoError(t, err)
	require.Equal(t, "sig123", sig)
}

func TestLocalBroadcaster_WaitsThroughProcessedBeforeConfirmed(t *testing.T) {
	sender := &fakeBroadcastSender{statusSeq: []string{"processed", "processed", "confirmed"}}
	b := NewLocalBroadcaster(sender)

	sig, err := b.Broadcast(context.Background(), SignedTransaction{RawBytes: []byte("tx")})
	require.NoError(t, err)
	require.Equal(t, "sig123", sig)
	require.Equal(t, 3, sender.statusCall)
}

func TestLocalBroadcaster_ReturnsErrorOnOnChainFailure(t *testing.T) {
	sender := &onChainErrorSender{}
	b := NewLocalBroadcaster(sender)

	_, err := b.Broadcast(context.Background(), SignedTransaction{RawBytes: []byte("tx")})
	require.Error(t, err)
}

type onChainErrorSender struct{}

func (s *onChainErrorSender) Call(ctx context.Context, method string, params, out any) error {
	switch method {
	case "sendTransaction":
		*out.(*string) = "sigfail"
	case "getSignatureStatus":
		raw := out.(*struct {
			Value []*struct {
				ConfirmationStatus string `json:"confirmationStatus"`
				Err                any    `json:"err"`
			} `json:"value"`
		})
		raw.Value = []*struct {
			ConfirmationStatus string `json:"confirmationStatus"`
			Err                any    `json:"err"`
		}{{Err: "InstructionError"}}
	}
	return nil
}

func TestLocalBroadcaster_PropagatesSendError(t *testing.T) {
	sender := &fakeBroadcastSender{sendErr: context.DeadlineExceeded}
	b := NewLocalBroadcaster(sender)

	_, err := b.Broadcast(context.Background(), SignedTransaction{RawBytes: []byte("tx")})
	require.Error(t, err)
}

func TestBundleBroadcaster_SubmitsBundle(t *testing.T) {
	sender := &bundleSender{}
	b := NewBundleBroadcaster(sender, 5000)

	id, err := b.Broadcast(context.Background(), SignedTransaction{RawBytes: []byte("tx")})
	require.NoError(t, err)
	require.Equal(t, "bundle-1", id)
}

type bundleSender struct{}

func (s *bundleSender) Call(ctx context.Context, method string, params, out any) error {
	if method == "sendBundle" {
		*out.(*string) = "bundle-1"
	}
	return nil
}
