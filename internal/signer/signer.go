// Package signer is the transaction-signing collaborator. It exists
// behind an interface because the signing backend is swappable: a
// developer key on disk today, an HSM or remote enclave tomorrow. None
// of the rest of the agent should ever see a private key.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/kestrel-systems/sniper/internal/domain"
)

// Signer signs transaction messages and exposes its public key. The
// transaction builder holds one Signer and never touches key material
// directly.
type Signer interface {
	PublicKey() domain.Mint
	Sign(message []byte) ([]byte, error)
}

// LocalSigner holds an ed25519 keypair in process memory. Intended for
// development and for environments where the key is already protected
// by the host (encrypted disk, restricted process).
type LocalSigner struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewLocalSigner generates a fresh keypair.
func NewLocalSigner() (*LocalSigner, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signer: generate key: %w", err)
	}
	return &LocalSigner{public: pub, private: priv}, nil
}

// NewLocalSignerFromSeed constructs a LocalSigner from a 32-byte seed,
// e.g. one loaded from an environment variable or secrets file.
func NewLocalSignerFromSeed(seed []byte) (*LocalSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &LocalSigner{public: pub, private: priv}, nil
}

// NewLocalSignerFromHexSeed decodes a hex-encoded 32-byte seed.
func NewLocalSignerFromHexSeed(hexSeed string) (*LocalSigner, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("signer: decode hex seed: %w", err)
	}
	return NewLocalSignerFromSeed(seed)
}

// PublicKey returns the signer's ed25519 public key as a Mint-shaped
// 32-byte identifier, matching how on-chain account keys are sized.
func (s *LocalSigner) PublicKey() domain.Mint {
	var m domain.Mint
	copy(m[:], s.public)
	return m
}

// Sign produces an ed25519 signature over message.
func (s *LocalSigner) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.private, message), nil
}

var _ Signer = (*LocalSigner)(nil)
