// Package signer holds the service's own Ed25519 signing key sealed at rest
// and serializes every signature it produces behind a mutex, standing in for
// a host-managed named-key signer (and, eventually, a threshold backend —
// see Sign's doc comment).
package signer

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Signer produces Ed25519 signatures over arbitrary byte payloads using a
// key sealed on disk with AES-256-GCM. It is safe for concurrent use: every
// call to Sign is serialized, matching the single-in-process-object shared
// resource model the dispatch path assumes.
type Signer struct {
	mu     sync.Mutex
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	logger *zap.Logger
}

// Config locates the sealed key file and the secret used to derive its
// AES-256 wrapping key.
type Config struct {
	KeyPath          string
	EncryptionSecret string
}

// Load opens the sealed key at cfg.KeyPath, generating and persisting a
// fresh Ed25519 keypair if the file does not yet exist. The resulting public
// key is stable across restarts, as the dispatch path requires.
func Load(cfg Config, logger *zap.Logger) (*Signer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	key := deriveWrapKey(cfg.EncryptionSecret)

	sealed, err := os.ReadFile(cfg.KeyPath)
	if os.IsNotExist(err) {
		pub, priv, genErr := ed25519.GenerateKey(rand.Reader)
		if genErr != nil {
			return nil, fmt.Errorf("signer: generate keypair: %w", genErr)
		}
		ciphertext, sealErr := seal(key, priv)
		if sealErr != nil {
			return nil, fmt.Errorf("signer: seal new key: %w", sealErr)
		}
		if writeErr := os.WriteFile(cfg.KeyPath, ciphertext, 0o600); writeErr != nil {
			return nil, fmt.Errorf("signer: persist sealed key: %w", writeErr)
		}
		logger.Info("signer: generated new keypair", zap.String("path", cfg.KeyPath))
		return &Signer{priv: priv, pub: pub, logger: logger}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("signer: read sealed key: %w", err)
	}

	priv, err := unseal(key, sealed)
	if err != nil {
		return nil, fmt.Errorf("signer: unseal key: %w", err)
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signer: unsealed key is not an Ed25519 private key")
	}
	logger.Info("signer: loaded sealed keypair", zap.String("path", cfg.KeyPath))
	return &Signer{priv: priv, pub: pub, logger: logger}, nil
}

// PublicKey returns the signer's stable public key.
func (s *Signer) PublicKey() [32]byte {
	var out [32]byte
	copy(out[:], s.pub)
	return out
}

// Sign produces an Ed25519 signature over payload. The call is serialized
// against concurrent Sign calls; this Ed25519 construction happens to be
// deterministic per RFC 8032, but callers must not rely on that — the
// interface contract allows swapping in a threshold-signature backend later
// without changing call sites.
func (s *Signer) Sign(ctx context.Context, payload []byte) ([64]byte, error) {
	var sig [64]byte
	select {
	case <-ctx.Done():
		return sig, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw := ed25519.Sign(s.priv, payload)
	copy(sig[:], raw)
	return sig, nil
}

func deriveWrapKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// seal encrypts priv with AES-256-GCM, prefixing the ciphertext with its
// nonce so unseal is self-contained.
func seal(key []byte, priv ed25519.PrivateKey) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, priv, nil), nil
}

// unseal reverses seal.
func unseal(key []byte, sealed []byte) (ed25519.PrivateKey, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed key too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return ed25519.PrivateKey(plain), nil
}

// Verify checks sig against payload under pub. The settlement contract does
// the authoritative check on-chain; within this service only the tests call
// it, the dispatcher does not verify before submitting.
func Verify(pub [32]byte, payload []byte, sig [64]byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), payload, sig[:])
}
