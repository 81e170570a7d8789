// Package crypto implements C1: Ed25519 sign/verify, SHA3-256 content
// hashing, and keypair file I/O for the ledger node.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/sha3"
)

// ErrInvalidKey is returned when a key or signature does not have the
// expected byte length.
var ErrInvalidKey = errors.New("crypto: invalid key or signature length")

const (
	// PublicKeySize is the size in bytes of an Ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize
	// PrivateKeySize is the size in bytes of an Ed25519 private key.
	PrivateKeySize = ed25519.PrivateKeySize
	// SignatureSize is the size in bytes of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize
	// HashSize is the size in bytes of a SHA3-256 digest.
	HashSize = 32
)

// Hash is a fixed-size SHA3-256 digest over a canonical byte serialization.
type Hash [HashSize]byte

// IsZero reports whether h is the all-zero hash, used as the genesis
// block's prev_hash sentinel.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// HashFromBytes builds a Hash from a byte slice of exactly HashSize length.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("%w: hash must be %d bytes, got %d", ErrInvalidKey, HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Sum256 computes the SHA3-256 digest of payload.
func Sum256(payload []byte) Hash {
	hasher := sha3.New256()
	_, _ = hasher.Write(payload)
	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out
}

// PublicKey is an Ed25519 public key, also used as peer and signatory
// identity throughout the ledger.
type PublicKey [PublicKeySize]byte

func (pk PublicKey) String() string { return hex.EncodeToString(pk[:]) }

// Bytes returns a copy of the public key bytes.
func (pk PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, pk[:])
	return out
}

// Less gives the lexicographic public-key tie-break used for peer ordering
// (open question #2 of the specification: trust-score ordering is not
// implemented, lexicographic order is the documented substitute).
func (pk PublicKey) Less(other PublicKey) bool {
	for i := range pk {
		if pk[i] != other[i] {
			return pk[i] < other[i]
		}
	}
	return false
}

// PublicKeyFromBytes builds a PublicKey from a byte slice.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidKey, PublicKeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PrivateKey is an Ed25519 private key.
type PrivateKey [PrivateKeySize]byte

// Bytes returns a copy of the private key bytes.
func (sk PrivateKey) Bytes() []byte {
	out := make([]byte, PrivateKeySize)
	copy(out, sk[:])
	return out
}

// PrivateKeyFromBytes builds a PrivateKey from a byte slice.
func PrivateKeyFromBytes(b []byte) (PrivateKey, error) {
	var sk PrivateKey
	if len(b) != PrivateKeySize {
		return sk, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKey, PrivateKeySize, len(b))
	}
	copy(sk[:], b)
	return sk, nil
}

// Keypair pairs an Ed25519 public and private key.
type Keypair struct {
	Public  PublicKey
	Private PrivateKey
}

// GenerateKeypair produces a fresh Ed25519 keypair.
func GenerateKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	var kp Keypair
	copy(kp.Public[:], pub)
	copy(kp.Private[:], priv)
	return kp, nil
}

// Signature is a detached Ed25519 signature over the payload hash of a
// signable object, tagged with the signing public key.
type Signature struct {
	PublicKey PublicKey
	Bytes     [SignatureSize]byte
}

// Sign signs payload (typically a payload hash) with keypair, returning a
// Signature tagged with the signer's public key.
func Sign(payload []byte, kp Keypair) (Signature, error) {
	priv := ed25519.PrivateKey(kp.Private.Bytes())
	sig := ed25519.Sign(priv, payload)
	if len(sig) != SignatureSize {
		return Signature{}, fmt.Errorf("%w: unexpected signature length %d", ErrInvalidKey, len(sig))
	}
	var out Signature
	out.PublicKey = kp.Public
	copy(out.Bytes[:], sig)
	return out, nil
}

// Verify checks sig against payload using the embedded public key. It is
// total: malformed input returns false rather than panicking.
func Verify(sig Signature, payload []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(sig.PublicKey.Bytes()), payload, sig.Bytes[:])
}

// VerifyWithKey checks a raw signature against payload and pub, failing
// closed (false) on any length mismatch.
func VerifyWithKey(pub PublicKey, payload, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub.Bytes()), payload, sig)
}

// LoadKeypair reads a keypair from "<basename>.pub" and "<basename>.priv",
// each containing hex-encoded key bytes, matching the --keypair_name CLI
// convention of the node binary.
func LoadKeypair(basename string) (Keypair, error) {
	pubHex, err := os.ReadFile(basename + ".pub")
	if err != nil {
		return Keypair{}, fmt.Errorf("read public key file: %w", err)
	}
	privHex, err := os.ReadFile(basename + ".priv")
	if err != nil {
		return Keypair{}, fmt.Errorf("read private key file: %w", err)
	}

	pubBytes, err := hex.DecodeString(trimNewline(string(pubHex)))
	if err != nil {
		return Keypair{}, fmt.Errorf("decode public key hex: %w", err)
	}
	privBytes, err := hex.DecodeString(trimNewline(string(privHex)))
	if err != nil {
		return Keypair{}, fmt.Errorf("decode private key hex: %w", err)
	}

	pub, err := PublicKeyFromBytes(pubBytes)
	if err != nil {
		return Keypair{}, err
	}
	priv, err := PrivateKeyFromBytes(privBytes)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// WriteKeypair persists kp as hex-encoded "<basename>.pub"/"<basename>.priv"
// files with owner-only permissions for the private key.
func WriteKeypair(basename string, kp Keypair) error {
	pubHex := hex.EncodeToString(kp.Public.Bytes())
	privHex := hex.EncodeToString(kp.Private.Bytes())
	if err := os.WriteFile(basename+".pub", []byte(pubHex), 0o644); err != nil {
		return fmt.Errorf("write public key file: %w", err)
	}
	if err := os.WriteFile(basename+".priv", []byte(privHex), 0o600); err != nil {
		return fmt.Errorf("write private key file: %w", err)
	}
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
