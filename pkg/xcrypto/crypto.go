// Package xcrypto is the crypto facade used by every protocol in this
// repository: message digesting, signing, and verification behind a
// pluggable signature scheme, so the same PBFT/unreplicated code runs
// unmodified over a cheap test-only scheme or a production one.
package xcrypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Flavor selects the signature scheme a Crypto instance uses.
type Flavor int

const (
	// Plain compares a fixed per-signer tag string; test-only, never
	// verify_batch-capable.
	Plain Flavor = iota
	Secp256k1
	Schnorrkel
)

// ErrUnimplemented is returned by VerifyBatch for schemes that have no
// batch-verification primitive; callers fall back to sequential Verify.
var ErrUnimplemented = errors.New("xcrypto: batch verification unimplemented for this scheme")

// Signature is a tagged union over the three supported schemes.
type Signature struct {
	Plain      string
	Secp256k1R []byte
	Secp256k1S []byte
	Schnorrkel []byte
}

// Verifiable pairs a message with the signature of its digest. Once
// constructed it is treated as read-only by every caller in this
// repository: building one is the only way to attach a signature to a
// message, and nothing downstream is permitted to mutate the pair out
// from under a signature that was already checked.
type Verifiable[M DigestHash] struct {
	Message   M
	Signature Signature
}

// provider is the internal per-scheme key material and sign/verify logic.
type provider interface {
	sign(digest [32]byte) Signature
	verify(digest [32]byte, pub publicKey, sig Signature) error
	verifyBatch(digests [][32]byte, pubs []publicKey, sigs []Signature) error
}

type publicKey struct {
	plainTag        string
	secp256k1Pub    []byte
	schnorrkelPub   []byte
}

// Crypto holds one signer's private key material (via provider) plus the
// public keys of every other participant, indexed by replica id.
type Crypto struct {
	flavor     Flavor
	self       provider
	publicKeys []publicKey
}

// NewHardcoded derives n deterministic keypairs from the fixed seed family
// "replica-{id}" (null-padded to 32 bytes) and returns the Crypto view for
// replica `index`. Every replica and every model-checking exploration
// derives the identical key set from n and flavor alone, which is what
// lets the search engine replay a run bit-for-bit.
func NewHardcoded(n int, index uint8, flavor Flavor) (*Crypto, error) {
	pubs := make([]publicKey, n)
	providers := make([]provider, n)
	for i := 0; i < n; i++ {
		seed := seedFor(uint8(i))
		p, pub, err := newProviderFromSeed(flavor, seed, uint8(i))
		if err != nil {
			return nil, fmt.Errorf("xcrypto: derive replica %d key: %w", i, err)
		}
		providers[i] = p
		pubs[i] = pub
	}
	if int(index) >= n {
		return nil, fmt.Errorf("xcrypto: index %d out of range for n=%d", index, n)
	}
	return &Crypto{flavor: flavor, self: providers[index], publicKeys: pubs}, nil
}

func seedFor(id uint8) [32]byte {
	var seed [32]byte
	s := fmt.Sprintf("replica-%d", id)
	copy(seed[:], s)
	return seed
}

// Sign signs the SHA-256 digest of m's declared-order byte stream.
func Sign[M DigestHash](c *Crypto, m M) Verifiable[M] {
	digest := sha256.Sum256(HashBytes(m))
	return Verifiable[M]{Message: m, Signature: c.self.sign(digest)}
}

// Verify checks that Verifiable.Signature is a valid signature by the
// participant at signerIndex over Verifiable.Message's digest.
func Verify[M DigestHash](c *Crypto, signerIndex uint8, v Verifiable[M]) error {
	if int(signerIndex) >= len(c.publicKeys) {
		return fmt.Errorf("xcrypto: signer index %d out of range", signerIndex)
	}
	digest := sha256.Sum256(HashBytes(v.Message))
	return c.self.verify(digest, c.publicKeys[signerIndex], v.Signature)
}

// VerifyBatch checks many signatures in one call. Only Schnorrkel supports
// true batch verification; other flavors return ErrUnimplemented so the
// caller can fall back to a sequential Verify loop, exactly as the
// reference implementation this was modeled on does.
func VerifyBatch[M DigestHash](c *Crypto, signerIndexes []uint8, batch []Verifiable[M]) error {
	if c.flavor != Schnorrkel {
		return ErrUnimplemented
	}
	if len(signerIndexes) != len(batch) {
		return fmt.Errorf("xcrypto: signer/message length mismatch")
	}
	digests := make([][32]byte, len(batch))
	pubs := make([]publicKey, len(batch))
	sigs := make([]Signature, len(batch))
	for i, v := range batch {
		if int(signerIndexes[i]) >= len(c.publicKeys) {
			return fmt.Errorf("xcrypto: signer index %d out of range", signerIndexes[i])
		}
		digests[i] = sha256.Sum256(HashBytes(v.Message))
		pubs[i] = c.publicKeys[signerIndexes[i]]
		sigs[i] = v.Signature
	}
	return c.self.verifyBatch(digests, pubs, sigs)
}

func newProviderFromSeed(flavor Flavor, seed [32]byte, id uint8) (provider, publicKey, error) {
	switch flavor {
	case Plain:
		return newPlainProvider(id)
	case Secp256k1:
		return newSecp256k1Provider(seed)
	case Schnorrkel:
		return newSchnorrkelProvider(seed)
	default:
		return nil, publicKey{}, fmt.Errorf("xcrypto: unknown flavor %d", flavor)
	}
}
