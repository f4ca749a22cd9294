package xcrypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// secp256k1Provider signs SHA-256 message digests with ECDSA over the
// secp256k1 curve, the scheme used by every production replica identity
// in this harness.
type secp256k1Provider struct {
	priv *secp256k1.PrivateKey
}

func newSecp256k1Provider(seed [32]byte) (provider, publicKey, error) {
	priv := secp256k1.PrivKeyFromBytes(seed[:])
	pub := priv.PubKey().SerializeCompressed()
	return &secp256k1Provider{priv: priv}, publicKey{secp256k1Pub: pub}, nil
}

func (p *secp256k1Provider) sign(digest [32]byte) Signature {
	sig := dcrecdsa.Sign(p.priv, digest[:])
	return Signature{Secp256k1R: sig.Serialize()}
}

func (p *secp256k1Provider) verify(digest [32]byte, pub publicKey, sig Signature) error {
	parsed, err := secp256k1.ParsePubKey(pub.secp256k1Pub)
	if err != nil {
		return fmt.Errorf("xcrypto: parse secp256k1 public key: %w", err)
	}
	parsedSig, err := dcrecdsa.ParseDERSignature(sig.Secp256k1R)
	if err != nil {
		return fmt.Errorf("xcrypto: parse secp256k1 signature: %w", err)
	}
	if !parsedSig.Verify(digest[:], parsed) {
		return fmt.Errorf("xcrypto: secp256k1 signature invalid")
	}
	return nil
}

func (p *secp256k1Provider) verifyBatch(_ [][32]byte, _ []publicKey, _ []Signature) error {
	return ErrUnimplemented
}
