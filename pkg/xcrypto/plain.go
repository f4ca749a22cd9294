package xcrypto

import "fmt"

// plainProvider implements the test-only scheme: a fixed per-replica tag
// string stands in for a signature and is checked by equality. It exists
// so protocol tests can run many replicas in one process without paying
// for real cryptography.
type plainProvider struct {
	tag string
}

func newPlainProvider(id uint8) (provider, publicKey, error) {
	tag := fmt.Sprintf("plain-replica-%d", id)
	return &plainProvider{tag: tag}, publicKey{plainTag: tag}, nil
}

func (p *plainProvider) sign(_ [32]byte) Signature {
	return Signature{Plain: p.tag}
}

func (p *plainProvider) verify(_ [32]byte, pub publicKey, sig Signature) error {
	if sig.Plain != pub.plainTag {
		return fmt.Errorf("xcrypto: plain signature mismatch")
	}
	return nil
}

func (p *plainProvider) verifyBatch(_ [][32]byte, _ []publicKey, _ []Signature) error {
	return ErrUnimplemented
}
