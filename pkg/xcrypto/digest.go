package xcrypto

import "encoding/binary"

// DigestHasher receives a message's fields in declaration order. Every
// integer write is little-endian regardless of host byte order, so a
// digest computed on one machine is reproducible on any other — this
// matters because replicas and the search engine both need bit-identical
// digests from struct values built independently.
type DigestHasher interface {
	WriteBytes(b []byte)
	WriteUint8(v uint8)
	WriteUint16(v uint16)
	WriteUint32(v uint32)
	WriteUint64(v uint64)
}

// DigestHash is implemented by every message type that can be signed or
// that participates in a content digest (PrePrepare.Digest, request
// batching, etc). Hash must visit fields in a fixed declared order; Go has
// no structural derive for this, so each implementation is hand-written,
// mirroring the explicit field walk used throughout the corpus this was
// modeled on.
type DigestHash interface {
	Hash(h DigestHasher)
}

type binHasher struct {
	buf []byte
}

func newBinHasher() *binHasher { return &binHasher{} }

func (h *binHasher) WriteBytes(b []byte) { h.buf = append(h.buf, b...) }

func (h *binHasher) WriteUint8(v uint8) { h.buf = append(h.buf, v) }

func (h *binHasher) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	h.buf = append(h.buf, b[:]...)
}

func (h *binHasher) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	h.buf = append(h.buf, b[:]...)
}

func (h *binHasher) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.buf = append(h.buf, b[:]...)
}

// HashBytes runs a DigestHash's field walk and returns the raw
// little-endian byte stream it produced, before any cryptographic hash
// function is applied to it.
func HashBytes(m DigestHash) []byte {
	h := newBinHasher()
	m.Hash(h)
	return h.buf
}
