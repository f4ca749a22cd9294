package xcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMessage struct {
	OpNum uint32
	Body  []byte
}

func (m testMessage) Hash(h DigestHasher) {
	h.WriteUint32(m.OpNum)
	h.WriteBytes(m.Body)
}

func TestPlainSignVerifyRoundTrip(t *testing.T) {
	c, err := NewHardcoded(4, 0, Plain)
	require.NoError(t, err)

	m := testMessage{OpNum: 1, Body: []byte("hello")}
	v := Sign(c, m)
	assert.NoError(t, Verify(c, 0, v))
}

func TestPlainVerifyRejectsWrongSigner(t *testing.T) {
	c0, err := NewHardcoded(4, 0, Plain)
	require.NoError(t, err)
	c1, err := NewHardcoded(4, 1, Plain)
	require.NoError(t, err)

	m := testMessage{OpNum: 1, Body: []byte("hello")}
	v := Sign(c1, m)
	assert.Error(t, Verify(c0, 0, v))
}

func TestSecp256k1SignVerifyRoundTrip(t *testing.T) {
	c, err := NewHardcoded(4, 2, Secp256k1)
	require.NoError(t, err)

	m := testMessage{OpNum: 7, Body: []byte("consensus")}
	v := Sign(c, m)
	assert.NoError(t, Verify(c, 2, v))
}

func TestSecp256k1BatchVerifyUnimplemented(t *testing.T) {
	c, err := NewHardcoded(4, 0, Secp256k1)
	require.NoError(t, err)
	m := testMessage{OpNum: 1}
	v := Sign(c, m)
	err = VerifyBatch(c, []uint8{0}, []Verifiable[testMessage]{v})
	assert.ErrorIs(t, err, ErrUnimplemented)
}

func TestSchnorrkelSignVerifyAndBatch(t *testing.T) {
	const n = 4
	cs := make([]*Crypto, n)
	for i := 0; i < n; i++ {
		c, err := NewHardcoded(n, uint8(i), Schnorrkel)
		require.NoError(t, err)
		cs[i] = c
	}

	batch := make([]Verifiable[testMessage], n)
	signers := make([]uint8, n)
	for i := 0; i < n; i++ {
		batch[i] = Sign(cs[i], testMessage{OpNum: uint32(i), Body: []byte("batch")})
		signers[i] = uint8(i)
	}

	assert.NoError(t, VerifyBatch(cs[0], signers, batch))
	for i := range batch {
		assert.NoError(t, Verify(cs[0], uint8(i), batch[i]))
	}
}

func TestHashBytesIsLittleEndianAndDeterministic(t *testing.T) {
	m := testMessage{OpNum: 0x01020304, Body: []byte{0xAA}}
	b1 := HashBytes(m)
	b2 := HashBytes(m)
	assert.Equal(t, b1, b2)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01, 0xAA}, b1)
}
