package oer_test

import (
	"math/rand"
	"testing"

	"github.com/ilpfi/connectord/oer"
	"github.com/stretchr/testify/require"
)

// TestVarUIntSingleByte covers spec scenario 1: a single byte with the
// high bit clear decodes to its own value.
func TestVarUIntSingleByte(t *testing.T) {
	value, n, err := oer.ReadVarUInt([]byte{0x42}, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(66), value)
	require.Equal(t, 1, n)

	require.Equal(t, []byte{0x42}, oer.WriteVarUInt(nil, 66))
}

// TestVarUIntMultiByte covers spec scenario 2.
func TestVarUIntMultiByte(t *testing.T) {
	value, n, err := oer.ReadVarUInt([]byte{0x82, 0x01, 0x00}, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(256), value)
	require.Equal(t, 3, n)

	require.Equal(t, []byte{0x82, 0x01, 0x00}, oer.WriteVarUInt(nil, 256))
}

// TestVarUIntMaxUint64 covers spec scenario 3.
func TestVarUIntMaxUint64(t *testing.T) {
	want := []byte{0x88, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	require.Equal(t, want, oer.WriteVarUInt(nil, ^uint64(0)))

	value, n, err := oer.ReadVarUInt(want, 0)
	require.NoError(t, err)
	require.Equal(t, ^uint64(0), value)
	require.Equal(t, 9, n)
}

func TestVarUIntUnderflow(t *testing.T) {
	_, _, err := oer.ReadVarUInt(nil, 0)
	require.True(t, oer.IsUnderflow(err))

	// b0 claims 4 trailing bytes but only 2 remain.
	_, _, err = oer.ReadVarUInt([]byte{0x84, 0x01, 0x02}, 0)
	require.True(t, oer.IsUnderflow(err))
}

// TestVarUIntRoundTrip is the quantified round-trip property from spec.md
// §8 for VarUInt: decode(encode(v)) == v for a broad sample of the uint64
// range, and the encoder always chooses the minimal length.
func TestVarUIntRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	samples := []uint64{0, 1, 126, 127, 128, 255, 256, 65535, 65536}
	for i := 0; i < 500; i++ {
		samples = append(samples, r.Uint64())
	}

	for _, v := range samples {
		encoded := oer.WriteVarUInt(nil, v)
		got, n, err := oer.ReadVarUInt(encoded, 0)
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, len(encoded), n)

		if v >= 0x80 {
			declaredLen := int(encoded[0] &^ 0x80)
			require.Equal(t, len(encoded)-1, declaredLen)
			require.NotEqual(t, byte(0), encoded[1],
				"encoding should not carry a leading zero byte")
		}
	}
}

// TestVarUIntDecoderAcceptsNonMinimalLength ensures the decoder is
// permissive about length even though the encoder is always minimal: a
// value fitting in one byte but encoded with a longer prefix must still
// decode correctly.
func TestVarUIntDecoderAcceptsNonMinimalLength(t *testing.T) {
	nonMinimal := []byte{0x82, 0x00, 0x42}
	value, n, err := oer.ReadVarUInt(nonMinimal, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0x42), value)
	require.Equal(t, 3, n)
}

func TestVarOctetStringRoundTrip(t *testing.T) {
	payload := []byte("hello ilp")
	encoded := oer.WriteVarOctetString(nil, payload)

	got, n, err := oer.ReadVarOctetString(encoded, 0)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.Equal(t, len(encoded), n)
}

// TestVarOctetStringZeroCopy is the zero-copy invariant from spec.md §8:
// mutating the source buffer after a read must be observable in the
// returned view, because the view aliases the source rather than copying
// it.
func TestVarOctetStringZeroCopy(t *testing.T) {
	buf := append([]byte{0x03}, []byte("abc")...)

	view, _, err := oer.ReadVarOctetString(buf, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), view)

	buf[1] = 'X'
	require.Equal(t, byte('X'), view[0],
		"view must alias the source buffer, not a copy")
}

func TestVarOctetStringUnderflow(t *testing.T) {
	// Declares 5 bytes of payload but only 2 are present.
	_, _, err := oer.ReadVarOctetString([]byte{0x05, 0x01, 0x02}, 0)
	require.True(t, oer.IsUnderflow(err))
}

func TestFixedOctetStringZeroCopy(t *testing.T) {
	buf := []byte{0xAA, 0xBB, 0xCC, 0xDD}

	view, n, err := oer.ReadOctetString(buf, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{0xBB, 0xCC}, view)

	buf[1] = 0x00
	require.Equal(t, byte(0x00), view[0])
}

func TestFixedOctetStringUnderflow(t *testing.T) {
	_, _, err := oer.ReadOctetString([]byte{0x01, 0x02}, 0, 32)
	require.True(t, oer.IsUnderflow(err))
}

func TestFixedWidthIntegers(t *testing.T) {
	t.Run("uint8", func(t *testing.T) {
		encoded := oer.WriteUInt8(nil, 0xAB)
		v, n, err := oer.ReadUInt8(encoded, 0)
		require.NoError(t, err)
		require.Equal(t, uint8(0xAB), v)
		require.Equal(t, 1, n)
	})

	t.Run("uint16", func(t *testing.T) {
		encoded := oer.WriteUInt16(nil, 0x1234)
		require.Equal(t, []byte{0x12, 0x34}, encoded)
		v, _, err := oer.ReadUInt16(encoded, 0)
		require.NoError(t, err)
		require.Equal(t, uint16(0x1234), v)
	})

	t.Run("uint32", func(t *testing.T) {
		encoded := oer.WriteUInt32(nil, 0x11223344)
		v, _, err := oer.ReadUInt32(encoded, 0)
		require.NoError(t, err)
		require.Equal(t, uint32(0x11223344), v)
	})

	t.Run("uint64", func(t *testing.T) {
		encoded := oer.WriteUInt64(nil, 0x1122334455667788)
		v, _, err := oer.ReadUInt64(encoded, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(0x1122334455667788), v)
	})

	t.Run("underflow", func(t *testing.T) {
		_, _, err := oer.ReadUInt64([]byte{0x01, 0x02}, 0)
		require.True(t, oer.IsUnderflow(err))
	})
}

func TestStringRoundTrip(t *testing.T) {
	encoded := oer.WriteString(nil, "g.connector.peer-7")
	got, n, err := oer.ReadString(encoded, 0)
	require.NoError(t, err)
	require.Equal(t, "g.connector.peer-7", got)
	require.Equal(t, len(encoded), n)
}

func TestPacketRoundTrip(t *testing.T) {
	pkt := oer.Packet{
		Type: oer.PacketTypePrepare,
		Data: []byte{0x01, 0x02, 0x03},
	}

	encoded := oer.WritePacket(nil, pkt)
	got, n, err := oer.ReadPacket(encoded, 0)
	require.NoError(t, err)
	require.Equal(t, pkt.Type, got.Type)
	require.Equal(t, pkt.Data, got.Data)
	require.Equal(t, len(encoded), n)
}
