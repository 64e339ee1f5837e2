package bitreader

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadBitsAcrossByteBoundary(t *testing.T) {
	r := New([]byte{0b10110010, 0b11110000})

	v, err := r.ReadBits(4)
	require.NoError(t, err)
	require.EqualValues(t, 0b1011, v)

	v, err = r.ReadBits(8)
	require.NoError(t, err)
	require.EqualValues(t, 0b00101111, v)

	v, err = r.ReadBits(4)
	require.NoError(t, err)
	require.EqualValues(t, 0b0000, v)
}

func TestReadBitsExhausted(t *testing.T) {
	r := New([]byte{0xFF})
	_, err := r.ReadBits(4)
	require.NoError(t, err)
	_, err = r.ReadBits(8)
	require.Error(t, err)
}

func TestReadBool(t *testing.T) {
	r := New([]byte{0b10000000})
	v, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, v)

	v, err = r.ReadBool()
	require.NoError(t, err)
	require.False(t, v)
}

func TestReadUE(t *testing.T) {
	cases := []struct {
		bits []byte
		want uint32
	}{
		{[]byte{0b1_0000000}, 0},
		{[]byte{0b010_00000}, 1},
		{[]byte{0b011_00000}, 2},
		{[]byte{0b00100_000}, 3},
		{[]byte{0b00101_000}, 4},
	}
	for _, c := range cases {
		r := New(c.bits)
		v, err := r.ReadUE()
		require.NoError(t, err)
		require.Equal(t, c.want, v)
	}
}

func TestReadSE(t *testing.T) {
	cases := []struct {
		bits []byte
		want int32
	}{
		{[]byte{0b1_0000000}, 0},
		{[]byte{0b010_00000}, 1},
		{[]byte{0b011_00000}, -1},
		{[]byte{0b00100_000}, 2},
		{[]byte{0b00101_000}, -2},
	}
	for _, c := range cases {
		r := New(c.bits)
		v, err := r.ReadSE()
		require.NoError(t, err)
		require.Equal(t, c.want, v)
	}
}

func TestByteAlignAndReadBytesAligned(t *testing.T) {
	r := New([]byte{0b10100000, 0xAB, 0xCD})
	_, err := r.ReadBits(3)
	require.NoError(t, err)

	r.ByteAlign()
	b, err := r.ReadBytesAligned(2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAB, 0xCD}, b)
}

func TestReadBytesAlignedRequiresAlignment(t *testing.T) {
	r := New([]byte{0xFF, 0xFF})
	_, err := r.ReadBits(3)
	require.NoError(t, err)
	_, err = r.ReadBytesAligned(1)
	require.Error(t, err)
}

func TestRemoveAndInsertEmulationPrevention(t *testing.T) {
	rbsp := []byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x02}
	stripped := RemoveEmulationPrevention(rbsp)
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x02}, stripped)

	reinserted := InsertEmulationPrevention(stripped)
	require.Equal(t, rbsp, reinserted)
}
