package endian

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNative(t *testing.T) {
	engine := Native()
	require.NotNil(t, engine)

	// The probe and the engine must agree on the representation of a known
	// value.
	var buf [2]byte
	engine.PutUint16(buf[:], 0x0100)
	if IsLittleEndian() {
		require.Equal(t, [2]byte{0x00, 0x01}, buf)
		require.Equal(t, EndianEngine(binary.LittleEndian), engine)
	} else {
		require.Equal(t, [2]byte{0x01, 0x00}, buf)
		require.Equal(t, EndianEngine(binary.BigEndian), engine)
	}
}

func TestNative_RoundTrip(t *testing.T) {
	engine := Native()

	buf := make([]byte, 8)
	engine.PutUint64(buf, 0x0123456789ABCDEF)
	require.Equal(t, uint64(0x0123456789ABCDEF), engine.Uint64(buf))

	appended := engine.AppendUint32(nil, 0xCAFEBABE)
	require.Len(t, appended, 4)
	require.Equal(t, uint32(0xCAFEBABE), engine.Uint32(appended))
}
