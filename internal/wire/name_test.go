package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNameRoundTrip(t *testing.T) {
	n, err := NameFromString("example.com.")
	require.NoError(t, err)
	require.Equal(t, "example.com.", n.String())

	buf := EmitUncompressed(nil, n)
	got, end, err := ParseName(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), end)
	require.True(t, n.Equal(got))
}

func TestNameLabelTooLong(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	_, err := NameFromString(string(long) + ".com.")
	require.Error(t, err)
}

func TestNameExceedsMaxLength(t *testing.T) {
	// 5 labels of 63 bytes each plus separators well exceeds 253 bytes.
	label := make([]byte, 63)
	for i := range label {
		label[i] = 'a'
	}
	var packet []byte
	for i := 0; i < 5; i++ {
		packet = append(packet, byte(len(label)))
		packet = append(packet, label...)
	}
	packet = append(packet, 0x00)

	_, _, err := ParseName(packet, 0)
	require.Error(t, err)
	pe, ok := err.(*PacketError)
	require.True(t, ok)
	require.Equal(t, ErrFormat, pe.Kind)
}

func TestNamePointerChainTooDeep(t *testing.T) {
	// Six pointers chained together: offsets 0,2,4,6,8,10 each pointing at
	// the next, with the terminal root label at offset 12.
	var packet []byte
	for i := 0; i < 6; i++ {
		target := uint16((i + 1) * 2)
		packet = append(packet, 0xC0|byte(target>>8), byte(target))
	}
	packet = append(packet, 0x00)

	_, _, err := ParseName(packet, 0)
	require.Error(t, err)
}

func TestNamePointerOutOfRange(t *testing.T) {
	packet := []byte{0xC0, 0xFF}
	_, _, err := ParseName(packet, 0)
	require.Error(t, err)
}

func TestNameCompressionScenario(t *testing.T) {
	// "example.com." placed at offset 12 (as if following a 12-byte
	// header), followed by a second name "example" + pointer to offset 12.
	packet := make([]byte, 12)
	base, err := NameFromString("example.com.")
	require.NoError(t, err)
	packet = EmitUncompressed(packet, base)

	second := len(packet)
	packet = append(packet, byte(len("example")))
	packet = append(packet, []byte("example")...)
	packet = append(packet, 0xC0, 0x0C) // pointer to offset 12

	n, end, err := ParseName(packet, second)
	require.NoError(t, err)
	require.Equal(t, "example.example.com.", n.String())
	require.Equal(t, len(packet), end)
}

func TestIsSubdomainOf(t *testing.T) {
	parent, _ := NameFromString("example.com.")
	child, _ := NameFromString("www.example.com.")

	require.True(t, child.IsSubdomainOf(parent))
	require.True(t, parent.IsSubdomainOf(parent))
	require.False(t, parent.IsProperSubdomainOf(parent))
	require.True(t, child.IsProperSubdomainOf(parent))
}
