package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketQueryRoundTrip(t *testing.T) {
	name, err := NameFromString("example.com.")
	require.NoError(t, err)

	q := Packet{
		Header:   Header{ID: 0, QR: false, Opcode: OpQuery, RD: true, QDCount: 1},
		Question: &Question{Name: name, Type: TypeA, Class: ClassInternet},
	}
	buf := q.Emit(nil)

	parsed, err := ParsePacket(buf, 0)
	require.NoError(t, err)
	require.NotNil(t, parsed.Question)
	require.True(t, parsed.Question.Name.Equal(name))
	require.Equal(t, TypeA, parsed.Question.Type)
	require.Equal(t, ClassInternet, parsed.Question.Class)
}

func TestPacketARecordResponseRoundTrip(t *testing.T) {
	name, _ := NameFromString("example.com.")
	resp := Packet{
		Header:   Header{ID: 0, QR: true, RA: true, RCode: RCodeNoError},
		Question: &Question{Name: name, Type: TypeA, Class: ClassInternet},
		Answers: []RR{
			{Name: name, Class: ClassInternet, TTL: 300, Data: RDA{Addr: [4]byte{19, 19, 81, 0}}},
		},
	}
	buf := resp.Emit(nil)

	parsed, err := ParsePacket(buf, 0)
	require.NoError(t, err)
	require.Len(t, parsed.Answers, 1)
	a, ok := parsed.Answers[0].Data.(RDA)
	require.True(t, ok)
	require.Equal(t, [4]byte{19, 19, 81, 0}, a.Addr)
	require.EqualValues(t, 300, parsed.Answers[0].TTL)
}

func TestPacketQueryWithAnswersIsFormatError(t *testing.T) {
	name, _ := NameFromString("example.com.")
	bad := Packet{
		Header:   Header{ID: 5, QR: false, QDCount: 1},
		Question: &Question{Name: name, Type: TypeA, Class: ClassInternet},
		Answers:  []RR{{Name: name, Class: ClassInternet, TTL: 1, Data: RDA{}}},
	}
	// Packet.Emit always derives counts from the actual sections, so a
	// genuinely malformed "query with answers" wire form (as a hostile
	// peer might send) has to be built by hand instead.
	raw := make([]byte, 12)
	h := Header{ID: 5, QR: false, QDCount: 1, ANCount: 1}
	raw = h.Emit(raw[:0])
	raw = bad.Question.Emit(raw)
	raw = bad.Answers[0].Emit(raw)

	_, err := ParsePacket(raw, 0)
	require.Error(t, err)
	txErr, ok := err.(*TransactionError)
	require.True(t, ok)
	require.Equal(t, ErrFormat, txErr.Err.Kind)
}

func TestStreamPrefixBoundaries(t *testing.T) {
	_, err := ParseStreamPrefix([]byte{0x00, 0x00})
	require.Error(t, err)
	require.Equal(t, ErrServFail, err.(*PacketError).Kind)

	_, err = ParseStreamPrefix([]byte{0x00, 0x05})
	require.Error(t, err)
	require.Equal(t, ErrFormat, err.(*PacketError).Kind)

	n, err := ParseStreamPrefix([]byte{0x00, 0x0C})
	require.NoError(t, err)
	require.Equal(t, 12, n)
}

func TestRDataRoundTripAllVariants(t *testing.T) {
	name, _ := NameFromString("ns1.example.com.")
	cases := []RRData{
		RDA{Addr: [4]byte{1, 2, 3, 4}},
		RDAAAA{Addr: [16]byte{0: 0x20, 1: 0x01}},
		RDName{RType: TypeCNAME, Name: name},
		RDName{RType: TypeNS, Name: name},
		RDName{RType: TypePTR, Name: name},
		RDName{RType: TypeMB, Name: name},
		RDName{RType: TypeMG, Name: name},
		RDName{RType: TypeMR, Name: name},
		RDMX{Preference: 10, Exchange: name},
		RDSOA{MName: name, RName: name, Serial: 1, Refresh: 2, Retry: 3, Expire: 4, Minimum: 5},
		RDHINFO{CPU: []byte("x86"), OS: []byte("linux")},
		RDMINFO{RMailbox: name, EMailbox: name},
		RDTXT{Segments: [][]byte{[]byte("a"), []byte("bc")}},
		RDWKS{Addr: [4]byte{1, 1, 1, 1}, Protocol: 6, Bitmap: []byte{0xFF}},
		RDNULL{Raw: []byte{1, 2, 3}},
		RDUnknown{RType: RRType(999), Raw: []byte{9, 9}},
	}

	for _, rd := range cases {
		buf := make([]byte, 0, 64)
		buf = EmitRData(buf, rd)
		parsed, end, err := ParseRData(buf, rd.Type(), 0)
		require.NoError(t, err, "type %v", rd.Type())
		require.Equal(t, len(buf), end, "type %v", rd.Type())
		require.Equal(t, rd, parsed, "type %v", rd.Type())
	}
}
