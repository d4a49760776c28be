package wire

import "encoding/binary"

const (
	// MaxUDPMessageSize is the default buffer size for inbound UDP
	// datagrams; messages are effectively truncated at this size.
	MaxUDPMessageSize = 1024
	// MaxStreamMessageSize is the largest packet this design will emit on
	// a stream transport before substituting a ServFail response.
	MaxStreamMessageSize = 65535
	// MinMessageSize is the shortest legal DNS message (the header alone).
	MinMessageSize = headerLen
)

// Packet is a complete DNS message: header, at most one question, and three
// resource-record sections.
type Packet struct {
	Header      Header
	Question    *Question // nil if absent
	Answers     []RR
	Authorities []RR
	Additions   []RR
}

// ParsePacket parses a complete DNS message starting at offset o. If the
// header claims a query and ancount is nonzero, parsing fails with
// FormatError, per the invariant in the data model.
func ParsePacket(packet []byte, o int) (Packet, error) {
	h, err := ParseHeader(packet[o:])
	if err != nil {
		return Packet{}, err
	}
	if h.IsQuery() && h.ANCount != 0 {
		return Packet{}, wrapTxErr(h.ID, NewFormatError("query packet carries answers"))
	}

	pos := o + headerLen
	p := Packet{Header: h}

	if h.QDCount == 1 {
		q, next, err := ParseQuestion(packet, pos)
		if err != nil {
			return Packet{}, wrapTxErr(h.ID, err.(*PacketError))
		}
		p.Question = &q
		pos = next
	}

	p.Answers, pos, err = parseRRs(packet, pos, int(h.ANCount), h.ID)
	if err != nil {
		return Packet{}, err
	}
	p.Authorities, pos, err = parseRRs(packet, pos, int(h.NSCount), h.ID)
	if err != nil {
		return Packet{}, err
	}
	p.Additions, pos, err = parseRRs(packet, pos, int(h.ARCount), h.ID)
	if err != nil {
		return Packet{}, err
	}
	return p, nil
}

func parseRRs(packet []byte, pos, count int, id uint16) ([]RR, int, error) {
	if count == 0 {
		return nil, pos, nil
	}
	rrs := make([]RR, 0, count)
	for i := 0; i < count; i++ {
		rr, next, err := ParseRR(packet, pos)
		if err != nil {
			return nil, 0, wrapTxErr(id, err.(*PacketError))
		}
		rrs = append(rrs, rr)
		pos = next
	}
	return rrs, pos, nil
}

func wrapTxErr(id uint16, err *PacketError) error {
	return NewTransactionError(id, err)
}

// Emit writes the complete wire encoding of p to buf. Header counts are
// derived from the section lengths, not taken from p.Header, so counts are
// always consistent with what is actually emitted.
func (p Packet) Emit(buf []byte) []byte {
	h := p.Header
	h.Z = 0
	if p.Question != nil {
		h.QDCount = 1
	} else {
		h.QDCount = 0
	}
	h.ANCount = uint16(len(p.Answers))
	h.NSCount = uint16(len(p.Authorities))
	h.ARCount = uint16(len(p.Additions))

	buf = h.Emit(buf)
	if p.Question != nil {
		buf = p.Question.Emit(buf)
	}
	for _, rr := range p.Answers {
		buf = rr.Emit(buf)
	}
	for _, rr := range p.Authorities {
		buf = rr.Emit(buf)
	}
	for _, rr := range p.Additions {
		buf = rr.Emit(buf)
	}
	return buf
}

// ParseStreamPrefix reads the 2-byte big-endian length prefix used to frame
// messages on TCP, TLS and QUIC streams. A zero-length prefix is reported as
// a ServFail PacketError, which higher layers treat as a clean EOF rather
// than malformed input; a prefix below MinMessageSize is a FormatError.
func ParseStreamPrefix(b []byte) (int, error) {
	if len(b) < 2 {
		return 0, NewFormatError("truncated length prefix")
	}
	n := int(binary.BigEndian.Uint16(b))
	if n == 0 {
		return 0, NewServFail()
	}
	if n < MinMessageSize {
		return 0, NewFormatError("stream message shorter than header (%d bytes)", n)
	}
	return n, nil
}

// EmitStreamPrefix appends the 2-byte length prefix for a payload of length
// n to buf.
func EmitStreamPrefix(buf []byte, n int) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(n))
	return append(buf, tmp[:]...)
}

// NewErrorResponse builds a minimal response packet carrying rcode and no
// records, echoing id and, when given, the original question. Used by
// transports to convert a TransactionError into a wire response per the
// propagation policy in the error handling design.
func NewErrorResponse(id uint16, rcode RCode, q *Question) Packet {
	return Packet{
		Header: Header{
			ID:     id,
			QR:     true,
			RA:     true,
			RCode:  rcode,
		},
		Question: q,
	}
}
