package wire

import "encoding/binary"

// Question is a (Name, RRType, RRClass) triple: both a query payload and the
// cache's fingerprint/key.
type Question struct {
	Name  Name
	Type  RRType
	Class RRClass
}

// ParseQuestion parses a Question starting at off and returns it along with
// the offset immediately following it.
func ParseQuestion(packet []byte, off int) (Question, int, error) {
	name, nameEnd, err := ParseName(packet, off)
	if err != nil {
		return Question{}, 0, err
	}
	if nameEnd+4 > len(packet) {
		return Question{}, 0, NewFormatError("truncated question")
	}
	q := Question{
		Name:  name,
		Type:  RRType(binary.BigEndian.Uint16(packet[nameEnd : nameEnd+2])),
		Class: RRClass(binary.BigEndian.Uint16(packet[nameEnd+2 : nameEnd+4])),
	}
	return q, nameEnd + 4, nil
}

// Emit appends q's uncompressed wire encoding to buf.
func (q Question) Emit(buf []byte) []byte {
	buf = EmitUncompressed(buf, q.Name)
	var tmp [4]byte
	binary.BigEndian.PutUint16(tmp[0:2], uint16(q.Type))
	binary.BigEndian.PutUint16(tmp[2:4], uint16(q.Class))
	return append(buf, tmp[:]...)
}
