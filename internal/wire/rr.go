package wire

import (
	"encoding/binary"
	"time"
)

// RR is one resource record: (Name, RRType, RRClass, TTL, RRData). Per the
// invariant in the data model, RR.Type always equals Data.Type().
type RR struct {
	Name  Name
	Class RRClass
	TTL   uint32 // seconds
	Data  RRData
}

// Type returns the record's type, taken from its rdata.
func (r RR) Type() RRType { return r.Data.Type() }

// TTLDuration exposes TTL as a time.Duration.
func (r RR) TTLDuration() time.Duration { return time.Duration(r.TTL) * time.Second }

// WithTTL returns a copy of r with its TTL rewritten, used to serve cached
// records with a freshly computed residual TTL.
func (r RR) WithTTL(d time.Duration) RR {
	r2 := r
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	r2.TTL = uint32(secs)
	return r2
}

// ParseRR parses one resource record starting at off: Name, type, class,
// TTL, then the type-dispatched rdata. Returns the RR and the offset
// immediately after it.
func ParseRR(packet []byte, off int) (RR, int, error) {
	name, nameEnd, err := ParseName(packet, off)
	if err != nil {
		return RR{}, 0, err
	}
	if nameEnd+10 > len(packet) {
		return RR{}, 0, NewFormatError("truncated RR header")
	}
	rrtype := RRType(binary.BigEndian.Uint16(packet[nameEnd : nameEnd+2]))
	class := RRClass(binary.BigEndian.Uint16(packet[nameEnd+2 : nameEnd+4]))
	ttl := binary.BigEndian.Uint32(packet[nameEnd+4 : nameEnd+8])
	rdataBegin := nameEnd + 8 // offset of RDLENGTH, as ParseRData expects

	data, end, err := ParseRData(packet, rrtype, rdataBegin)
	if err != nil {
		return RR{}, 0, err
	}
	return RR{Name: name, Class: class, TTL: ttl, Data: data}, end, nil
}

// Emit appends r's wire encoding to buf.
func (r RR) Emit(buf []byte) []byte {
	buf = EmitUncompressed(buf, r.Name)
	var tmp [8]byte
	binary.BigEndian.PutUint16(tmp[0:2], uint16(r.Type()))
	binary.BigEndian.PutUint16(tmp[2:4], uint16(r.Class))
	binary.BigEndian.PutUint32(tmp[4:8], r.TTL)
	buf = append(buf, tmp[:]...)
	return EmitRData(buf, r.Data)
}
