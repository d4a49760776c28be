package wire

import (
	"encoding/binary"
	"net"
)

// RRData is a tagged union over the known rdata variants plus RDUnknown.
// Each variant owns its parsed payload; dispatch is by the Type() tag, never
// by an open subclass hierarchy.
type RRData interface {
	// Type reports the RRType this variant's wire contract belongs to.
	Type() RRType
	// Cost is the eviction weight assigned by the cache's cost table.
	Cost() int
	// payload appends this variant's RDATA bytes (without the RDLENGTH
	// prefix) to buf and returns the result.
	payload(buf []byte) []byte
}

// EmitRData writes RDLENGTH followed by rd's payload to buf.
func EmitRData(buf []byte, rd RRData) []byte {
	payload := rd.payload(nil)
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(len(payload)))
	buf = append(buf, tmp[:]...)
	return append(buf, payload...)
}

// ParseRData dispatches to the per-type rdata parser. rdataBegin is the
// offset of the 2-byte RDLENGTH field; returns the parsed RRData and the
// offset immediately after the RDATA.
func ParseRData(packet []byte, rrtype RRType, rdataBegin int) (RRData, int, error) {
	if rdataBegin+2 > len(packet) {
		return nil, 0, NewFormatError("truncated rdlength")
	}
	rdlength := int(binary.BigEndian.Uint16(packet[rdataBegin : rdataBegin+2]))
	start := rdataBegin + 2
	end := start + rdlength
	if end > len(packet) {
		return nil, 0, NewFormatError("rdata exceeds packet bounds")
	}

	switch rrtype {
	case TypeA:
		if rdlength != 4 {
			return nil, 0, NewFormatError("A rdlength must be 4, got %d", rdlength)
		}
		var ip [4]byte
		copy(ip[:], packet[start:end])
		return RDA{Addr: ip}, end, nil

	case TypeAAAA:
		if rdlength != 16 {
			return nil, 0, NewFormatError("AAAA rdlength must be 16, got %d", rdlength)
		}
		var ip [16]byte
		copy(ip[:], packet[start:end])
		return RDAAAA{Addr: ip}, end, nil

	case TypeCNAME, TypeNS, TypePTR, TypeMB, TypeMG, TypeMR:
		name, nameEnd, err := ParseName(packet, start)
		if err != nil {
			return nil, 0, err
		}
		if nameEnd != end {
			return nil, 0, NewFormatError("%s rdata name does not end at rdlength boundary", rrtype)
		}
		return RDName{RType: rrtype, Name: name}, end, nil

	case TypeMX:
		if rdlength < 3 {
			return nil, 0, NewFormatError("MX rdlength must be >= 3, got %d", rdlength)
		}
		pref := binary.BigEndian.Uint16(packet[start : start+2])
		name, nameEnd, err := ParseName(packet, start+2)
		if err != nil {
			return nil, 0, err
		}
		if nameEnd != end {
			return nil, 0, NewFormatError("MX rdata name does not end at rdlength boundary")
		}
		return RDMX{Preference: pref, Exchange: name}, end, nil

	case TypeSOA:
		mname, p1, err := ParseName(packet, start)
		if err != nil {
			return nil, 0, err
		}
		rname, p2, err := ParseName(packet, p1)
		if err != nil {
			return nil, 0, err
		}
		if p2+20 != end {
			return nil, 0, NewFormatError("SOA rdata length mismatch")
		}
		return RDSOA{
			MName:   mname,
			RName:   rname,
			Serial:  binary.BigEndian.Uint32(packet[p2 : p2+4]),
			Refresh: binary.BigEndian.Uint32(packet[p2+4 : p2+8]),
			Retry:   binary.BigEndian.Uint32(packet[p2+8 : p2+12]),
			Expire:  binary.BigEndian.Uint32(packet[p2+12 : p2+16]),
			Minimum: binary.BigEndian.Uint32(packet[p2+16 : p2+20]),
		}, end, nil

	case TypeHINFO:
		cpu, p1, err := parseCharString(packet, start, end)
		if err != nil {
			return nil, 0, err
		}
		osStr, p2, err := parseCharString(packet, p1, end)
		if err != nil {
			return nil, 0, err
		}
		if p2 != end {
			return nil, 0, NewFormatError("HINFO rdata length mismatch")
		}
		return RDHINFO{CPU: cpu, OS: osStr}, end, nil

	case TypeMINFO:
		rmailbx, p1, err := ParseName(packet, start)
		if err != nil {
			return nil, 0, err
		}
		emailbx, p2, err := ParseName(packet, p1)
		if err != nil {
			return nil, 0, err
		}
		if p2 != end {
			return nil, 0, NewFormatError("MINFO rdata length mismatch")
		}
		return RDMINFO{RMailbox: rmailbx, EMailbox: emailbx}, end, nil

	case TypeTXT:
		var segs [][]byte
		pos := start
		for pos < end {
			var seg []byte
			var err error
			seg, pos, err = parseCharString(packet, pos, end)
			if err != nil {
				return nil, 0, err
			}
			segs = append(segs, seg)
		}
		if pos != end {
			return nil, 0, NewFormatError("TXT rdata length mismatch")
		}
		return RDTXT{Segments: segs}, end, nil

	case TypeWKS:
		if rdlength < 5 {
			return nil, 0, NewFormatError("WKS rdlength must be >= 5, got %d", rdlength)
		}
		bitmap := make([]byte, rdlength-5)
		copy(bitmap, packet[start+5:end])
		var addr [4]byte
		copy(addr[:], packet[start:start+4])
		return RDWKS{Addr: addr, Protocol: packet[start+4], Bitmap: bitmap}, end, nil

	case TypeNULL:
		raw := make([]byte, rdlength)
		copy(raw, packet[start:end])
		return RDNULL{Raw: raw}, end, nil

	default:
		raw := make([]byte, rdlength)
		copy(raw, packet[start:end])
		return RDUnknown{RType: rrtype, Raw: raw}, end, nil
	}
}

// parseCharString reads one length-prefixed byte string (a DNS
// "character-string": one length byte then that many bytes), bounded by end.
func parseCharString(packet []byte, pos, end int) ([]byte, int, error) {
	if pos >= end {
		return nil, 0, NewFormatError("truncated character-string")
	}
	l := int(packet[pos])
	if pos+1+l > end {
		return nil, 0, NewFormatError("character-string exceeds rdata bounds")
	}
	s := make([]byte, l)
	copy(s, packet[pos+1:pos+1+l])
	return s, pos + 1 + l, nil
}

func emitCharString(buf []byte, s []byte) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

// RDA is the A record rdata: one IPv4 address.
type RDA struct{ Addr [4]byte }

func (RDA) Type() RRType { return TypeA }
func (RDA) Cost() int    { return 5 }
func (r RDA) payload(buf []byte) []byte {
	return append(buf, r.Addr[:]...)
}
func (r RDA) IP() net.IP { return net.IP(r.Addr[:]) }

// RDAAAA is the AAAA record rdata: one IPv6 address.
type RDAAAA struct{ Addr [16]byte }

func (RDAAAA) Type() RRType { return TypeAAAA }
func (RDAAAA) Cost() int    { return 1 }
func (r RDAAAA) payload(buf []byte) []byte {
	return append(buf, r.Addr[:]...)
}
func (r RDAAAA) IP() net.IP { return net.IP(r.Addr[:]) }

// RDName is the shared rdata shape for the name-only variants: CNAME, NS,
// PTR, MB, MG, MR. RType records which one this instance is.
type RDName struct {
	RType RRType
	Name  Name
}

func (r RDName) Type() RRType { return r.RType }
func (r RDName) Cost() int {
	switch r.RType {
	case TypeNS:
		return 2
	case TypeCNAME:
		return 1
	default:
		return 0
	}
}
func (r RDName) payload(buf []byte) []byte { return EmitUncompressed(buf, r.Name) }

// RDMX is the MX record rdata.
type RDMX struct {
	Preference uint16
	Exchange   Name
}

func (RDMX) Type() RRType { return TypeMX }
func (RDMX) Cost() int    { return 1 }
func (r RDMX) payload(buf []byte) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], r.Preference)
	buf = append(buf, tmp[:]...)
	return EmitUncompressed(buf, r.Exchange)
}

// RDSOA is the SOA record rdata.
type RDSOA struct {
	MName, RName                                  Name
	Serial, Refresh, Retry, Expire, Minimum uint32
}

func (RDSOA) Type() RRType { return TypeSOA }
func (RDSOA) Cost() int    { return 5 }
func (r RDSOA) payload(buf []byte) []byte {
	buf = EmitUncompressed(buf, r.MName)
	buf = EmitUncompressed(buf, r.RName)
	var tmp [20]byte
	binary.BigEndian.PutUint32(tmp[0:4], r.Serial)
	binary.BigEndian.PutUint32(tmp[4:8], r.Refresh)
	binary.BigEndian.PutUint32(tmp[8:12], r.Retry)
	binary.BigEndian.PutUint32(tmp[12:16], r.Expire)
	binary.BigEndian.PutUint32(tmp[16:20], r.Minimum)
	return append(buf, tmp[:]...)
}

// RDHINFO is the HINFO record rdata: CPU and OS character-strings.
type RDHINFO struct{ CPU, OS []byte }

func (RDHINFO) Type() RRType { return TypeHINFO }
func (RDHINFO) Cost() int    { return 0 }
func (r RDHINFO) payload(buf []byte) []byte {
	buf = emitCharString(buf, r.CPU)
	return emitCharString(buf, r.OS)
}

// RDMINFO is the MINFO record rdata: responsible-mailbox and error-mailbox
// names.
type RDMINFO struct{ RMailbox, EMailbox Name }

func (RDMINFO) Type() RRType { return TypeMINFO }
func (RDMINFO) Cost() int    { return 0 }
func (r RDMINFO) payload(buf []byte) []byte {
	buf = EmitUncompressed(buf, r.RMailbox)
	return EmitUncompressed(buf, r.EMailbox)
}

// RDTXT is the TXT record rdata: a sequence of character-strings.
type RDTXT struct{ Segments [][]byte }

func (RDTXT) Type() RRType { return TypeTXT }
func (RDTXT) Cost() int    { return 0 }
func (r RDTXT) payload(buf []byte) []byte {
	for _, s := range r.Segments {
		buf = emitCharString(buf, s)
	}
	return buf
}

// RDWKS is the WKS record rdata: an address, protocol number, and service
// bitmap.
type RDWKS struct {
	Addr     [4]byte
	Protocol byte
	Bitmap   []byte
}

func (RDWKS) Type() RRType { return TypeWKS }
func (RDWKS) Cost() int    { return 0 }
func (r RDWKS) payload(buf []byte) []byte {
	buf = append(buf, r.Addr[:]...)
	buf = append(buf, r.Protocol)
	return append(buf, r.Bitmap...)
}

// RDNULL is the NULL record rdata: an arbitrary byte string.
type RDNULL struct{ Raw []byte }

func (RDNULL) Type() RRType { return TypeNULL }
func (RDNULL) Cost() int    { return 0 }
func (r RDNULL) payload(buf []byte) []byte { return append(buf, r.Raw...) }

// RDUnknown is the open-world fallback: RDATA captured verbatim, tagged with
// its type code.
type RDUnknown struct {
	RType RRType
	Raw   []byte
}

func (r RDUnknown) Type() RRType { return r.RType }
func (RDUnknown) Cost() int      { return 0 }
func (r RDUnknown) payload(buf []byte) []byte { return append(buf, r.Raw...) }
