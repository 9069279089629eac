// Package packet implements the fixed-layout packet format that carries one
// dispatch tick of decoded controller data. All integers are little-endian.
//
//	header (32 bytes): magic u32, version u16, flags u16, dispatchTsUs u64,
//	                   droppedRaw u32, droppedNote u32, recordCount u32, reserved u32
//	record (16 bytes): tsUs u64, kind u8, channel u8, a u8, b u8, v16 i16, extra u16
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Magic      uint32 = 0x4D494452 // "MIDR"
	Version    uint16 = 1
	HeaderSize        = 32
	RecordSize        = 16
)

// Kind discriminates records.
type Kind uint8

const (
	KindControlChange   Kind = 1 // a = controller, b = value
	KindPitchBend       Kind = 2 // v16 = signed bend
	KindChannelPressure Kind = 3 // b = pressure
	KindPolyPressure    Kind = 4 // a = note, b = pressure
	KindProgramChange   Kind = 5 // b = program
	KindNote            Kind = 6 // a = note, b = velocity, extra bit 0 = on
)

// NoteOnFlag is the bit of Record.Extra that marks a note-on.
const NoteOnFlag uint16 = 0x01

var (
	ErrTooSmall           = errors.New("packet: buffer smaller than header")
	ErrBadMagic           = errors.New("packet: bad magic")
	ErrUnsupportedVersion = errors.New("packet: unsupported version")
)

// Header is the fixed packet prefix.
type Header struct {
	Magic        uint32
	Version      uint16
	Flags        uint16
	DispatchTsUs uint64
	DroppedRaw   uint32
	DroppedNote  uint32
	RecordCount  uint32
	Reserved     uint32
}

// Record is one reported change.
type Record struct {
	TsUs    uint64
	Kind    Kind
	Channel uint8
	A       uint8
	B       uint8
	V16     int16
	Extra   uint16
}

// NoteOn reports whether a note record is a note-on.
func (r Record) NoteOn() bool {
	return r.Extra&NoteOnFlag != 0
}

// Decode parses buf into a header and its records. The number of records is
// the smaller of the header's count and the number of whole records present.
// Decode does not retain buf.
func Decode(buf []byte) (Header, []Record, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Header{}, nil, err
	}

	n := RecordsAvailable(h, len(buf))
	records := make([]Record, n)
	for i := range records {
		records[i] = decodeRecord(buf[HeaderSize+i*RecordSize:])
	}
	return h, records, nil
}

// DecodeHeader validates and parses the fixed header. Errors wrap one of the
// package sentinels with the offending value.
func DecodeHeader(buf []byte) (Header, error) {
	h, err := ParseHeader(buf)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, ErrTooSmall):
		return Header{}, fmt.Errorf("%w: %d bytes", err, len(buf))
	case errors.Is(err, ErrBadMagic):
		return Header{}, fmt.Errorf("%w: 0x%08X", err, binary.LittleEndian.Uint32(buf[0:4]))
	default:
		return Header{}, fmt.Errorf("%w: %d", err, binary.LittleEndian.Uint16(buf[4:6]))
	}
}

// ParseHeader is DecodeHeader without the error detail: it returns the bare
// sentinels and does not allocate.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrTooSmall
	}
	h := Header{
		Magic:        binary.LittleEndian.Uint32(buf[0:4]),
		Version:      binary.LittleEndian.Uint16(buf[4:6]),
		Flags:        binary.LittleEndian.Uint16(buf[6:8]),
		DispatchTsUs: binary.LittleEndian.Uint64(buf[8:16]),
		DroppedRaw:   binary.LittleEndian.Uint32(buf[16:20]),
		DroppedNote:  binary.LittleEndian.Uint32(buf[20:24]),
		RecordCount:  binary.LittleEndian.Uint32(buf[24:28]),
		Reserved:     binary.LittleEndian.Uint32(buf[28:32]),
	}
	if h.Magic != Magic {
		return Header{}, ErrBadMagic
	}
	if h.Version != Version {
		return Header{}, ErrUnsupportedVersion
	}
	return h, nil
}

// RecordsAvailable returns min(h.RecordCount, whole records that fit in bufLen).
func RecordsAvailable(h Header, bufLen int) int {
	if bufLen <= HeaderSize {
		return 0
	}
	fit := (bufLen - HeaderSize) / RecordSize
	if uint64(h.RecordCount) < uint64(fit) {
		return int(h.RecordCount)
	}
	return fit
}

// DecodeRecord parses the i-th record of buf. The caller must have checked i
// against RecordsAvailable.
func DecodeRecord(buf []byte, i int) Record {
	return decodeRecord(buf[HeaderSize+i*RecordSize:])
}

func decodeRecord(b []byte) Record {
	return Record{
		TsUs:    binary.LittleEndian.Uint64(b[0:8]),
		Kind:    Kind(b[8]),
		Channel: b[9],
		A:       b[10],
		B:       b[11],
		V16:     int16(binary.LittleEndian.Uint16(b[12:14])),
		Extra:   binary.LittleEndian.Uint16(b[14:16]),
	}
}

// Encode builds a packet. Magic, Version and RecordCount are filled in from
// the constants and len(records); the remaining header fields are taken from h.
func Encode(h Header, records []Record) []byte {
	return AppendPacket(make([]byte, 0, HeaderSize+len(records)*RecordSize), h, records)
}

// AppendPacket appends the encoded packet to dst.
func AppendPacket(dst []byte, h Header, records []Record) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, Magic)
	dst = binary.LittleEndian.AppendUint16(dst, Version)
	dst = binary.LittleEndian.AppendUint16(dst, h.Flags)
	dst = binary.LittleEndian.AppendUint64(dst, h.DispatchTsUs)
	dst = binary.LittleEndian.AppendUint32(dst, h.DroppedRaw)
	dst = binary.LittleEndian.AppendUint32(dst, h.DroppedNote)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(records)))
	dst = binary.LittleEndian.AppendUint32(dst, 0)
	for _, r := range records {
		dst = binary.LittleEndian.AppendUint64(dst, r.TsUs)
		dst = append(dst, byte(r.Kind), r.Channel, r.A, r.B)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(r.V16))
		dst = binary.LittleEndian.AppendUint16(dst, r.Extra)
	}
	return dst
}
