// Package ingest receives timestamped sensor samples as binary UDP datagrams
// and feeds them to a filter.
//
// A datagram carries one or more records, each laid out little-endian as
//
//	magic 'N' 'V' | version | kind | t (int64 ns) | body | crc16
//
// where the body is lon, lat, alt (float64) and horizontal error (float32)
// for a GPS fix, or three float32 axes for the other sensors. The CRC is
// CRC-16/CCITT over everything before it.
package ingest

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/westphae/gonav/nav"
)

const (
	Magic   = 0x564E // 'N' 'V' little-endian
	Version = 1

	HeaderLen = 12
	crcLen    = 2

	KindGPS           = 0x01
	KindAccelerometer = 0x02
	KindGyroscope     = 0x03
	KindMagnetometer  = 0x04

	gpsBodyLen    = 3*8 + 4
	vectorBodyLen = 3 * 4
)

var (
	ErrShort   = errors.New("ingest: record truncated")
	ErrMagic   = errors.New("ingest: bad magic")
	ErrVersion = errors.New("ingest: unsupported version")
	ErrKind    = errors.New("ingest: unknown record kind")
	ErrCRC     = errors.New("ingest: crc mismatch")
)

type Header struct {
	Magic   uint16
	Version uint8
	Kind    uint8
	T       int64
}

func bodyLen(kind uint8) (int, error) {
	switch kind {
	case KindGPS:
		return gpsBodyLen, nil
	case KindAccelerometer, KindGyroscope, KindMagnetometer:
		return vectorBodyLen, nil
	}
	return 0, errors.Wrapf(ErrKind, "0x%02x", kind)
}

func kindOf(s nav.Sensor) uint8 {
	return uint8(s) + KindGPS
}

// crc16 is CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xFFFF.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// ParseHeader parses the record header at the beginning of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderLen {
		return nil, ErrShort
	}
	h := &Header{
		Magic:   binary.LittleEndian.Uint16(data[0:2]),
		Version: data[2],
		Kind:    data[3],
		T:       int64(binary.LittleEndian.Uint64(data[4:12])),
	}
	if h.Magic != Magic {
		return nil, errors.Wrapf(ErrMagic, "0x%04x", h.Magic)
	}
	if h.Version != Version {
		return nil, errors.Wrapf(ErrVersion, "%d", h.Version)
	}
	return h, nil
}

func float32At(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func float64At(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// Decode parses the record at the beginning of data and returns it with the
// number of bytes it occupies.
func Decode(data []byte) (nav.Measurement, int, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nav.Measurement{}, 0, err
	}
	n, err := bodyLen(h.Kind)
	if err != nil {
		return nav.Measurement{}, 0, err
	}
	total := HeaderLen + n + crcLen
	if len(data) < total {
		return nav.Measurement{}, 0, ErrShort
	}
	if want, got := crc16(data[:total-crcLen]), binary.LittleEndian.Uint16(data[total-crcLen:total]); want != got {
		return nav.Measurement{}, 0, errors.Wrapf(ErrCRC, "0x%04x != 0x%04x", got, want)
	}

	body := data[HeaderLen : HeaderLen+n]
	m := nav.Measurement{Sensor: nav.Sensor(h.Kind - KindGPS), T: h.T}
	if h.Kind == KindGPS {
		m.Lon = float64At(body[0:8])
		m.Lat = float64At(body[8:16])
		m.Alt = float64At(body[16:24])
		m.HorizontalError = float32At(body[24:28])
	} else {
		for i := 0; i < 3; i++ {
			m.Value[i] = float32At(body[4*i : 4*i+4])
		}
	}
	return m, total, nil
}

// DecodeAll parses every record in a datagram. It stops at the first bad
// record and returns the records decoded before it along with the error.
func DecodeAll(data []byte) ([]nav.Measurement, error) {
	var ms []nav.Measurement
	for off := 0; off < len(data); {
		m, n, err := Decode(data[off:])
		if err != nil {
			return ms, errors.Wrapf(err, "record at offset %d", off)
		}
		ms = append(ms, m)
		off += n
	}
	return ms, nil
}

// Append encodes m onto buf.
func Append(buf []byte, m nav.Measurement) []byte {
	start := len(buf)
	buf = binary.LittleEndian.AppendUint16(buf, Magic)
	buf = append(buf, Version, kindOf(m.Sensor))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.T))
	if m.Sensor == nav.GPS {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(m.Lon))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(m.Lat))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(m.Alt))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(m.HorizontalError))
	} else {
		for _, v := range m.Value {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return binary.LittleEndian.AppendUint16(buf, crc16(buf[start:]))
}

// Encode returns a datagram holding ms.
func Encode(ms ...nav.Measurement) []byte {
	var buf []byte
	for _, m := range ms {
		buf = Append(buf, m)
	}
	return buf
}
