// Package wire implements the binary framing codec described by the signal
// protocol: an 8-byte big-endian header followed by a type-specific payload.
//
// Header layout (8 bytes, network byte order):
//
//	offset 0  uint16  signature  (must equal Signature)
//	offset 2  uint8   version    (must equal Version)
//	offset 3  uint8   dataType   (Subscribe, Data, or Alive)
//	offset 4  uint32  length     (payload byte count)
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/signal-pubsub/server/internal/signal"
)

const (
	// Signature identifies a well-formed frame header.
	Signature uint16 = 0xAA55
	// Version is the only protocol version this codec understands.
	Version uint8 = 1

	// HeaderSize is the fixed size, in bytes, of every frame header.
	HeaderSize = 8
	// RecordSize is the size, in bytes, of one Data-frame record.
	RecordSize = 13

	// MaxPayloadBytes is the hard ceiling on a single frame's payload. A
	// receiver that sees a larger length must close the connection before
	// reading the body.
	MaxPayloadBytes = 10 * 1024 * 1024
)

// DataType identifies the payload kind carried by a frame.
type DataType uint8

const (
	// Subscribe is sent client -> server, carrying a one-byte filter.
	Subscribe DataType = 0x01
	// Data is sent server -> client, carrying zero or more signal records.
	Data DataType = 0x02
	// Alive is sent server -> client, carrying no payload. Reserved;
	// receivers accept and ignore it.
	Alive DataType = 0x03
)

func (t DataType) String() string {
	switch t {
	case Subscribe:
		return "subscribe"
	case Data:
		return "data"
	case Alive:
		return "alive"
	default:
		return fmt.Sprintf("dataType(%#x)", uint8(t))
	}
}

// Header is the fixed 8-byte frame header.
type Header struct {
	DataType DataType
	Length   uint32
}

// ProtocolError marks a frame that violates the wire protocol and must
// cause the connection to close. It is never retried.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "wire: protocol error: " + e.Reason }

func protoErrf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// ReadHeader reads and validates an 8-byte header from r. A bad signature,
// bad version, or oversize length is reported as a *ProtocolError; any other
// read failure (EOF, reset, short read) is returned unwrapped.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}

	sig := binary.BigEndian.Uint16(buf[0:2])
	if sig != Signature {
		return Header{}, protoErrf("bad signature %#04x", sig)
	}
	ver := buf[2]
	if ver != Version {
		return Header{}, protoErrf("bad version %d", ver)
	}
	length := binary.BigEndian.Uint32(buf[4:8])
	if length > MaxPayloadBytes {
		return Header{}, protoErrf("payload too large (%d bytes)", length)
	}

	return Header{DataType: DataType(buf[3]), Length: length}, nil
}

// WriteHeader serializes a header to w.
func WriteHeader(w io.Writer, h Header) error {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint16(buf[0:2], Signature)
	buf[2] = Version
	buf[3] = byte(h.DataType)
	binary.BigEndian.PutUint32(buf[4:8], h.Length)
	_, err := w.Write(buf[:])
	return err
}

// ReadBody reads exactly length bytes of frame payload from r.
func ReadBody(r io.Reader, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// DecodeSubscribe validates and extracts the filter byte from a Subscribe
// payload. An empty payload is a protocol error.
func DecodeSubscribe(body []byte) (signal.Type, error) {
	if len(body) != 1 {
		return 0, protoErrf("subscribe payload must be exactly 1 byte, got %d", len(body))
	}
	return signal.Type(body[0]), nil
}

// EncodeSubscribe serializes a subscribe filter into a frame payload.
func EncodeSubscribe(filter signal.Type) []byte {
	return []byte{byte(filter)}
}

// DecodeData parses a Data payload into zero or more Signal records.
// Trailing bytes that don't complete a whole RecordSize-byte record are a
// protocol error, and so is a record whose type byte is not exactly one of
// the defined kinds (spec's Data Model invariant: type is never zero, never
// both bits).
func DecodeData(body []byte) ([]signal.Signal, error) {
	if len(body)%RecordSize != 0 {
		return nil, protoErrf("data payload length %d is not a multiple of %d", len(body), RecordSize)
	}
	n := len(body) / RecordSize
	out := make([]signal.Signal, 0, n)
	for i := 0; i < n; i++ {
		rec := body[i*RecordSize : (i+1)*RecordSize]
		id := binary.BigEndian.Uint32(rec[0:4])
		typ := signal.Type(rec[4])
		if !typ.Valid() {
			return nil, protoErrf("record %d: invalid type %#x", i, rec[4])
		}
		bits := binary.BigEndian.Uint64(rec[5:13])
		value := math.Float64frombits(bits)
		out = append(out, signal.Signal{ID: id, Type: typ, Value: value})
	}
	return out, nil
}

// EncodeData serializes signals into a Data payload: RecordSize bytes per
// signal, concatenated in the given order.
func EncodeData(signals []signal.Signal) []byte {
	body := make([]byte, len(signals)*RecordSize)
	for i, s := range signals {
		rec := body[i*RecordSize : (i+1)*RecordSize]
		binary.BigEndian.PutUint32(rec[0:4], s.ID)
		rec[4] = byte(s.Type)
		binary.BigEndian.PutUint64(rec[5:13], math.Float64bits(s.Value))
	}
	return body
}

// WriteFrame writes a complete header+payload frame to w in one call. The
// caller supplies the correct DataType for dataType; length is derived from
// payload.
func WriteFrame(w io.Writer, dataType DataType, payload []byte) error {
	if err := WriteHeader(w, Header{DataType: dataType, Length: uint32(len(payload))}); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}
