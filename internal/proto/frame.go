package proto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind tags a single frame on the control or auxiliary wire.
type Kind byte

const (
	// Control channel messages.
	KindNewSession   Kind = 0x01 // payload: session ID token
	KindHeartbeat    Kind = 0x02
	KindHeartbeatAck Kind = 0x03

	// Auxiliary handshake, first frame on a freshly accepted connection.
	KindControlHello Kind = 0x10 // payload: ControlMagic
	KindDataHello    Kind = 0x11 // payload: session ID token
)

// ControlMagic identifies a ControlHello as speaking this protocol version.
const ControlMagic = "warppipe/1"

// MaxPayload bounds a single frame payload. Session IDs and the magic are
// tiny; anything larger is a corrupt or hostile peer.
const MaxPayload = 512

const headerSize = 3 // kind(1) + length(2)

// Frame is one length-prefixed message: kind byte, uint16 big-endian
// payload length, payload.
type Frame struct {
	Kind    Kind
	Payload []byte
}

func (k Kind) String() string {
	switch k {
	case KindNewSession:
		return "new_session"
	case KindHeartbeat:
		return "heartbeat"
	case KindHeartbeatAck:
		return "heartbeat_ack"
	case KindControlHello:
		return "control_hello"
	case KindDataHello:
		return "data_hello"
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(k))
}

// Encode returns the wire form of f.
func Encode(f Frame) []byte {
	buf := make([]byte, headerSize+len(f.Payload))
	buf[0] = byte(f.Kind)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(f.Payload)))
	copy(buf[headerSize:], f.Payload)
	return buf
}

// Write encodes f and writes it to w in a single Write call.
func Write(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayload {
		return fmt.Errorf("payload too large: %d > %d", len(f.Payload), MaxPayload)
	}
	_, err := w.Write(Encode(f))
	return err
}

// Read decodes the next frame from r. A short read surfaces as
// io.EOF / io.ErrUnexpectedEOF from io.ReadFull.
func Read(r io.Reader) (Frame, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint16(hdr[1:3])
	if length > MaxPayload {
		return Frame{}, fmt.Errorf("frame payload %d exceeds limit %d", length, MaxPayload)
	}
	f := Frame{Kind: Kind(hdr[0])}
	if length > 0 {
		f.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, err
		}
	}
	return f, nil
}

// NewSession builds the relay -> forwarder notification for id.
func NewSession(id string) Frame {
	return Frame{Kind: KindNewSession, Payload: []byte(id)}
}

func Heartbeat() Frame    { return Frame{Kind: KindHeartbeat} }
func HeartbeatAck() Frame { return Frame{Kind: KindHeartbeatAck} }

// ControlHello builds the auxiliary handshake claiming the control role.
func ControlHello() Frame {
	return Frame{Kind: KindControlHello, Payload: []byte(ControlMagic)}
}

// DataHello builds the auxiliary handshake binding a data connection to id.
func DataHello(id string) Frame {
	return Frame{Kind: KindDataHello, Payload: []byte(id)}
}
