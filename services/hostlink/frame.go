// hostlink/frame.go
//
// Length-prefixed framing for the host link. Each frame is a type byte,
// a big-endian u16 payload length, then the payload.
package hostlink

import (
	"io"

	"uartbridge-go/errcode"
)

const (
	frameHello byte = 0x00 // payload: device serial string
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10 // payload: seq u16, topic len u8, topic, data
	frameReq   byte = 0x20 // payload: request id u16, command line
	frameRep   byte = 0x21 // payload: request id u16, status u8, text
	frameClose byte = 0x7f
)

const maxFramePayload = 0xFFFF

// Frame is one unit on the host link.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }
type framedWriter struct{ w io.Writer }

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > maxFramePayload {
		return errcode.FrameTooLarge
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}

// ---- pub payload ----

func encodePub(topic string, seq uint16, data []byte) ([]byte, error) {
	if len(topic) > 0xFF || 3+len(topic)+len(data) > maxFramePayload {
		return nil, errcode.FrameTooLarge
	}
	p := make([]byte, 0, 3+len(topic)+len(data))
	p = append(p, byte(seq>>8), byte(seq&0xFF), byte(len(topic)))
	p = append(p, topic...)
	p = append(p, data...)
	return p, nil
}

func decodePub(p []byte) (topic string, seq uint16, data []byte, err error) {
	if len(p) < 3 {
		return "", 0, nil, errcode.BadFrame
	}
	seq = uint16(p[0])<<8 | uint16(p[1])
	tl := int(p[2])
	if len(p) < 3+tl {
		return "", 0, nil, errcode.BadFrame
	}
	return string(p[3 : 3+tl]), seq, p[3+tl:], nil
}

// ---- req/rep payloads ----

func encodeReq(id uint16, line string) []byte {
	p := make([]byte, 0, 2+len(line))
	p = append(p, byte(id>>8), byte(id&0xFF))
	return append(p, line...)
}

func decodeReq(p []byte) (id uint16, line string, err error) {
	if len(p) < 2 {
		return 0, "", errcode.BadFrame
	}
	return uint16(p[0])<<8 | uint16(p[1]), string(p[2:]), nil
}

const (
	repOK  byte = 0x00
	repErr byte = 0x01
)

func encodeRep(id uint16, status byte, text string) []byte {
	p := make([]byte, 0, 3+len(text))
	p = append(p, byte(id>>8), byte(id&0xFF), status)
	return append(p, text...)
}

func decodeRep(p []byte) (id uint16, status byte, text string, err error) {
	if len(p) < 3 {
		return 0, 0, "", errcode.BadFrame
	}
	return uint16(p[0])<<8 | uint16(p[1]), p[2], string(p[3:]), nil
}
