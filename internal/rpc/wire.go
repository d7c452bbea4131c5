// Package rpc implements the daemon's binary control protocol spoken over
// the unix socket. Frames carry a fixed 7-byte header (magic, version,
// little-endian payload length) followed by the body; every multi-byte
// integer on the wire is little endian and strings are u32-length-prefixed.
package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Version    = 0x01
	HeaderSize = 7

	// MaxFrameSize bounds a single frame so a corrupt length prefix cannot
	// make the daemon allocate unbounded memory.
	MaxFrameSize = 16 << 20
)

var Magic = [2]byte{0x56, 0x10}

var (
	ErrBadMagic      = errors.New("invalid protocol magic")
	ErrBadVersion    = errors.New("unsupported protocol version")
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
	ErrTruncated     = errors.New("truncated payload")
)

// Command identifies a control operation.
type Command uint8

const (
	CmdProcessStart   Command = 0x01
	CmdProcessStop    Command = 0x02
	CmdProcessRestart Command = 0x03
	CmdProcessDelete  Command = 0x04
	CmdProcessList    Command = 0x05
	CmdProcessInfo    Command = 0x06
	CmdLogRead        Command = 0x10
	CmdStateSave      Command = 0x30
	CmdStateLoad      Command = 0x31
	CmdPing           Command = 0x40
	CmdShutdown       Command = 0x41
)

func (c Command) String() string {
	switch c {
	case CmdProcessStart:
		return "process_start"
	case CmdProcessStop:
		return "process_stop"
	case CmdProcessRestart:
		return "process_restart"
	case CmdProcessDelete:
		return "process_delete"
	case CmdProcessList:
		return "process_list"
	case CmdProcessInfo:
		return "process_info"
	case CmdLogRead:
		return "log_read"
	case CmdStateSave:
		return "state_save"
	case CmdStateLoad:
		return "state_load"
	case CmdPing:
		return "ping"
	case CmdShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("command(0x%02x)", uint8(c))
}

// Response status codes.
const (
	StatusOK    uint8 = 0
	StatusError uint8 = 1
)

// Request is one decoded control frame from a client.
type Request struct {
	ID      uint32
	Command Command
	Payload []byte
}

// Response is the daemon's reply to a Request with the same ID.
type Response struct {
	ID      uint32
	Status  uint8
	Payload []byte
}

// OK builds a success response for req carrying payload.
func OK(req Request, payload []byte) Response {
	return Response{ID: req.ID, Status: StatusOK, Payload: payload}
}

// Fail builds an error response for req; the message travels as the
// payload.
func Fail(req Request, err error) Response {
	return Response{ID: req.ID, Status: StatusError, Payload: []byte(err.Error())}
}

// Writer accumulates wire-encoded values.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) PutBool(v bool) {
	if v {
		w.PutU8(1)
	} else {
		w.PutU8(0)
	}
}

func (w *Writer) PutU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) PutI32(v int32) { w.PutU32(uint32(v)) }

func (w *Writer) PutU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) PutString(s string) {
	w.PutU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// PutStrings writes a count-prefixed list of strings.
func (w *Writer) PutStrings(ss []string) {
	w.PutU32(uint32(len(ss)))
	for _, s := range ss {
		w.PutString(s)
	}
}

// Reader decodes wire values from a byte slice; every read reports
// ErrTruncated once the data runs out.
type Reader struct {
	data []byte
	pos  int
}

func NewReader(data []byte) *Reader { return &Reader{data: data} }

func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) U8() (uint8, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: u8", ErrTruncated)
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	return v != 0, err
}

func (r *Reader) U32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("%w: u32", ErrTruncated)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *Reader) U64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("%w: u64", ErrTruncated)
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) String() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", fmt.Errorf("%w: string length", ErrTruncated)
	}
	if r.pos+int(n) > len(r.data) {
		return "", fmt.Errorf("%w: string body", ErrTruncated)
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// Strings reads a count-prefixed list of strings. A zero count yields nil.
func (r *Reader) Strings() ([]string, error) {
	n, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: string list length", ErrTruncated)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]string, 0, n)
	for range n {
		s, serr := r.String()
		if serr != nil {
			return nil, serr
		}
		out = append(out, s)
	}
	return out, nil
}

// WriteFrame writes a header plus body to w.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	hdr := [HeaderSize]byte{Magic[0], Magic[1], Version}
	binary.LittleEndian.PutUint32(hdr[3:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one header-framed body from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if hdr[0] != Magic[0] || hdr[1] != Magic[1] {
		return nil, fmt.Errorf("%w: [%#02x %#02x]", ErrBadMagic, hdr[0], hdr[1])
	}
	if hdr[2] != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, hdr[2])
	}
	n := binary.LittleEndian.Uint32(hdr[3:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteRequest frames and writes req.
func WriteRequest(w io.Writer, req Request) error {
	body := make([]byte, 0, 5+len(req.Payload))
	body = binary.LittleEndian.AppendUint32(body, req.ID)
	body = append(body, uint8(req.Command))
	body = append(body, req.Payload...)
	return WriteFrame(w, body)
}

// ReadRequest reads and decodes one request frame.
func ReadRequest(r io.Reader) (Request, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return Request{}, err
	}
	if len(body) < 5 {
		return Request{}, fmt.Errorf("%w: request body", ErrTruncated)
	}
	return Request{
		ID:      binary.LittleEndian.Uint32(body),
		Command: Command(body[4]),
		Payload: body[5:],
	}, nil
}

// WriteResponse frames and writes resp.
func WriteResponse(w io.Writer, resp Response) error {
	body := make([]byte, 0, 5+len(resp.Payload))
	body = binary.LittleEndian.AppendUint32(body, resp.ID)
	body = append(body, resp.Status)
	body = append(body, resp.Payload...)
	return WriteFrame(w, body)
}

// ReadResponse reads and decodes one response frame.
func ReadResponse(r io.Reader) (Response, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return Response{}, err
	}
	if len(body) < 5 {
		return Response{}, fmt.Errorf("%w: response body", ErrTruncated)
	}
	return Response{
		ID:      binary.LittleEndian.Uint32(body),
		Status:  body[4],
		Payload: body[5:],
	}, nil
}

// ErrorMessage interprets an error response payload.
func (r Response) ErrorMessage() string { return string(r.Payload) }
