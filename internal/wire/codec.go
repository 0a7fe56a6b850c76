package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Command is one variant of the wire protocol's tagged union.
// Discriminator identifies the concrete type so ReadFrame can allocate
// the right Go value before decoding; EncodeBody/DecodeBody handle
// everything after the discriminator byte.
type Command interface {
	Discriminator() uint8
	EncodeBody(e *Encoder) error
	DecodeBody(d *Decoder) error
}

// ResponseBit is set on a discriminator to mark a response or
// notification frame, letting a reader distinguish request from
// response without tracking connection state.
const ResponseBit uint8 = 0x80

// IsResponse reports whether disc carries the response bit.
func IsResponse(disc uint8) bool { return disc&ResponseBit != 0 }

// Frame is one `tag:int64 | discriminator:uint8 | body` unit.
type Frame struct {
	Tag     int64
	Command Command
}

var factories = make(map[uint8]func() Command)

// Register associates a discriminator with a zero-value factory so
// ReadFrame can construct the right Command before decoding its body.
// Called from each command kind's init().
func Register(disc uint8, factory func() Command) {
	if _, exists := factories[disc]; exists {
		panic(fmt.Sprintf("wire: discriminator %d registered twice", disc))
	}
	factories[disc] = factory
}

// ErrProtocol wraps any malformed-frame condition; a protocol error is
// terminal for the connection.
type ErrProtocol struct {
	Reason string
}

func (e *ErrProtocol) Error() string { return "wire: protocol error: " + e.Reason }

// ReadFrame decodes one frame from r: an 8-byte tag, a discriminator
// byte, then the command's body. It never reads past the end of the
// command's own body.
func ReadFrame(r *bufio.Reader) (*Frame, error) {
	var header [9]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	tag := int64(binary.LittleEndian.Uint64(header[:8]))
	disc := header[8]

	factory, ok := factories[disc]
	if !ok {
		return nil, &ErrProtocol{Reason: fmt.Sprintf("unknown discriminator %d", disc)}
	}
	cmd := factory()

	d := &Decoder{r: r}
	if err := cmd.DecodeBody(d); err != nil {
		if d.err != nil {
			return nil, &ErrProtocol{Reason: d.err.Error()}
		}
		return nil, err
	}
	if d.err != nil {
		return nil, &ErrProtocol{Reason: d.err.Error()}
	}
	return &Frame{Tag: tag, Command: cmd}, nil
}

// WriteFrame encodes tag and cmd to w and flushes.
func WriteFrame(w *bufio.Writer, tag int64, cmd Command) error {
	var header [9]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(tag))
	header[8] = cmd.Discriminator()
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	e := &Encoder{w: w}
	if err := cmd.EncodeBody(e); err != nil {
		return err
	}
	if e.err != nil {
		return e.err
	}
	return w.Flush()
}

// EncodeCommandBody renders just cmd's body (no tag, no discriminator)
// to bytes, for embedding one command inside another's payload (e.g.
// DebugChangeNotification wrapping the notification it debugs).
func EncodeCommandBody(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	e := &Encoder{w: &buf}
	if err := cmd.EncodeBody(e); err != nil {
		return nil, err
	}
	if e.err != nil {
		return nil, e.err
	}
	return buf.Bytes(), nil
}

// DecodeCommandBody decodes body into a fresh Command of the kind
// registered for disc.
func DecodeCommandBody(disc uint8, body []byte) (Command, error) {
	factory, ok := factories[disc]
	if !ok {
		return nil, &ErrProtocol{Reason: fmt.Sprintf("unknown discriminator %d", disc)}
	}
	cmd := factory()
	d := &Decoder{r: bytes.NewReader(body)}
	if err := cmd.DecodeBody(d); err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}
	return cmd, nil
}

// Encoder writes the little-endian, length-prefixed primitives the wire
// codec uses for command bodies. Methods are no-ops once an error has
// occurred, so callers can chain several writes and check err once.
type Encoder struct {
	w   io.Writer
	err error
}

// NewEncoder returns an Encoder writing to w. Exported so other packages
// that reuse the wire codec's primitives for their own on-disk or
// in-memory formats (e.g. internal/recorder's change log) don't need to
// hand-roll the same little-endian helpers.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

func (e *Encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *Encoder) Err() error { return e.err }

func (e *Encoder) WriteUint8(v uint8) {
	e.write([]byte{v})
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteUint8(1)
	} else {
		e.WriteUint8(0)
	}
}

func (e *Encoder) WriteInt32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	e.write(b[:])
}

func (e *Encoder) WriteInt64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	e.write(b[:])
}

func (e *Encoder) WriteBytes(b []byte) {
	e.WriteInt32(int32(len(b)))
	e.write(b)
}

func (e *Encoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

func (e *Encoder) WriteStringSlice(ss []string) {
	e.WriteInt32(int32(len(ss)))
	for _, s := range ss {
		e.WriteString(s)
	}
}

func (e *Encoder) WriteInt64Slice(vs []int64) {
	e.WriteInt32(int32(len(vs)))
	for _, v := range vs {
		e.WriteInt64(v)
	}
}

// Decoder reads the primitives Encoder writes. Like Encoder, methods are
// no-ops once an error occurs; callers check Err() once at the end.
type Decoder struct {
	r   io.Reader
	err error
}

// NewDecoder returns a Decoder reading from r; see NewEncoder.
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

func (d *Decoder) Err() error { return d.err }

func (d *Decoder) read(p []byte) {
	if d.err != nil {
		return
	}
	_, d.err = io.ReadFull(d.r, p)
}

func (d *Decoder) ReadUint8() uint8 {
	var b [1]byte
	d.read(b[:])
	return b[0]
}

func (d *Decoder) ReadBool() bool {
	return d.ReadUint8() != 0
}

func (d *Decoder) ReadInt32() int32 {
	var b [4]byte
	d.read(b[:])
	return int32(binary.LittleEndian.Uint32(b[:]))
}

func (d *Decoder) ReadInt64() int64 {
	var b [8]byte
	d.read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// maxBytesLen bounds a single length-prefixed field, guarding against a
// corrupt or adversarial length turning a short frame into an
// unbounded allocation.
const maxBytesLen = 64 << 20

func (d *Decoder) ReadBytes() []byte {
	n := d.ReadInt32()
	if d.err != nil {
		return nil
	}
	if n < 0 || int(n) > maxBytesLen {
		d.err = fmt.Errorf("wire: field length %d out of range", n)
		return nil
	}
	b := make([]byte, n)
	d.read(b)
	return b
}

func (d *Decoder) ReadString() string {
	return string(d.ReadBytes())
}

// maxCount bounds a single repeated-field count for the same reason as
// maxBytesLen.
const maxCount = 1 << 20

func (d *Decoder) count() int32 {
	n := d.ReadInt32()
	if d.err != nil {
		return 0
	}
	if n < 0 || int(n) > maxCount {
		d.err = fmt.Errorf("wire: element count %d out of range", n)
		return 0
	}
	return n
}

func (d *Decoder) ReadStringSlice() []string {
	n := d.count()
	if d.err != nil || n == 0 {
		return nil
	}
	ss := make([]string, n)
	for i := range ss {
		ss[i] = d.ReadString()
	}
	return ss
}

func (d *Decoder) ReadInt64Slice() []int64 {
	n := d.count()
	if d.err != nil || n == 0 {
		return nil
	}
	vs := make([]int64, n)
	for i := range vs {
		vs[i] = d.ReadInt64()
	}
	return vs
}
