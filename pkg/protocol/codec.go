package protocol

import (
	"github.com/pkg/errors"
)

// Codec errors. Returned errors wrap one of these; match with errors.Is.
var (
	ErrTruncated            = errors.New("protocol: buffer truncated")
	ErrCountExceedsCapacity = errors.New("protocol: user count exceeds capacity")
	ErrValueOutOfRange      = errors.New("protocol: value out of fixed-point range")
	ErrInvalidCapacity      = errors.New("protocol: invalid capacity")
)

const countSize = 2

// fieldOp is one of the three operations applied field by field while
// traversing a message: write, read or measure.
type fieldOp interface {
	count(n *int, capacity int) error
	fixed(f FixedPoint, v *float32) error
}

// Field order of the wire format. Every axis lists all active users before
// the next axis starts.
var (
	positionAxes = []func(*Vec3) *float32{
		func(v *Vec3) *float32 { return &v.X },
		func(v *Vec3) *float32 { return &v.Y },
		func(v *Vec3) *float32 { return &v.Z },
	}
	orientationAxes = []func(*Quat) *float32{
		func(q *Quat) *float32 { return &q.X },
		func(q *Quat) *float32 { return &q.Y },
		func(q *Quat) *float32 { return &q.Z },
		func(q *Quat) *float32 { return &q.W },
	}
)

// traverse applies op to every field of m in wire order. The count is
// visited first and bounds everything after it.
func (m *Message) traverse(op fieldOp) error {
	if err := op.count(&m.count, m.Capacity()); err != nil {
		return err
	}
	for _, axis := range positionAxes {
		for i := 0; i < m.count; i++ {
			if err := op.fixed(positionFormat, axis(&m.positions[i])); err != nil {
				return err
			}
		}
	}
	for _, axis := range orientationAxes {
		for i := 0; i < m.count; i++ {
			if err := op.fixed(orientationFormat, axis(&m.orientations[i])); err != nil {
				return err
			}
		}
	}
	return nil
}

type writer struct {
	buf []byte
	pos int
}

func (w *writer) reserve(n int) ([]byte, error) {
	if len(w.buf)-w.pos < n {
		return nil, errors.Wrapf(ErrTruncated, "writing %d bytes at offset %d of %d", n, w.pos, len(w.buf))
	}
	b := w.buf[w.pos : w.pos+n]
	w.pos += n
	return b, nil
}

func (w *writer) count(n *int, capacity int) error {
	if *n > capacity {
		return errors.Wrapf(ErrCountExceedsCapacity, "count %d, capacity %d", *n, capacity)
	}
	b, err := w.reserve(countSize)
	if err != nil {
		return err
	}
	b[0] = byte(*n >> 8)
	b[1] = byte(*n)
	return nil
}

func (w *writer) fixed(f FixedPoint, v *float32) error {
	q, err := f.Quantize(*v)
	if err != nil {
		return err
	}
	b, err := w.reserve(f.Size())
	if err != nil {
		return err
	}
	f.put(b, q)
	return nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) next(n int) ([]byte, error) {
	if len(r.buf)-r.pos < n {
		return nil, errors.Wrapf(ErrTruncated, "reading %d bytes at offset %d of %d", n, r.pos, len(r.buf))
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) count(n *int, capacity int) error {
	b, err := r.next(countSize)
	if err != nil {
		return err
	}
	decoded := int(b[0])<<8 | int(b[1])
	if decoded > capacity {
		return errors.Wrapf(ErrCountExceedsCapacity, "decoded count %d, capacity %d", decoded, capacity)
	}
	*n = decoded
	return nil
}

func (r *reader) fixed(f FixedPoint, v *float32) error {
	b, err := r.next(f.Size())
	if err != nil {
		return err
	}
	*v = f.Dequantize(f.get(b))
	return nil
}

type sizer struct {
	n int
}

func (s *sizer) count(*int, int) error {
	s.n += countSize
	return nil
}

func (s *sizer) fixed(f FixedPoint, _ *float32) error {
	s.n += f.Size()
	return nil
}

// Serialize writes m into dst and returns the number of bytes written.
// A dst shorter than RequiredCapacity(m) fails with ErrTruncated before
// anything is written.
func Serialize(m *Message, dst []byte) (int, error) {
	if need := RequiredCapacity(m); len(dst) < need {
		return 0, errors.Wrapf(ErrTruncated, "need %d bytes, have %d", need, len(dst))
	}
	w := writer{buf: dst}
	if err := m.traverse(&w); err != nil {
		return 0, err
	}
	return w.pos, nil
}

// Deserialize decodes a message from src into a new message of the given
// capacity. A count above capacity is rejected before any user field is read.
func Deserialize(src []byte, capacity int) (*Message, error) {
	m, err := NewMessage(capacity)
	if err != nil {
		return nil, err
	}
	if _, err := DeserializeInto(src, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeserializeInto decodes src into m, reusing its storage, and returns the
// number of bytes consumed. On error m is left empty.
func DeserializeInto(src []byte, m *Message) (int, error) {
	r := reader{buf: src}
	if err := m.traverse(&r); err != nil {
		m.count = 0
		return 0, err
	}
	return r.pos, nil
}

// RequiredCapacity returns the exact number of bytes Serialize needs for m.
func RequiredCapacity(m *Message) int {
	var s sizer
	_ = m.traverse(&s)
	return s.n
}

// MaxEncodedSize returns the size of a message with capacity users, all active.
func MaxEncodedSize(capacity int) int {
	return countSize + capacity*(len(positionAxes)*positionFormat.Size()+len(orientationAxes)*orientationFormat.Size())
}
