package protocol

import (
	"math"

	"github.com/pkg/errors"
)

// MaxCapacity is the largest user capacity a message can declare, bounded by
// the uint16 count on the wire.
const MaxCapacity = math.MaxUint16

// Vec3 is a position in world space.
type Vec3 struct {
	X, Y, Z float32
}

// Quat is an orientation quaternion.
type Quat struct {
	X, Y, Z, W float32
}

// Identity is the quaternion with no rotation.
var Identity = Quat{W: 1}

// Message is the world-state payload: positions and orientations of the
// active users. Capacity is fixed at construction and the active count never
// exceeds it.
type Message struct {
	count        int
	positions    []Vec3
	orientations []Quat
}

// NewMessage creates an empty message able to hold capacity users.
func NewMessage(capacity int) (*Message, error) {
	if capacity < 1 || capacity > MaxCapacity {
		return nil, errors.Wrapf(ErrInvalidCapacity, "capacity %d", capacity)
	}
	return &Message{
		positions:    make([]Vec3, capacity),
		orientations: make([]Quat, capacity),
	}, nil
}

// Capacity returns the number of users the message was declared for.
func (m *Message) Capacity() int {
	return len(m.positions)
}

// Count returns the number of active users.
func (m *Message) Count() int {
	return m.count
}

// SetCount changes the number of active users. Users beyond the previous
// count keep whatever values their slots held.
func (m *Message) SetCount(n int) error {
	if n < 0 || n > m.Capacity() {
		return errors.Wrapf(ErrCountExceedsCapacity, "count %d, capacity %d", n, m.Capacity())
	}
	m.count = n
	return nil
}

// Append adds a user after the active ones.
func (m *Message) Append(pos Vec3, rot Quat) error {
	if m.count >= m.Capacity() {
		return errors.Wrapf(ErrCountExceedsCapacity, "message is full at %d users", m.Capacity())
	}
	m.positions[m.count] = pos
	m.orientations[m.count] = rot
	m.count++
	return nil
}

// SetUser overwrites the state of active user i.
func (m *Message) SetUser(i int, pos Vec3, rot Quat) error {
	if i < 0 || i >= m.count {
		return errors.Errorf("protocol: user index %d out of range [0,%d)", i, m.count)
	}
	m.positions[i] = pos
	m.orientations[i] = rot
	return nil
}

// Position returns the position of user i. It panics if i is not active.
func (m *Message) Position(i int) Vec3 {
	return m.positions[:m.count][i]
}

// Orientation returns the orientation of user i. It panics if i is not active.
func (m *Message) Orientation(i int) Quat {
	return m.orientations[:m.count][i]
}

// Reset drops all active users.
func (m *Message) Reset() {
	m.count = 0
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *Message) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RequiredCapacity(m))
	n, err := Serialize(m, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The receiver must
// have been created with NewMessage; its capacity bounds the decoded count.
func (m *Message) UnmarshalBinary(data []byte) error {
	_, err := DeserializeInto(data, m)
	return err
}
