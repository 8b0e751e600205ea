package protocol_test

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/omochice/toy-state-sync/pkg/protocol"
)

// FuzzDeserialize checks that arbitrary input never panics, that counts above
// capacity are always rejected, and that accepted input re-encodes to the
// same length. Positions beyond 2^24 units lose precision in float32, so the
// re-encoded bytes may differ and the largest ones may no longer fit.
func FuzzDeserialize(f *testing.F) {
	valid, _ := protocol.NewMessage(4)
	_ = valid.Append(protocol.Vec3{X: 1, Y: 2, Z: 3}, protocol.Identity)
	_ = valid.Append(protocol.Vec3{X: -1.5, Z: 4.25}, protocol.Identity)
	seed, _ := valid.MarshalBinary()

	f.Add(seed, uint16(4))
	f.Add([]byte{0x00, 0x00}, uint16(1))
	f.Add([]byte{0xFF, 0xFF}, uint16(4))
	f.Add([]byte{0x00, 0x05, 0x01}, uint16(4))

	f.Fuzz(func(t *testing.T, data []byte, capacity uint16) {
		if capacity == 0 {
			capacity = 1
		}

		m, err := protocol.Deserialize(data, int(capacity))
		if len(data) >= 2 {
			count := int(data[0])<<8 | int(data[1])
			if count > int(capacity) && !errors.Is(err, protocol.ErrCountExceedsCapacity) {
				t.Fatalf("count %d above capacity %d accepted: %v", count, capacity, err)
			}
		}
		if err != nil {
			return
		}

		if m.Count() > m.Capacity() {
			t.Fatalf("count %d exceeds capacity %d", m.Count(), m.Capacity())
		}
		out, err := m.MarshalBinary()
		if errors.Is(err, protocol.ErrValueOutOfRange) {
			return
		}
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		if len(out) != protocol.RequiredCapacity(m) || len(out) > len(data) {
			t.Fatalf("re-encoded %d bytes from %d input bytes", len(out), len(data))
		}
	})
}
