// Package protocol implements the binary world-state message and its codec.
//
// A message carries the positions and orientations of up to a fixed number of
// users. All integers are big-endian and all float fields are fixed-point:
//
//	┌──────────────┬──────────────────────────────┬──────────────────────────────────┐
//	│ user_count   │ position X, Y, Z             │ orientation X, Y, Z, W           │
//	│ (uint16)     │ (user_count values per axis) │ (user_count values per axis)     │
//	└──────────────┴──────────────────────────────┴──────────────────────────────────┘
//
// Positions are signed 32-bit values with 16 fractional bits, orientations
// are signed 16-bit values with 14 fractional bits. Widths are fixed for the
// protocol and never negotiated on the wire.
//
// Serialize, Deserialize and RequiredCapacity share one traversal over the
// message fields, so the three can not disagree about layout.
//
// Quantization is lossy: a decoded float differs from the encoded one by at
// most one quantization unit (2^-mantissa). This is part of the format.
package protocol
