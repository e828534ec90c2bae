package chunk

import (
	"math"
)

// ---------------------------------------------------------------------------
// dumpState: sticky-status emission
// ---------------------------------------------------------------------------

// dumpState carries one top-level Dump call. Once status leaves StatusOK
// every emission becomes a no-op.
type dumpState struct {
	w      Writer
	strip  bool
	status Status

	// blocks counts sink calls, for the halt log message.
	blocks  int
	scratch [8]byte
}

// block hands p to the sink unless the dump has already halted.
func (d *dumpState) block(p []byte) {
	if d.status != StatusOK {
		return
	}
	d.blocks++
	d.status = d.w.WriteBlock(p, 0, len(p))
	if d.status != StatusOK {
		log.Debugf("sink failed on block %d (%d bytes), halting output", d.blocks, len(p))
	}
}

// ---------------------------------------------------------------------------
// Value encoders
// ---------------------------------------------------------------------------

func (d *dumpState) dumpByte(b byte) {
	d.scratch[0] = b
	d.block(d.scratch[:1])
}

func (d *dumpState) dumpBool(b bool) {
	if b {
		d.dumpByte(1)
	} else {
		d.dumpByte(0)
	}
}

func (d *dumpState) dumpInt(v int32) {
	byteOrder.PutUint32(d.scratch[:4], uint32(v))
	d.block(d.scratch[:4])
}

func (d *dumpState) dumpUint(v uint32) {
	byteOrder.PutUint32(d.scratch[:4], v)
	d.block(d.scratch[:4])
}

func (d *dumpState) dumpNumber(f float64) {
	byteOrder.PutUint64(d.scratch[:8], math.Float64bits(f))
	d.block(d.scratch[:8])
}

// dumpString writes a nullable string: 0 when absent, otherwise len+1
// followed by the bytes and a NUL terminator.
func (d *dumpState) dumpString(s *string) {
	if s == nil {
		d.dumpUint(0)
		return
	}
	d.dumpUint(uint32(len(*s) + 1))
	body := make([]byte, len(*s)+1)
	copy(body, *s)
	d.block(body)
}

// dumpName writes a non-nullable debug name.
func (d *dumpState) dumpName(s string) {
	d.dumpString(&s)
}

// ---------------------------------------------------------------------------
// Sequence encoder
// ---------------------------------------------------------------------------

// dumpVector writes the element count and then each element in order.
// A nil or empty slice is a zero count.
func dumpVector[T any](d *dumpState, list []T, item func(T)) {
	d.dumpUint(uint32(len(list)))
	for _, v := range list {
		item(v)
	}
}
