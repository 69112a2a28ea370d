package fieldbus

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/watertreat/rtu/types"
)

// IOPS is the per-slot provider status accompanying cyclic data: a slot's
// input is "good" only when its sensor reported ok (§4.4 Running row).
type IOPS uint8

const (
	IOPSBad  IOPS = 0
	IOPSGood IOPS = 0x80 // matches the wire encoding of "good" provider state
)

// ioBuffers holds one atomically-updated 4-byte record per slot (§3 "IO
// Data Record": written and read atomically per slot). Payload and IOPS
// are packed into a single uint64 so a cyclic callback reading a slot can
// never observe a torn value/status pair.
type ioBuffers struct {
	slots [types.SlotActuatorMax + 1]atomic.Uint64
}

func pack(payload [types.SlotPayloadSize]byte, iops IOPS) uint64 {
	return uint64(binary.BigEndian.Uint32(payload[:]))<<8 | uint64(iops)
}

func unpack(v uint64) (payload [types.SlotPayloadSize]byte, iops IOPS) {
	binary.BigEndian.PutUint32(payload[:], uint32(v>>8))
	return payload, IOPS(v & 0xff)
}

// set installs a slot's payload and provider status in one atomic store.
func (b *ioBuffers) set(slot int, payload [types.SlotPayloadSize]byte, iops IOPS) {
	if slot < 0 || slot >= len(b.slots) {
		return
	}
	b.slots[slot].Store(pack(payload, iops))
}

// get returns a slot's current payload and provider status.
func (b *ioBuffers) get(slot int) ([types.SlotPayloadSize]byte, IOPS) {
	if slot < 0 || slot >= len(b.slots) {
		return [types.SlotPayloadSize]byte{}, IOPSBad
	}
	return unpack(b.slots[slot].Load())
}

// clear zeroes every slot, used when the connection drops and buffered
// outputs must be discarded (§4.4 "Connection faults").
func (b *ioBuffers) clear() {
	for i := range b.slots {
		b.slots[i].Store(0)
	}
}
