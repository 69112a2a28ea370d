package fieldbus

import "encoding/binary"

// Identification & Maintenance (I&M0) record served at index 0x8000
// (§4.4 "Slot layout"): 54 bytes of fixed device identity.
const (
	IM0Index = 0x8000
	IM0Size  = 54

	// VendorID / DeviceID are the §6 wire identity.
	VendorID uint16 = 0x0493
	DeviceID uint16 = 0x0001

	// HardwareRevision is fixed, not derived from the detected board; the
	// board type is reported through discovery output instead.
	HardwareRevision uint16 = 0x0001

	imVersionMajor = 0x01
	imVersionMinor = 0x01
	imSupported    = 0x000E // I&M1-3 announced as writable record space
	profileID      = 0x0000 // generic device, no application profile
	profileType    = 0x0000
	revisionCount  = 0x0001
)

// Software revision, "ordered" prefix form: V<func>.<bugfix>.<internal>.
const (
	swRevisionPrefix   = 'V'
	swRevisionFunc     = 1
	swRevisionBugfix   = 2
	swRevisionInternal = 0
)

// IM0 holds the per-device variable fields of the record; the rest is
// compile-time constant.
type IM0 struct {
	OrderID string // up to 20 bytes, space padded
	Serial  string // up to 16 bytes, space padded
}

// Encode renders the 54-byte record: vendor(2), order(20), serial(16),
// hardware revision(2), software revision(4), revision counter(2),
// profile id(2), profile-specific type(2), I&M version(2), supported(2).
func (m IM0) Encode() [IM0Size]byte {
	var b [IM0Size]byte
	binary.BigEndian.PutUint16(b[0:2], VendorID)
	padCopy(b[2:22], m.OrderID)
	padCopy(b[22:38], m.Serial)
	binary.BigEndian.PutUint16(b[38:40], HardwareRevision)
	b[40] = swRevisionPrefix
	b[41] = swRevisionFunc
	b[42] = swRevisionBugfix
	b[43] = swRevisionInternal
	binary.BigEndian.PutUint16(b[44:46], revisionCount)
	binary.BigEndian.PutUint16(b[46:48], profileID)
	binary.BigEndian.PutUint16(b[48:50], profileType)
	binary.BigEndian.PutUint16(b[50:52], imVersionMajor<<8|imVersionMinor)
	binary.BigEndian.PutUint16(b[52:54], imSupported)
	return b
}

// padCopy writes s into dst, space-padding the remainder.
func padCopy(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}
