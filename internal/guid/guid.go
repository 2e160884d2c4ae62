// Package guid implements the clip GUID: a 128-bit identifier embedded
// in the per-frame metadata chunk and used to key into the on-disk
// overlay database (spec §3 "Clip GUID", §6 "GUID formatting").
//
// Grounded on cocosip-go-dicom-codec's use of github.com/google/uuid for
// study/series identifiers external to pixel data — the same role a
// clip identifier plays here, external to sample data.
package guid

import (
	"fmt"

	"github.com/google/uuid"
)

// GUID wraps a uuid.UUID but formats with CineForm's field order:
// %08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X over the 16 bytes in
// order. That is the same 8-4-4-4-12 grouping as uuid.UUID.String(), in
// upper-case hex instead of lower-case.
type GUID uuid.UUID

// Nil is the zero-value GUID.
var Nil GUID

// New generates a random (version 4) clip GUID.
func New() GUID {
	return GUID(uuid.New())
}

// Parse accepts either CineForm's hyphenated field format or the
// standard RFC 4122 string form, since the on-disk filename grammar
// carries the CineForm form while
// callers constructing one programmatically may use uuid.UUID's own
// String().
func Parse(s string) (GUID, error) {
	u, err := uuid.Parse(s)
	if err == nil {
		return GUID(u), nil
	}
	var b [16]byte
	var p [11]uint32
	n, scanErr := fmt.Sscanf(s, "%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X",
		&p[0], &p[1], &p[2], &p[3], &p[4], &p[5], &p[6], &p[7], &p[8], &p[9], &p[10])
	if scanErr != nil || n != 11 {
		return Nil, fmt.Errorf("guid: cannot parse %q: %w", s, err)
	}
	b[0] = byte(p[0] >> 24)
	b[1] = byte(p[0] >> 16)
	b[2] = byte(p[0] >> 8)
	b[3] = byte(p[0])
	b[4] = byte(p[1] >> 8)
	b[5] = byte(p[1])
	b[6] = byte(p[2] >> 8)
	b[7] = byte(p[2])
	b[8] = byte(p[3])
	b[9] = byte(p[4])
	b[10] = byte(p[5])
	b[11] = byte(p[6])
	b[12] = byte(p[7])
	b[13] = byte(p[8])
	b[14] = byte(p[9])
	b[15] = byte(p[10])
	return GUID(b), nil
}

// String renders the GUID in CineForm's documented field order (spec §6),
// used both for the on-disk filename grammar and as the hex-formatted
// GUID referenced by §4.6 step 4.
func (g GUID) String() string {
	b := uuid.UUID(g)
	return fmt.Sprintf("%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X",
		uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8|uint32(b[3]),
		uint16(b[4])<<8|uint16(b[5]),
		uint16(b[6])<<8|uint16(b[7]),
		b[8], b[9],
		b[10], b[11], b[12], b[13], b[14], b[15])
}

// IsNil reports whether g is the zero-value GUID.
func (g GUID) IsNil() bool { return g == Nil }
