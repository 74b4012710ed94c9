package replication

import "hash/crc64"

// emptyRDBPayload is the fixed snapshot shipped during FULLRESYNC: the
// header, no metadata fields, immediate EOF, and its CRC64 checksum.
// Computed once at package init rather than hand-typed as a hex literal,
// since the checksum depends on the exact preceding bytes.
var emptyRDBPayload = buildEmptyRDB()

func buildEmptyRDB() []byte {
	body := []byte("REDIS0011")
	body = append(body, 0xFF)

	table := crc64.MakeTable(crc64.ECMA)
	sum := crc64.Checksum(body, table)

	out := make([]byte, len(body)+8)
	copy(out, body)
	for i := 0; i < 8; i++ {
		out[len(body)+i] = byte(sum >> (8 * uint(i)))
	}
	return out
}
