package util

import "hash/fnv"

// Fingerprint computes a 4-byte FNV-1a hash of a signaling blob. Both peers
// print it next to the blob so a user can confirm the pasted text arrived
// intact without comparing hundreds of characters by eye.
func Fingerprint(blob string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(blob))
	return h.Sum32()
}
