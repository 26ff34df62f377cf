// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"crypto/md5"
	"encoding/hex"
)

// Digest computes the chunk checksum: the lowercase hex MD5 of data.
// The result is always DefaultChecksumLength characters.
func Digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ChunkDigest computes the checksum covering a location block and payload.
// Sequence position is not covered: a chunk replayed out of order after a
// resync verifies if its own digest matches.
func ChunkDigest(location, payload []byte) string {
	h := md5.New()
	h.Write(location)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
