/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package codec

import (
	"errors"

	"github.com/google/uuid"
)

var errGUIDWrongLength = errors.New("GUID value must be exactly 16 bytes")

// GUID is a 128-bit object identifier. It is stable across renames and moves
// of the object it identifies.
//
// The textual form is the usual RFC 4122 rendering. The wire form used by the
// objectGUID attribute is mixed-endian: the first three groups are packed
// little-endian, the remaining two big-endian.
type GUID struct {
	uuid uuid.UUID
}

// ParseGUID parses the textual form of a GUID.
func ParseGUID(input string) (GUID, error) {
	u, err := uuid.Parse(input)
	if err != nil {
		return GUID{}, err
	}
	return GUID{uuid: u}, nil
}

// DecodeGUID parses the mixed-endian wire form of a GUID.
func DecodeGUID(buf []byte) (GUID, error) {
	if len(buf) != 16 {
		return GUID{}, errGUIDWrongLength
	}
	u, err := uuid.FromBytes(swapGUIDGroups(buf))
	if err != nil {
		return GUID{}, err
	}
	return GUID{uuid: u}, nil
}

// Encode renders the mixed-endian wire form. Encode and DecodeGUID are exact
// inverses.
func (g GUID) Encode() []byte {
	buf := g.uuid // uuid.UUID is a [16]byte
	return swapGUIDGroups(buf[:])
}

// String renders the textual form. String and ParseGUID are exact inverses
// up to letter case (output is lowercase).
func (g GUID) String() string {
	return g.uuid.String()
}

// IsZero returns whether this is the all-zeroes GUID, which no directory
// object ever carries.
func (g GUID) IsZero() bool {
	return g.uuid == uuid.UUID{}
}

// Reorders between RFC 4122 byte order and the mixed-endian wire packing.
// The operation is its own inverse.
func swapGUIDGroups(buf []byte) []byte {
	out := make([]byte, 16)
	copy(out, buf)
	out[0], out[1], out[2], out[3] = buf[3], buf[2], buf[1], buf[0]
	out[4], out[5] = buf[5], buf[4]
	out[6], out[7] = buf[7], buf[6]
	return out
}
