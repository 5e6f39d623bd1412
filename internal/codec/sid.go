/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package codec implements bit-exact encoding and decoding of the identifier
// formats used by AD-compatible directories: security identifiers (SID),
// object GUIDs in their mixed-endian wire packing, and the 1601-epoch
// timestamp format.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wire layout of a SID:
//
//	byte 0     revision (always 1)
//	byte 1     sub-authority count (at most 15)
//	bytes 2-7  48-bit identifier authority, big-endian
//	then       count x 32-bit sub-authorities, little-endian
const (
	sidRevision          = 1
	sidMaxSubAuthorities = 15
	sidHeaderLength      = 8
)

var (
	errSIDTooShort         = errors.New("SID value is too short to decode")
	errSIDBadRevision      = errors.New("SID revision must be 1")
	errSIDTooManySubAuths  = errors.New("SID has more than 15 sub-authorities")
	errSIDLengthMismatch   = errors.New("SID length does not match its sub-authority count")
	errSIDStringMalformed  = errors.New(`SID string must have the form "S-1-<authority>-<subauthority>..."`)
	errSIDStringBadNumbers = errors.New("SID string contains a component that is not a valid number")
)

// SID is a Windows security identifier in its decoded form. The zero value is
// not a valid SID; it is returned alongside an error by the decoding
// functions.
type SID struct {
	Revision       uint8
	Authority      uint64
	SubAuthorities []uint32
}

// IsZero returns whether this is the invalid zero-valued SID.
func (s SID) IsZero() bool {
	return s.Revision == 0
}

// DecodeSID parses the binary wire form of a SID, e.g. the value of the
// objectSid attribute. Malformed input yields the zero SID and an error.
func DecodeSID(buf []byte) (SID, error) {
	if len(buf) < sidHeaderLength {
		return SID{}, errSIDTooShort
	}
	if buf[0] != sidRevision {
		return SID{}, errSIDBadRevision
	}
	count := int(buf[1])
	if count > sidMaxSubAuthorities {
		return SID{}, errSIDTooManySubAuths
	}
	if len(buf) != sidHeaderLength+4*count {
		return SID{}, errSIDLengthMismatch
	}

	sid := SID{Revision: buf[0]}
	for idx := 2; idx <= 7; idx++ {
		sid.Authority = sid.Authority<<8 | uint64(buf[idx])
	}
	for idx := 0; idx < count; idx++ {
		sub := binary.LittleEndian.Uint32(buf[sidHeaderLength+4*idx:])
		sid.SubAuthorities = append(sid.SubAuthorities, sub)
	}
	return sid, nil
}

// ParseSID parses the textual form of a SID, e.g. "S-1-5-21-...-500".
// Malformed input yields the zero SID and an error.
func ParseSID(input string) (SID, error) {
	fields := strings.Split(input, "-")
	if len(fields) < 3 || fields[0] != "S" {
		return SID{}, errSIDStringMalformed
	}
	if len(fields)-3 > sidMaxSubAuthorities {
		return SID{}, errSIDTooManySubAuths
	}

	revision, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil || revision != sidRevision {
		return SID{}, errSIDBadRevision
	}
	authority, err := strconv.ParseUint(fields[2], 10, 48)
	if err != nil {
		return SID{}, errSIDStringBadNumbers
	}

	sid := SID{Revision: uint8(revision), Authority: authority}
	for _, field := range fields[3:] {
		sub, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return SID{}, errSIDStringBadNumbers
		}
		sid.SubAuthorities = append(sid.SubAuthorities, uint32(sub))
	}
	return sid, nil
}

// Encode renders the binary wire form. Encode and DecodeSID are exact
// inverses for valid values.
func (s SID) Encode() []byte {
	buf := make([]byte, sidHeaderLength+4*len(s.SubAuthorities))
	buf[0] = s.Revision
	buf[1] = byte(len(s.SubAuthorities))
	for idx := 7; idx >= 2; idx-- {
		buf[idx] = byte(s.Authority >> (8 * (7 - idx)))
	}
	for idx, sub := range s.SubAuthorities {
		binary.LittleEndian.PutUint32(buf[sidHeaderLength+4*idx:], sub)
	}
	return buf
}

// String renders the textual form. String and ParseSID are exact inverses
// for valid values.
func (s SID) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "S-%d-%d", s.Revision, s.Authority)
	for _, sub := range s.SubAuthorities {
		fmt.Fprintf(&sb, "-%d", sub)
	}
	return sb.String()
}

// RID returns the relative identifier, i.e. the final sub-authority. This is
// what well-known account matching keys on. Returns 0 if there are no
// sub-authorities.
func (s SID) RID() uint32 {
	if len(s.SubAuthorities) == 0 {
		return 0
	}
	return s.SubAuthorities[len(s.SubAuthorities)-1]
}

// WithRID returns a copy of this SID with one more sub-authority appended.
// Applied to a domain SID, this yields the SID of the domain member with the
// given RID.
func (s SID) WithRID(rid uint32) SID {
	subs := make([]uint32, 0, len(s.SubAuthorities)+1)
	subs = append(subs, s.SubAuthorities...)
	subs = append(subs, rid)
	return SID{Revision: s.Revision, Authority: s.Authority, SubAuthorities: subs}
}
