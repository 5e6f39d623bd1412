/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import (
	"github.com/janus-directory/janus/internal/codec"
)

// Identity identifies one entry within a tree, in whichever form the caller
// has at hand: by distinguished name (hierarchical, changes on rename), by
// GUID (stable across renames), or by SID (security principals only).
// Exactly one of the fields is set.
type Identity struct {
	DN   string
	GUID codec.GUID
	SID  codec.SID
}

// ByDN identifies an entry by its distinguished name.
func ByDN(dn string) Identity {
	return Identity{DN: dn}
}

// ByGUID identifies an entry by its stable 128-bit identifier.
func ByGUID(guid codec.GUID) Identity {
	return Identity{GUID: guid}
}

// BySID identifies a security principal by its SID.
func BySID(sid codec.SID) Identity {
	return Identity{SID: sid}
}

// String renders whichever identity form is set, for use in error messages
// and logs.
func (i Identity) String() string {
	switch {
	case i.DN != "":
		return i.DN
	case !i.GUID.IsZero():
		return "<" + i.GUID.String() + ">"
	case !i.SID.IsZero():
		return "<" + i.SID.String() + ">"
	default:
		return "<unidentified>"
	}
}
