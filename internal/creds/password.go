/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package creds

import (
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/janus-directory/janus/internal/codec"
	"github.com/janus-directory/janus/internal/directory"
	"golang.org/x/crypto/md4" //nolint:staticcheck // NT hashes are defined over MD4
)

// Credentials is password material in one of its two source forms: a clear
// password or a Kerberos key set. Stage buffers the credential attributes and
// the pwdLastSet timestamp into the entry's pending changeset, so that one
// Save carries both and observers never see new password bytes with a stale
// rotation time. Controls returns the request controls that the subsequent
// Save must carry.
type Credentials interface {
	Stage(entry *directory.Entry, now time.Time) error
	Controls() []goldap.Control
}

// ClearText is a clear password.
type ClearText string

// UnicodePwd renders the password in the external store's wire form for
// clear-text password changes: the password in double quotes, encoded as
// UTF-16LE.
func (p ClearText) UnicodePwd() []byte {
	return encodeUTF16LE(`"` + string(p) + `"`)
}

// NTHash derives the NT hash of the password.
func (p ClearText) NTHash() []byte {
	hash := md4.New()
	hash.Write(encodeUTF16LE(string(p)))
	return hash.Sum(nil)
}

// Stage implements the Credentials interface.
func (p ClearText) Stage(entry *directory.Entry, now time.Time) error {
	entry.Set("unicodePwd", string(p.UnicodePwd()))
	entry.Set("pwdLastSet", codec.NTTimeOf(now).String())
	return nil
}

// Controls implements the Credentials interface. Clear passwords go through
// the store's own hashing, so no controls are needed.
func (p ClearText) Controls() []goldap.Control {
	return nil
}
