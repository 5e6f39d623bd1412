/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import (
	"fmt"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/janus-directory/janus/internal/codec"
)

// CriticalFlagAttribute marks entries that the backing directory protects.
// Entries carrying this flag must never be deleted by the sync engine.
const CriticalFlagAttribute = "isCriticalSystemObject"

// Entry is a handle on one directory entry. Attributes are fetched lazily on
// first access and cached; writes are staged into a PendingChangeSet and
// flushed by Save.
type Entry struct {
	tree    *Tree
	ident   Identity
	dn      string
	attrs   map[string][]string
	fetched bool
	pending PendingChangeSet
}

// Tree returns the tree this entry lives in.
func (e *Entry) Tree() *Tree {
	return e.tree
}

func normalizeAttrName(attr string) string {
	return strings.ToLower(attr)
}

// Resolves the identity into a concrete entry. By-DN identities resolve with
// a base-object search; by-GUID and by-SID identities search the whole tree
// for the respective attribute. The directory enforces uniqueness of all
// three identity forms, so more than one match means the server misbehaves.
func (e *Entry) fetch() error {
	if e.fetched {
		return nil
	}

	req := goldap.SearchRequest{
		Scope:      goldap.ScopeWholeSubtree,
		Attributes: []string{"*", e.tree.flavor.GUIDAttribute(), CriticalFlagAttribute},
	}
	switch {
	case e.ident.DN != "":
		req.BaseDN = e.ident.DN
		req.Scope = goldap.ScopeBaseObject
		req.Filter = "(objectClass=*)"
	case !e.ident.GUID.IsZero():
		req.BaseDN = e.tree.baseDN
		req.Filter = fmt.Sprintf("(%s=%s)",
			e.tree.flavor.GUIDAttribute(), e.tree.flavor.guidFilterValue(e.ident.GUID))
	case !e.ident.SID.IsZero():
		req.BaseDN = e.tree.baseDN
		req.Filter = fmt.Sprintf("(objectSid=%s)", goldap.EscapeFilter(string(e.ident.SID.Encode())))
	default:
		return makeError(NotFound, "fetch", e.ident.String(), nil)
	}

	var result *goldap.SearchResult
	err := e.tree.provider.Do(func(conn Conn) (err error) {
		result, err = conn.Search(req)
		return classify("fetch", e.ident.String(), err)
	})
	if err != nil {
		return err
	}

	switch len(result.Entries) {
	case 0:
		return makeError(NotFound, "fetch", e.ident.String(), nil)
	case 1:
		found := result.Entries[0]
		e.dn = found.DN
		e.attrs = make(map[string][]string, len(found.Attributes))
		for _, attr := range found.Attributes {
			values := make([]string, len(attr.ByteValues))
			for idx, buf := range attr.ByteValues {
				values[idx] = string(buf)
			}
			e.attrs[normalizeAttrName(attr.Name)] = values
		}
		e.fetched = true
		return nil
	default:
		return makeError(ProtocolError, "fetch", e.ident.String(),
			fmt.Errorf("directory returned %d entries where at most one is possible", len(result.Entries)))
	}
}

// Exists reports whether the identity resolves to an entry.
func (e *Entry) Exists() (bool, error) {
	err := e.fetch()
	if IsKind(err, NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DN returns the entry's current distinguished name.
func (e *Entry) DN() (string, error) {
	err := e.fetch()
	if err != nil {
		return "", err
	}
	return e.dn, nil
}

// Get returns the first value of the attribute, or "" if the attribute is
// absent.
func (e *Entry) Get(attr string) (string, error) {
	values, err := e.GetAll(attr)
	if err != nil || len(values) == 0 {
		return "", err
	}
	return values[0], nil
}

// GetAll returns all values of the attribute. Binary values survive intact
// inside the returned strings.
func (e *Entry) GetAll(attr string) ([]string, error) {
	err := e.fetch()
	if err != nil {
		return nil, err
	}
	return e.attrs[normalizeAttrName(attr)], nil
}

// HasValue reports whether the attribute carries the given value.
func (e *Entry) HasValue(attr, value string) (bool, error) {
	values, err := e.GetAll(attr)
	if err != nil {
		return false, err
	}
	for _, other := range values {
		if strings.EqualFold(other, value) {
			return true, nil
		}
	}
	return false, nil
}

// GUID returns the entry's stable identifier.
func (e *Entry) GUID() (codec.GUID, error) {
	value, err := e.Get(e.tree.flavor.GUIDAttribute())
	if err != nil {
		return codec.GUID{}, err
	}
	if e.tree.flavor == External {
		return codec.DecodeGUID([]byte(value))
	}
	return codec.ParseGUID(value)
}

// SID returns the security identifier of this entry. Only entries in the
// external tree that are security principals have one.
func (e *Entry) SID() (codec.SID, error) {
	value, err := e.Get("objectSid")
	if err != nil {
		return codec.SID{}, err
	}
	if value == "" {
		return codec.SID{}, makeError(NotFound, "read objectSid", e.ident.String(), nil)
	}
	return codec.DecodeSID([]byte(value))
}

// IsCritical reports whether the backing directory protects this entry
// against deletion.
func (e *Entry) IsCritical() (bool, error) {
	value, err := e.Get(CriticalFlagAttribute)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(value, "TRUE"), nil
}

// Set stages a replacement of all values of the attribute. Nothing is written
// until Save.
func (e *Entry) Set(attr string, values ...string) {
	e.pending.stage(opReplace, attr, values)
}

// AddValue stages the addition of one value to a multi-valued attribute.
func (e *Entry) AddValue(attr, value string) {
	e.pending.stage(opAddValues, attr, []string{value})
}

// RemoveValue stages the removal of one value from a multi-valued attribute.
func (e *Entry) RemoveValue(attr, value string) {
	e.pending.stage(opDeleteValues, attr, []string{value})
}

// Unset stages the removal of the whole attribute.
func (e *Entry) Unset(attr string) {
	e.pending.stage(opDeleteAttribute, attr, nil)
}

// HasPendingChanges returns whether there are staged changes that Save would
// flush.
func (e *Entry) HasPendingChanges() bool {
	return !e.pending.IsEmpty()
}

// Save flushes all staged changes in one modify request. An empty changeset
// is a no-op. The server's "no attributes to update" rejection is a benign
// race (nothing actually changed) and is treated as success; every other
// rejection surfaces with the server's verbatim diagnostic.
func (e *Entry) Save(controls ...goldap.Control) error {
	if e.pending.IsEmpty() {
		return nil
	}
	dn, err := e.DN()
	if err != nil {
		return err
	}

	req := e.pending.buildModifyRequest(dn, controls)
	err = e.tree.provider.Do(func(conn Conn) error {
		return classify("save", dn, conn.Modify(req))
	})
	if err != nil && !isBenignSaveRace(err) {
		return err
	}

	e.pending.applyToCache(e.attrs)
	e.pending.clear()
	return nil
}

func isBenignSaveRace(err error) bool {
	dirErr, ok := err.(*Error)
	if !ok || dirErr.cause == nil {
		return false
	}
	return strings.Contains(dirErr.cause.Error(), "no attributes to update")
}

// Rename changes the entry's RDN, optionally moving it below a new parent.
// The stable GUID is unaffected. Staged changes survive the rename and can be
// saved afterwards.
func (e *Entry) Rename(newRDN, newParentDN string) error {
	dn, err := e.DN()
	if err != nil {
		return err
	}

	req := goldap.ModifyDNRequest{
		DN:           dn,
		NewRDN:       newRDN,
		DeleteOldRDN: true,
		NewSuperior:  newParentDN,
	}
	err = e.tree.provider.Do(func(conn Conn) error {
		return classify("rename", dn, conn.ModifyDN(req))
	})
	if err != nil {
		return err
	}

	parentDN := newParentDN
	if parentDN == "" {
		_, rest, found := strings.Cut(dn, ",")
		if found {
			parentDN = rest
		}
	}
	e.dn = newRDN + "," + parentDN
	e.ident = ByDN(e.dn)
	return nil
}

// Delete removes the entry, unless it is flagged critical: system objects
// must never be deleted, and attempting to do so fails with
// RefusedCriticalDeletion while leaving the entry untouched.
func (e *Entry) Delete() error {
	critical, err := e.IsCritical()
	if err != nil {
		return err
	}
	if critical {
		return makeError(RefusedCriticalDeletion, "delete", e.ident.String(), nil)
	}

	dn, err := e.DN()
	if err != nil {
		return err
	}
	return e.tree.provider.Do(func(conn Conn) error {
		return classify("delete", dn, conn.Delete(goldap.DelRequest{DN: dn}))
	})
}

// ParentDN returns the DN of the entry's parent container.
func (e *Entry) ParentDN() (string, error) {
	dn, err := e.DN()
	if err != nil {
		return "", err
	}
	_, parent, found := strings.Cut(dn, ",")
	if !found {
		return "", nil
	}
	return parent, nil
}

// RDN returns the entry's relative distinguished name, e.g. "cn=jdoe".
func (e *Entry) RDN() (string, error) {
	dn, err := e.DN()
	if err != nil {
		return "", err
	}
	rdn, _, _ := strings.Cut(dn, ",")
	return rdn, nil
}
