/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package test contains test doubles and assertion helpers shared by the
// package-level test suites.
package test

import (
	"fmt"
	"sort"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/janus-directory/janus/internal/codec"
)

// DirectoryDouble is an in-memory test double for the directory.Conn
// interface. It holds a flat map of entries, understands the small filter
// subset that the sync engine actually uses (presence and equality tests,
// conjunction, disjunction), and can be told to fail the next request of a
// given type to test error isolation and rollback paths.
type DirectoryDouble struct {
	baseDN     string
	entries    map[string]*doubleEntry // key: normalized DN
	order      []string                // insertion order of normalized DNs
	failNext   map[string][]error
	guidSerial uint32
	sidSerial  uint32
	domainSID  codec.SID // zero for the internal flavor
}

type doubleEntry struct {
	dn    string
	attrs map[string][]string // key: lowercased attribute name
}

// NewInternalDirectory builds a double for the internal (OpenLDAP-flavored)
// tree. Entries are assigned an entryUUID on creation.
func NewInternalDirectory(baseDN string) *DirectoryDouble {
	d := &DirectoryDouble{
		baseDN:   baseDN,
		entries:  make(map[string]*doubleEntry),
		failNext: make(map[string][]error),
	}
	d.SeedEntry(baseDN, map[string][]string{
		"objectClass": {"top", "organization"},
	})
	return d
}

// NewExternalDirectory builds a double for the external (AD-flavored) tree.
// Entries are assigned an objectGUID and an objectSid below the given domain
// SID on creation. The base entry carries the domain SID itself.
func NewExternalDirectory(baseDN string, domainSID codec.SID) *DirectoryDouble {
	d := &DirectoryDouble{
		baseDN:    baseDN,
		entries:   make(map[string]*doubleEntry),
		failNext:  make(map[string][]error),
		domainSID: domainSID,
	}
	d.SeedEntry(baseDN, map[string][]string{
		"objectClass": {"top", "domain"},
		"objectSid":   {string(domainSID.Encode())},
	})
	return d
}

// SeedEntry inserts an entry directly, bypassing the Conn interface. Missing
// identifier attributes are assigned like on a regular Add.
func (d *DirectoryDouble) SeedEntry(dn string, attrs map[string][]string) {
	entry := &doubleEntry{dn: dn, attrs: make(map[string][]string, len(attrs))}
	for name, values := range attrs {
		entry.attrs[strings.ToLower(name)] = append([]string(nil), values...)
	}
	d.assignIdentifiers(entry)
	key := normalizeDN(dn)
	if _, exists := d.entries[key]; !exists {
		d.order = append(d.order, key)
	}
	d.entries[key] = entry
}

// SeedEntryWithSID is SeedEntry with a fixed objectSid, for seeding
// well-known accounts.
func (d *DirectoryDouble) SeedEntryWithSID(dn string, sid codec.SID, attrs map[string][]string) {
	attrs["objectSid"] = []string{string(sid.Encode())}
	d.SeedEntry(dn, attrs)
}

// FailNext arranges for the next request of the given type ("search", "add",
// "modify", "modifydn" or "delete") to fail with the given error. Multiple
// calls queue up; a nil error queues a pass-through slot, so that a later
// request can be made to fail while the ones before it succeed.
func (d *DirectoryDouble) FailNext(op string, err error) {
	d.failNext[op] = append(d.failNext[op], err)
}

func (d *DirectoryDouble) takeInjectedFailure(op string) error {
	queue := d.failNext[op]
	if len(queue) == 0 {
		return nil
	}
	d.failNext[op] = queue[1:]
	return queue[0]
}

func (d *DirectoryDouble) assignIdentifiers(entry *doubleEntry) {
	if d.domainSID.IsZero() {
		if len(entry.attrs["entryuuid"]) == 0 {
			d.guidSerial++
			entry.attrs["entryuuid"] = []string{serialGUID(d.guidSerial).String()}
		}
		return
	}
	if len(entry.attrs["objectguid"]) == 0 {
		d.guidSerial++
		entry.attrs["objectguid"] = []string{string(serialGUID(d.guidSerial).Encode())}
	}
	if len(entry.attrs["objectsid"]) == 0 && isSecurityPrincipal(entry) {
		d.sidSerial++
		sid := d.domainSID.WithRID(1100 + d.sidSerial)
		entry.attrs["objectsid"] = []string{string(sid.Encode())}
	}
}

func isSecurityPrincipal(entry *doubleEntry) bool {
	for _, class := range entry.attrs["objectclass"] {
		if strings.EqualFold(class, "user") || strings.EqualFold(class, "group") {
			return true
		}
	}
	return false
}

func serialGUID(serial uint32) codec.GUID {
	guid, err := codec.ParseGUID(fmt.Sprintf("00000000-0000-0000-0000-%012d", serial))
	if err != nil {
		panic(err.Error())
	}
	return guid
}

func normalizeDN(dn string) string {
	fields := strings.Split(strings.ToLower(dn), ",")
	for idx, field := range fields {
		fields[idx] = strings.TrimSpace(field)
	}
	return strings.Join(fields, ",")
}

////////////////////////////////////////////////////////////////////////////////
// the directory.Conn interface

// Search implements the directory.Conn interface.
func (d *DirectoryDouble) Search(req goldap.SearchRequest) (*goldap.SearchResult, error) {
	if err := d.takeInjectedFailure("search"); err != nil {
		return nil, err
	}

	//RootDSE request (this is what the connection health check sends)
	if req.BaseDN == "" && req.Scope == goldap.ScopeBaseObject {
		return &goldap.SearchResult{Entries: []*goldap.Entry{{
			DN:         "",
			Attributes: []*goldap.EntryAttribute{goldap.NewEntryAttribute("supportedLDAPVersion", []string{"3"})},
		}}}, nil
	}

	matcher, err := parseFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	baseKey := normalizeDN(req.BaseDN)
	var result goldap.SearchResult
	for _, key := range d.order {
		entry := d.entries[key]
		if !inScope(key, baseKey, req.Scope) {
			continue
		}
		if matcher(entry) {
			result.Entries = append(result.Entries, renderEntry(entry))
		}
	}

	if req.Scope == goldap.ScopeBaseObject && len(result.Entries) == 0 {
		if _, exists := d.entries[baseKey]; !exists {
			return nil, goldap.NewError(goldap.LDAPResultNoSuchObject, fmt.Errorf("no such object: %s", req.BaseDN))
		}
	}
	return &result, nil
}

func inScope(key, baseKey string, scope int) bool {
	switch scope {
	case goldap.ScopeBaseObject:
		return key == baseKey
	default:
		return key == baseKey || strings.HasSuffix(key, ","+baseKey)
	}
}

func renderEntry(entry *doubleEntry) *goldap.Entry {
	names := make([]string, 0, len(entry.attrs))
	for name := range entry.attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &goldap.Entry{DN: entry.dn}
	for _, name := range names {
		attr := &goldap.EntryAttribute{Name: name, Values: entry.attrs[name]}
		for _, value := range entry.attrs[name] {
			attr.ByteValues = append(attr.ByteValues, []byte(value))
		}
		result.Attributes = append(result.Attributes, attr)
	}
	return result
}

// Add implements the directory.Conn interface.
func (d *DirectoryDouble) Add(req goldap.AddRequest) error {
	if err := d.takeInjectedFailure("add"); err != nil {
		return err
	}

	key := normalizeDN(req.DN)
	if _, exists := d.entries[key]; exists {
		return goldap.NewError(goldap.LDAPResultEntryAlreadyExists, fmt.Errorf("entry already exists: %s", req.DN))
	}

	entry := &doubleEntry{dn: req.DN, attrs: make(map[string][]string, len(req.Attributes))}
	for _, attr := range req.Attributes {
		entry.attrs[strings.ToLower(attr.Type)] = append([]string(nil), attr.Vals...)
	}
	d.assignIdentifiers(entry)
	d.entries[key] = entry
	d.order = append(d.order, key)
	return nil
}

// Modify implements the directory.Conn interface.
func (d *DirectoryDouble) Modify(req goldap.ModifyRequest) error {
	if err := d.takeInjectedFailure("modify"); err != nil {
		return err
	}

	entry, exists := d.entries[normalizeDN(req.DN)]
	if !exists {
		return goldap.NewError(goldap.LDAPResultNoSuchObject, fmt.Errorf("no such object: %s", req.DN))
	}

	for _, change := range req.Changes {
		attr := strings.ToLower(change.Modification.Type)
		values := change.Modification.Vals
		switch change.Operation {
		case goldap.ReplaceAttribute:
			entry.attrs[attr] = append([]string(nil), values...)
		case goldap.AddAttribute:
			entry.attrs[attr] = append(entry.attrs[attr], values...)
		case goldap.DeleteAttribute:
			if len(values) == 0 {
				delete(entry.attrs, attr)
			} else {
				entry.attrs[attr] = removeStrings(entry.attrs[attr], values)
				if len(entry.attrs[attr]) == 0 {
					delete(entry.attrs, attr)
				}
			}
		}
	}
	return nil
}

func removeStrings(values, toRemove []string) []string {
	var result []string
	for _, value := range values {
		removed := false
		for _, other := range toRemove {
			if value == other {
				removed = true
				break
			}
		}
		if !removed {
			result = append(result, value)
		}
	}
	return result
}

// ModifyDN implements the directory.Conn interface.
func (d *DirectoryDouble) ModifyDN(req goldap.ModifyDNRequest) error {
	if err := d.takeInjectedFailure("modifydn"); err != nil {
		return err
	}

	oldKey := normalizeDN(req.DN)
	entry, exists := d.entries[oldKey]
	if !exists {
		return goldap.NewError(goldap.LDAPResultNoSuchObject, fmt.Errorf("no such object: %s", req.DN))
	}

	parentDN := req.NewSuperior
	if parentDN == "" {
		_, rest, found := strings.Cut(entry.dn, ",")
		if found {
			parentDN = rest
		}
	}
	newDN := req.NewRDN + "," + parentDN

	//update the attribute named by the new RDN
	attrName, attrValue, found := strings.Cut(req.NewRDN, "=")
	if found {
		entry.attrs[strings.ToLower(attrName)] = []string{attrValue}
	}

	entry.dn = newDN
	newKey := normalizeDN(newDN)
	delete(d.entries, oldKey)
	d.entries[newKey] = entry
	for idx, key := range d.order {
		if key == oldKey {
			d.order[idx] = newKey
		}
	}
	return nil
}

// Delete implements the directory.Conn interface.
func (d *DirectoryDouble) Delete(req goldap.DelRequest) error {
	if err := d.takeInjectedFailure("delete"); err != nil {
		return err
	}

	key := normalizeDN(req.DN)
	if _, exists := d.entries[key]; !exists {
		return goldap.NewError(goldap.LDAPResultNoSuchObject, fmt.Errorf("no such object: %s", req.DN))
	}
	delete(d.entries, key)
	for idx, other := range d.order {
		if other == key {
			d.order = append(d.order[0:idx], d.order[idx+1:]...)
			break
		}
	}
	return nil
}

// Close implements the directory.Conn interface.
func (d *DirectoryDouble) Close() error {
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// assertion helpers

// HasEntry reports whether an entry with this DN exists.
func (d *DirectoryDouble) HasEntry(dn string) bool {
	_, exists := d.entries[normalizeDN(dn)]
	return exists
}

// AttrValues returns the values of the attribute on the entry with this DN,
// or nil if either does not exist.
func (d *DirectoryDouble) AttrValues(dn, attr string) []string {
	entry, exists := d.entries[normalizeDN(dn)]
	if !exists {
		return nil
	}
	return entry.attrs[strings.ToLower(attr)]
}

// AttrValue returns the first value of the attribute on the entry with this
// DN, or "".
func (d *DirectoryDouble) AttrValue(dn, attr string) string {
	values := d.AttrValues(dn, attr)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// EntryCount returns the number of entries, including seeded ones.
func (d *DirectoryDouble) EntryCount() int {
	return len(d.entries)
}
