/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import (
	"sort"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/janus-directory/janus/internal/codec"
)

// Flavor distinguishes the two directory trees. Each flavor has its own
// schema subset, so attribute names for common concepts differ.
type Flavor int

const (
	// Internal is the OpenLDAP tree with the POSIX/inetOrgPerson schema.
	Internal Flavor = iota
	// External is the AD-compatible LDB tree.
	External
)

// String implements the fmt.Stringer interface.
func (f Flavor) String() string {
	if f == External {
		return "external"
	}
	return "internal"
}

// GUIDAttribute is the attribute that carries an entry's stable identifier
// in this flavor's schema.
func (f Flavor) GUIDAttribute() string {
	if f == External {
		return "objectGUID"
	}
	return "entryUUID"
}

// The external tree stores GUIDs in the mixed-endian wire packing; the
// internal tree stores them as text.
func (f Flavor) guidFilterValue(guid codec.GUID) string {
	if f == External {
		return goldap.EscapeFilter(string(guid.Encode()))
	}
	return goldap.EscapeFilter(guid.String())
}

// Tree is a handle on one directory tree: its flavor, its base DN, and the
// connection provider through which all access flows.
type Tree struct {
	flavor   Flavor
	baseDN   string
	provider *Provider
}

// NewTree builds a Tree.
func NewTree(flavor Flavor, baseDN string, provider *Provider) *Tree {
	return &Tree{flavor: flavor, baseDN: baseDN, provider: provider}
}

// Flavor returns which of the two trees this is.
func (t *Tree) Flavor() Flavor {
	return t.flavor
}

// BaseDN returns the root of this tree.
func (t *Tree) BaseDN() string {
	return t.baseDN
}

// Entry returns a handle on the entry with the given identity. No I/O happens
// until an attribute is read or the entry is saved.
func (t *Tree) Entry(ident Identity) *Entry {
	return &Entry{tree: t, ident: ident}
}

// Fetch resolves the identity eagerly and fails with NotFound if no entry
// matches.
func (t *Tree) Fetch(ident Identity) (*Entry, error) {
	entry := t.Entry(ident)
	err := entry.fetch()
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Create adds a new entry below this tree and returns a handle on it.
// Attributes with no values are skipped.
func (t *Tree) Create(dn string, attrs map[string][]string) (*Entry, error) {
	req := goldap.AddRequest{
		DN:         dn,
		Attributes: make([]goldap.Attribute, 0, len(attrs)),
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if len(attrs[name]) > 0 {
			req.Attributes = append(req.Attributes, goldap.Attribute{Type: name, Vals: attrs[name]})
		}
	}

	err := t.provider.Do(func(conn Conn) error {
		return classify("create", dn, conn.Add(req))
	})
	if err != nil {
		return nil, err
	}
	return t.Entry(ByDN(dn)), nil
}

// Search runs a subtree search below the given DN and returns handles on all
// matching entries, with the requested attributes pre-fetched. An empty
// baseDN searches the whole tree.
func (t *Tree) Search(baseDN, filter string, attrs ...string) ([]*Entry, error) {
	if baseDN == "" {
		baseDN = t.baseDN
	}
	req := goldap.SearchRequest{
		BaseDN:     baseDN,
		Scope:      goldap.ScopeWholeSubtree,
		Filter:     filter,
		Attributes: attrs,
	}

	var result *goldap.SearchResult
	err := t.provider.Do(func(conn Conn) (err error) {
		result, err = conn.Search(req)
		return classify("search", baseDN, err)
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(result.Entries))
	for _, found := range result.Entries {
		entries = append(entries, t.entryFromSearchResult(found))
	}
	return entries, nil
}

func (t *Tree) entryFromSearchResult(found *goldap.Entry) *Entry {
	attrs := make(map[string][]string, len(found.Attributes))
	for _, attr := range found.Attributes {
		values := make([]string, len(attr.ByteValues))
		for idx, buf := range attr.ByteValues {
			values[idx] = string(buf)
		}
		attrs[strings.ToLower(attr.Name)] = values
	}
	return &Entry{tree: t, ident: ByDN(found.DN), dn: found.DN, attrs: attrs, fetched: true}
}
