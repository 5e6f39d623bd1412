/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package link implements the cross-tree foreign-key mechanism. Each entry in
// either tree may carry a reciprocal link attribute holding the counterpart's
// stable identifier; presence of the link means "already synchronized".
package link

import (
	"fmt"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/janus-directory/janus/internal/codec"
	"github.com/janus-directory/janus/internal/directory"
)

// Attribute and class names of the link schema. The internal side carries the
// external entry's objectGUID in an auxiliary class; the external side reuses
// the directory's stock external-object-ID attribute for the internal
// entryUUID.
const (
	InternalLinkAttribute = "msdsObjectGUID"
	InternalLinkClass     = "zentyalSambaLink"
	ExternalLinkAttribute = "msDS-ExternalDirectoryObjectId"
)

// Kind is the entity kind of a directory entry, which decides the fallback
// matching rule when no link exists yet.
type Kind int

const (
	User Kind = iota
	Group
	Contact
	OrgUnit
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case User:
		return "user"
	case Group:
		return "group"
	case Contact:
		return "contact"
	default:
		return "organizational unit"
	}
}

// Well-known RIDs of the built-in groups that exist in both trees from the
// start, but in different containers and under configurable internal names.
const (
	DomainAdminsRID uint32 = 512
	AllUsersRID     uint32 = 513
)

// Options configures fallback matching for the built-in groups.
type Options struct {
	// DomainAdminsGroup is the internal name of the group mirroring the
	// external group with RID 512.
	DomainAdminsGroup string
	// AllUsersGroup is the internal name of the group mirroring the external
	// group with RID 513.
	AllUsersGroup string
}

// Registry resolves entries in one tree to their counterparts in the other,
// and establishes the reciprocal link attributes.
type Registry struct {
	internal  *directory.Tree
	external  *directory.Tree
	opts      Options
	domainSID codec.SID // cached, read from the external base entry
}

// NewRegistry builds a Registry.
func NewRegistry(internal, external *directory.Tree, opts Options) *Registry {
	return &Registry{internal: internal, external: external, opts: opts}
}

// DomainSID returns the external domain's SID, reading it from the external
// tree's base entry on first use.
func (r *Registry) DomainSID() (codec.SID, error) {
	if !r.domainSID.IsZero() {
		return r.domainSID, nil
	}
	base, err := r.external.Fetch(directory.ByDN(r.external.BaseDN()))
	if err != nil {
		return codec.SID{}, err
	}
	sid, err := base.SID()
	if err != nil {
		return codec.SID{}, err
	}
	r.domainSID = sid
	return sid, nil
}

func (r *Registry) otherTree(entry *directory.Entry) *directory.Tree {
	if entry.Tree().Flavor() == directory.Internal {
		return r.external
	}
	return r.internal
}

func linkAttributeFor(flavor directory.Flavor) string {
	if flavor == directory.Internal {
		return InternalLinkAttribute
	}
	return ExternalLinkAttribute
}

// FindCounterpart resolves the entry's counterpart in the other tree. A
// present link attribute resolves directly by stable identifier; a link that
// points at nothing is stale and reported as NotFound. Without a link, a
// deterministic per-kind fallback rule matches pre-existing objects, and a
// successful fallback match establishes the link on both sides so that
// subsequent calls take the direct path.
func (r *Registry) FindCounterpart(entry *directory.Entry, kind Kind) (*directory.Entry, error) {
	flavor := entry.Tree().Flavor()
	linkValue, err := entry.Get(linkAttributeFor(flavor))
	if err != nil {
		return nil, err
	}

	if linkValue != "" {
		guid, err := codec.ParseGUID(linkValue)
		if err != nil {
			return nil, directory.NewError(directory.LinkInconsistency, "resolve link", describeEntry(entry),
				fmt.Errorf("malformed link value %q: %w", linkValue, err))
		}
		counterpart, err := r.otherTree(entry).Fetch(directory.ByGUID(guid))
		if directory.IsKind(err, directory.NotFound) {
			// stale link
			return nil, directory.NewError(directory.NotFound, "resolve link", describeEntry(entry),
				fmt.Errorf("link points at nonexistent object %s", guid.String()))
		}
		return counterpart, err
	}

	counterpart, err := r.fallbackMatch(entry, kind)
	if err != nil {
		return nil, err
	}

	var internal, external *directory.Entry
	if flavor == directory.Internal {
		internal, external = entry, counterpart
	} else {
		internal, external = counterpart, entry
	}
	err = r.Establish(internal, external)
	if err != nil {
		return nil, err
	}
	return counterpart, nil
}

// Establish writes the reciprocal link attributes onto both entries. It is
// idempotent: linking an already-linked pair is a no-op. An entry that
// already links to a *different* object is an inconsistency that is reported,
// never silently overwritten.
func (r *Registry) Establish(internal, external *directory.Entry) error {
	internalGUID, err := internal.GUID()
	if err != nil {
		return err
	}
	externalGUID, err := external.GUID()
	if err != nil {
		return err
	}

	err = stageLinkValue(internal, InternalLinkAttribute, externalGUID.String())
	if err != nil {
		return err
	}
	if internal.HasPendingChanges() {
		hasClass, err := internal.HasValue("objectClass", InternalLinkClass)
		if err != nil {
			return err
		}
		if !hasClass {
			internal.AddValue("objectClass", InternalLinkClass)
		}
		err = internal.Save()
		if err != nil {
			return err
		}
	}

	err = stageLinkValue(external, ExternalLinkAttribute, internalGUID.String())
	if err != nil {
		return err
	}
	return external.Save()
}

// Dissolve removes the link attributes from an entry, returning it to the
// unlinked state. Callers use this when the counterpart of a half-created
// pair has been torn down again. Dissolving an unlinked entry is a no-op.
func (r *Registry) Dissolve(entry *directory.Entry) error {
	attr := linkAttributeFor(entry.Tree().Flavor())
	value, err := entry.Get(attr)
	if err != nil {
		return err
	}
	if value == "" {
		return nil
	}

	entry.Unset(attr)
	if entry.Tree().Flavor() == directory.Internal {
		hasClass, err := entry.HasValue("objectClass", InternalLinkClass)
		if err != nil {
			return err
		}
		if hasClass {
			entry.RemoveValue("objectClass", InternalLinkClass)
		}
	}
	return entry.Save()
}

func stageLinkValue(entry *directory.Entry, attr, value string) error {
	existing, err := entry.Get(attr)
	if err != nil {
		return err
	}
	switch {
	case existing == "":
		entry.Set(attr, value)
		return nil
	case strings.EqualFold(existing, value):
		return nil
	default:
		return directory.NewError(directory.LinkInconsistency, "establish link", describeEntry(entry),
			fmt.Errorf("already linked to %s, refusing to relink to %s", existing, value))
	}
}

// Fallback matching rules, per kind:
//   - the built-in groups match by their well-known RID
//   - ordinary users and groups match by account name
//   - organizational units match by their path relative to the base DN
//   - contacts have no deterministic rule and never match
func (r *Registry) fallbackMatch(entry *directory.Entry, kind Kind) (*directory.Entry, error) {
	switch kind {
	case User:
		name, err := accountName(entry, kind)
		if err != nil {
			return nil, err
		}
		return r.matchByAccountName(entry, kind, name)
	case Group:
		name, err := accountName(entry, kind)
		if err != nil {
			return nil, err
		}
		if rid, isBuiltIn := r.builtInGroupRID(entry, name); isBuiltIn {
			return r.matchBuiltInGroup(entry, rid)
		}
		return r.matchByAccountName(entry, kind, name)
	case OrgUnit:
		return r.matchByRelativePath(entry)
	default:
		return nil, directory.NewError(directory.NotFound, "match counterpart", describeEntry(entry),
			fmt.Errorf("no fallback matching rule for kind %q", kind.String()))
	}
}

// IsBuiltInGroupName reports whether the given internal group name is
// configured to mirror one of the well-known external groups. Built-in groups
// map to fixed, pre-existing objects and are never freshly created.
func (r *Registry) IsBuiltInGroupName(name string) bool {
	if name == "" {
		return false
	}
	return name == r.opts.DomainAdminsGroup || name == r.opts.AllUsersGroup
}

func (r *Registry) builtInGroupRID(entry *directory.Entry, name string) (uint32, bool) {
	if entry.Tree().Flavor() == directory.External {
		sid, err := entry.SID()
		if err == nil {
			rid := sid.RID()
			if rid == DomainAdminsRID || rid == AllUsersRID {
				return rid, true
			}
		}
		return 0, false
	}
	switch name {
	case r.opts.DomainAdminsGroup:
		return DomainAdminsRID, r.opts.DomainAdminsGroup != ""
	case r.opts.AllUsersGroup:
		return AllUsersRID, r.opts.AllUsersGroup != ""
	default:
		return 0, false
	}
}

func (r *Registry) matchBuiltInGroup(entry *directory.Entry, rid uint32) (*directory.Entry, error) {
	if entry.Tree().Flavor() == directory.Internal {
		domainSID, err := r.DomainSID()
		if err != nil {
			return nil, err
		}
		return r.external.Fetch(directory.BySID(domainSID.WithRID(rid)))
	}

	var name string
	if rid == DomainAdminsRID {
		name = r.opts.DomainAdminsGroup
	} else {
		name = r.opts.AllUsersGroup
	}
	if name == "" {
		return nil, directory.NewError(directory.NotFound, "match counterpart", describeEntry(entry),
			fmt.Errorf("no internal group configured for well-known RID %d", rid))
	}
	return r.matchByAccountName(entry, Group, name)
}

func accountName(entry *directory.Entry, kind Kind) (string, error) {
	var attr string
	if entry.Tree().Flavor() == directory.External {
		attr = "sAMAccountName"
	} else if kind == Group {
		attr = "cn"
	} else {
		attr = "uid"
	}

	name, err := entry.Get(attr)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", directory.NewError(directory.InvalidAttributeValue, "match counterpart", describeEntry(entry),
			fmt.Errorf("entry has no %s attribute", attr))
	}
	return name, nil
}

func (r *Registry) matchByAccountName(entry *directory.Entry, kind Kind, name string) (*directory.Entry, error) {
	other := r.otherTree(entry)

	var filter string
	if other.Flavor() == directory.External {
		class := "user"
		if kind == Group {
			class = "group"
		}
		filter = fmt.Sprintf("(&(objectClass=%s)(sAMAccountName=%s))", class, goldap.EscapeFilter(name))
	} else {
		if kind == Group {
			filter = fmt.Sprintf("(&(objectClass=posixGroup)(cn=%s))", goldap.EscapeFilter(name))
		} else {
			filter = fmt.Sprintf("(&(objectClass=posixAccount)(uid=%s))", goldap.EscapeFilter(name))
		}
	}

	matches, err := other.Search("", filter, "*", other.Flavor().GUIDAttribute())
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, directory.NewError(directory.NotFound, "match counterpart", describeEntry(entry),
			fmt.Errorf("no %s named %q in the %s tree", kind.String(), name, other.Flavor().String()))
	case 1:
		return matches[0], nil
	default:
		return nil, directory.NewError(directory.DuplicateIdentity, "match counterpart", describeEntry(entry),
			fmt.Errorf("%d entries named %q in the %s tree", len(matches), name, other.Flavor().String()))
	}
}

func (r *Registry) matchByRelativePath(entry *directory.Entry) (*directory.Entry, error) {
	dn, err := entry.DN()
	if err != nil {
		return nil, err
	}
	sourceBase := entry.Tree().BaseDN()
	relative := strings.TrimSuffix(strings.TrimSuffix(dn, sourceBase), ",")
	if relative == "" || len(relative) == len(dn) {
		return nil, directory.NewError(directory.NotFound, "match counterpart", describeEntry(entry),
			fmt.Errorf("DN %q is not below the base DN %q", dn, sourceBase))
	}

	other := r.otherTree(entry)
	counterpart, err := other.Fetch(directory.ByDN(relative + "," + other.BaseDN()))
	if err != nil {
		return nil, err
	}
	return counterpart, nil
}

func describeEntry(entry *directory.Entry) string {
	dn, err := entry.DN()
	if err != nil {
		return "<unresolved entry>"
	}
	return dn
}
