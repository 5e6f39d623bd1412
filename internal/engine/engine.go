/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package engine implements the propagation algorithms that keep the two
// directory trees in sync: per-kind export (internal to external) and import
// (external to internal) of users, groups, contacts and organizational units,
// membership reconciliation, deletion with reference sweeping, and the bulk
// resynchronization pass.
package engine

import (
	"fmt"

	"github.com/janus-directory/janus/internal/directory"
	"github.com/janus-directory/janus/internal/link"
	"github.com/sapcc/go-bits/logg"
)

// IgnoreList decides which group names are skipped during synchronization.
// The config package provides an implementation backed by a live-reloaded
// file.
type IgnoreList interface {
	IsIgnored(groupName string) bool
}

// ReferenceSweeper removes references to a deleted identity from collaborating
// subsystems (share definitions, access-control lists). Sweepers run after the
// directory-side deletion; a failing sweeper is logged and does not block the
// others.
type ReferenceSweeper interface {
	// Name identifies the sweeper in logs.
	Name() string
	// SweepReferences removes all references to the given account name.
	SweepReferences(accountName string) error
}

// Options contains the engine's configuration.
type Options struct {
	// Realm is the Kerberos realm, used as key-derivation salt prefix.
	Realm string

	// IdmapRangeBegin and IdmapRangeEnd bound the UID/GID numbers that the
	// engine allocates for imported security principals. A principal with
	// RID r is mapped to IdmapRangeBegin + r.
	IdmapRangeBegin uint32
	IdmapRangeEnd   uint32

	// IgnoredGroups may be nil, in which case no group is ignored.
	IgnoredGroups IgnoreList

	// Sweepers run after each deletion.
	Sweepers []ReferenceSweeper
}

// Engine mediates between the two trees. Invocations for different entities
// are safe to run concurrently; invocations for the same entity must be
// serialized by the caller.
type Engine struct {
	internal *directory.Tree
	external *directory.Tree
	links    *link.Registry
	opts     Options
}

// New builds an Engine.
func New(internal, external *directory.Tree, links *link.Registry, opts Options) *Engine {
	return &Engine{internal: internal, external: external, links: links, opts: opts}
}

// Links exposes the link registry, e.g. for tools that only resolve
// counterparts without propagating changes.
func (e *Engine) Links() *link.Registry {
	return e.links
}

// State describes where one entity stands in the synchronization lifecycle.
type State int

const (
	// Absent means that no counterpart exists in the other tree.
	Absent State = iota
	// PendingCreate means that counterpart creation is underway. A failure
	// mid-creation rolls back to Absent.
	PendingCreate
	// Synchronized means that the counterpart exists, is linked, and its core
	// attributes match.
	Synchronized
	// Stale means that the counterpart exists but a core attribute differs.
	Stale
	// Deleted means that the counterpart was removed.
	Deleted
)

// String implements the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case PendingCreate:
		return "pending create"
	case Synchronized:
		return "synchronized"
	case Stale:
		return "stale"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("unknown state %d", int(s))
	}
}

// An attrPair maps one core attribute between the internal and the external
// schema.
type attrPair struct {
	internal string
	external string
}

// The enumerated core attribute sets. A mismatch in any of these makes the
// counterpart stale; everything else is left alone during updates.
var (
	userAttrPairs = []attrPair{
		{"cn", "displayName"},
		{"sn", "sn"},
		{"givenName", "givenName"},
		{"mail", "mail"},
		{"description", "description"},
	}
	groupAttrPairs = []attrPair{
		{"description", "description"},
		{"mail", "mail"},
	}
	contactAttrPairs = []attrPair{
		{"sn", "sn"},
		{"givenName", "givenName"},
		{"mail", "mail"},
		{"telephoneNumber", "telephoneNumber"},
		{"description", "description"},
	}
)

func (p attrPair) source(flavor directory.Flavor) string {
	if flavor == directory.Internal {
		return p.internal
	}
	return p.external
}

func (p attrPair) target(flavor directory.Flavor) string {
	if flavor == directory.Internal {
		return p.external
	}
	return p.internal
}

// Stages the core attributes of `source` onto `target`. Returns whether
// anything was actually staged.
func stageCoreAttributes(source, target *directory.Entry, pairs []attrPair) (bool, error) {
	flavor := source.Tree().Flavor()
	changed := false
	for _, pair := range pairs {
		values, err := source.GetAll(pair.source(flavor))
		if err != nil {
			return false, err
		}
		existing, err := target.GetAll(pair.target(flavor))
		if err != nil {
			return false, err
		}
		if stringSlicesEqual(values, existing) {
			continue
		}
		if len(values) == 0 {
			target.Unset(pair.target(flavor))
		} else {
			target.Set(pair.target(flavor), values...)
		}
		changed = true
	}
	return changed, nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}

// The standard containers for security principals. The external tree has a
// single CN=Users container; the internal tree splits users and groups into
// ou=Users and ou=Groups.
func standardContainers(tree *directory.Tree) []string {
	if tree.Flavor() == directory.External {
		return []string{"CN=Users," + tree.BaseDN()}
	}
	return []string{"ou=Users," + tree.BaseDN(), "ou=Groups," + tree.BaseDN()}
}

func isStandardContainer(tree *directory.Tree, dn string) bool {
	for _, container := range standardContainers(tree) {
		if equalDN(dn, container) {
			return true
		}
	}
	return false
}

// Default container for counterparts of entries that sit in a standard
// container on the source side.
func defaultPrincipalContainer(tree *directory.Tree, kind link.Kind) string {
	if tree.Flavor() == directory.External {
		return "CN=Users," + tree.BaseDN()
	}
	if kind == link.Group {
		return "ou=Groups," + tree.BaseDN()
	}
	return "ou=Users," + tree.BaseDN()
}

// Resolves the container in the target tree under which the counterpart of
// `source` must be created. Sources directly below the base DN or below a
// standard principal container map to the target's standard container; all
// other parents must be mirrored OUs, and a parent without a counterpart is
// an error because an entry cannot be created in a container that does not
// exist on the other side.
func (e *Engine) targetContainerFor(source *directory.Entry, kind link.Kind) (string, error) {
	sourceTree := source.Tree()
	targetTree := e.otherTree(sourceTree)

	parentDN, err := source.ParentDN()
	if err != nil {
		return "", err
	}
	if equalDN(parentDN, sourceTree.BaseDN()) || isStandardContainer(sourceTree, parentDN) {
		return defaultPrincipalContainer(targetTree, kind), nil
	}

	parent, err := sourceTree.Fetch(directory.ByDN(parentDN))
	if err != nil {
		return "", err
	}
	counterpart, err := e.links.FindCounterpart(parent, link.OrgUnit)
	if err != nil {
		if directory.IsKind(err, directory.NotFound) {
			return "", directory.NewError(directory.NotFound, "resolve parent container", parentDN,
				fmt.Errorf("container has no counterpart in the %s tree", targetTree.Flavor().String()))
		}
		return "", err
	}
	return counterpart.DN()
}

func (e *Engine) otherTree(tree *directory.Tree) *directory.Tree {
	if tree.Flavor() == directory.Internal {
		return e.external
	}
	return e.internal
}

func equalDN(a, b string) bool {
	return normalizeDN(a) == normalizeDN(b)
}

func normalizeDN(dn string) string {
	result := make([]byte, 0, len(dn))
	skipSpace := true
	for idx := 0; idx < len(dn); idx++ {
		c := dn[idx]
		if c == ' ' && skipSpace {
			continue
		}
		skipSpace = c == ','
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		result = append(result, c)
	}
	return string(result)
}

// Undoes a partial creation after a failure mid-creation: the half-configured
// counterpart is deleted, and any link attributes that were already written
// onto the source are removed again, so that the pair returns to the unlinked
// state and the next attempt starts from scratch. The rollback itself runs on
// a best-effort basis; if it fails too, the failure is logged but the
// original error wins.
func (e *Engine) rollbackCreation(source, created *directory.Entry, cause error) {
	dn, err := created.DN()
	if err != nil {
		dn = "<unknown>"
	}
	logg.Error("rolling back creation of %s: %s", dn, cause.Error())
	err = created.Delete()
	if err != nil {
		logg.Error("rollback of %s failed, manual cleanup may be needed: %s", dn, err.Error())
	}
	err = e.links.Dissolve(source)
	if err != nil {
		logg.Error("cannot unlink %s during rollback, manual cleanup may be needed: %s",
			describeDN(source), err.Error())
	}
}
