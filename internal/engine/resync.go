/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package engine

import (
	"sort"
	"strings"

	"github.com/janus-directory/janus/internal/directory"
	"github.com/janus-directory/janus/internal/link"
	"github.com/sapcc/go-bits/errext"
	"github.com/sapcc/go-bits/logg"
)

// ReportEntry is the outcome of synchronizing one entity during a bulk pass.
type ReportEntry struct {
	DN    string
	Kind  link.Kind
	State State
	Error error // nil unless State is Absent or Stale
}

// Report aggregates the outcomes of a bulk resynchronization. Failures are
// collected here instead of aborting the pass; the caller renders the report
// for the operator.
type Report struct {
	Entries []ReportEntry
}

// Errors collects the errors of all failed entries.
func (r Report) Errors() (errs errext.ErrorSet) {
	for _, entry := range r.Entries {
		if entry.Error != nil {
			errs.Addf("%s %s: %s", entry.Kind.String(), entry.DN, entry.Error.Error())
		}
	}
	return
}

// CountByState counts the entries in the given state.
func (r Report) CountByState(state State) int {
	count := 0
	for _, entry := range r.Entries {
		if entry.State == state {
			count++
		}
	}
	return count
}

// Resync walks both trees: first every internal organizational unit, user,
// group and contact is exported, then external-only entries are imported in
// the reverse sweep. OUs go first, parents before children, so that
// containers exist before the entries below them. Failures are isolated per
// entity and aggregated into the report. Password material does not travel
// during a bulk pass; credentials only move when they are set.
func (e *Engine) Resync() (Report, error) {
	var report Report

	err := e.resyncInternal(&report)
	if err != nil {
		return report, err
	}
	err = e.resyncExternal(&report)
	if err != nil {
		return report, err
	}

	logg.Info("resync done: %d synchronized, %d stale, %d absent",
		report.CountByState(Synchronized), report.CountByState(Stale), report.CountByState(Absent))
	return report, nil
}

func (e *Engine) resyncInternal(report *Report) error {
	orgUnits, err := e.internal.Search("", "(objectClass=organizationalUnit)", "*", "entryUUID")
	if err != nil {
		return err
	}
	sortByDepth(orgUnits)
	for _, source := range orgUnits {
		report.add(e, source, link.OrgUnit, e.ExportOrgUnit(source))
	}

	users, err := e.internal.Search("", "(objectClass=posixAccount)", "*", "entryUUID")
	if err != nil {
		return err
	}
	for _, source := range users {
		report.add(e, source, link.User, e.ExportUser(source, nil, false))
	}

	groups, err := e.internal.Search("", "(objectClass=posixGroup)", "*", "entryUUID")
	if err != nil {
		return err
	}
	for _, source := range groups {
		report.add(e, source, link.Group, e.ExportGroup(source))
	}

	contacts, err := e.internal.Search("", "(objectClass=inetOrgPerson)", "*", "entryUUID")
	if err != nil {
		return err
	}
	for _, source := range contacts {
		isAccount, err := source.HasValue("objectClass", "posixAccount")
		if err != nil {
			report.add(e, source, link.Contact, err)
			continue
		}
		if isAccount {
			continue // already handled as a user
		}
		report.add(e, source, link.Contact, e.ExportContact(source))
	}
	return nil
}

// The reverse sweep picks up external-only entries. Every entry that already
// carries a link was covered by the internal pass through its counterpart, so
// only unlinked entries are imported here.
func (e *Engine) resyncExternal(report *Report) error {
	orgUnits, err := e.unlinkedExternalEntries("(objectClass=organizationalUnit)")
	if err != nil {
		return err
	}
	sortByDepth(orgUnits)
	for _, source := range orgUnits {
		report.add(e, source, link.OrgUnit, e.ImportOrgUnit(source))
	}

	users, err := e.unlinkedExternalEntries("(objectClass=user)")
	if err != nil {
		return err
	}
	for _, source := range users {
		report.add(e, source, link.User, e.ImportUser(source))
	}

	groups, err := e.unlinkedExternalEntries("(objectClass=group)")
	if err != nil {
		return err
	}
	for _, source := range groups {
		report.add(e, source, link.Group, e.ImportGroup(source))
	}

	contacts, err := e.unlinkedExternalEntries("(objectClass=contact)")
	if err != nil {
		return err
	}
	for _, source := range contacts {
		report.add(e, source, link.Contact, e.ImportContact(source))
	}
	return nil
}

func (e *Engine) unlinkedExternalEntries(filter string) ([]*directory.Entry, error) {
	entries, err := e.external.Search("", filter, "*", "objectGUID")
	if err != nil {
		return nil, err
	}
	result := make([]*directory.Entry, 0, len(entries))
	for _, entry := range entries {
		linkValue, err := entry.Get(link.ExternalLinkAttribute)
		if err != nil {
			return nil, err
		}
		if linkValue == "" {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (r *Report) add(e *Engine, source *directory.Entry, kind link.Kind, err error) {
	dn, dnErr := source.DN()
	if dnErr != nil {
		dn = "<unresolved entry>"
	}

	state := Synchronized
	if err != nil {
		state = e.failureState(source, kind)
		logg.Error("resync of %s %s: %s", kind.String(), dn, err.Error())
	}
	r.Entries = append(r.Entries, ReportEntry{DN: dn, Kind: kind, State: state, Error: err})
}

// After a failure, the entity is Stale if a counterpart exists (an update or
// reconciliation went wrong) and Absent otherwise (creation failed and was
// rolled back).
func (e *Engine) failureState(source *directory.Entry, kind link.Kind) State {
	_, err := e.links.FindCounterpart(source, kind)
	if err == nil {
		return Stale
	}
	return Absent
}

func sortByDepth(entries []*directory.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		iDN, _ := entries[i].DN()
		jDN, _ := entries[j].DN()
		return strings.Count(iDN, ",") < strings.Count(jDN, ",")
	})
}
