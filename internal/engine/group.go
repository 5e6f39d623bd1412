/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package engine

import (
	"fmt"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/janus-directory/janus/internal/directory"
	"github.com/janus-directory/janus/internal/link"
	"github.com/sapcc/go-bits/errext"
	"github.com/sapcc/go-bits/logg"
)

// groupType values of the external schema, as signed decimal strings. The
// security flag is the sign bit, so the value cannot be cheaply flipped after
// creation and must be computed before the first write.
const (
	groupTypeSecurityGlobal     = "-2147483646"
	groupTypeDistributionGlobal = "2"
)

// ExportGroup propagates an internal group into the external tree, then
// reconciles its member list. Groups on the ignore list are skipped entirely.
// The well-known built-in groups map to fixed, pre-existing external objects
// and are never freshly created.
func (e *Engine) ExportGroup(source *directory.Entry) error {
	name, err := e.validatedAccountName(source, link.Group)
	if err != nil {
		return err
	}
	if e.isIgnored(name) {
		logg.Debug("skipping group %s (on the ignore list)", name)
		return nil
	}

	counterpart, err := e.links.FindCounterpart(source, link.Group)
	if err == nil {
		updateErr := e.updateCounterpart(source, counterpart, groupAttrPairs)
		if updateErr != nil {
			return updateErr
		}
		return e.reconcileMembersAsError(source, counterpart)
	}
	if !directory.IsKind(err, directory.NotFound) {
		return err
	}
	if e.links.IsBuiltInGroupName(name) {
		return directory.NewError(directory.NotFound, "export group", name,
			fmt.Errorf("the well-known group %q must already exist in the external tree", name))
	}

	counterpart, err = e.createExternalGroup(source, name)
	if err != nil {
		return err
	}
	logg.Info("group %s exported to %s tree", name, directory.External.String())
	return e.reconcileMembersAsError(source, counterpart)
}

func (e *Engine) createExternalGroup(source *directory.Entry, name string) (*directory.Entry, error) {
	container, err := e.targetContainerFor(source, link.Group)
	if err != nil {
		return nil, err
	}

	//security groups have a POSIX GID on the internal side, mail-only
	//distribution groups do not
	gidNumber, err := source.Get("gidNumber")
	if err != nil {
		return nil, err
	}
	groupType := groupTypeDistributionGlobal
	if gidNumber != "" {
		groupType = groupTypeSecurityGlobal
	}

	attrs := map[string][]string{
		"objectClass":    {"top", "group"},
		"sAMAccountName": {name},
		"groupType":      {groupType},
	}
	for _, attr := range []string{"description", "mail"} {
		values, err := source.GetAll(attr)
		if err != nil {
			return nil, err
		}
		attrs[attr] = values
	}

	created, err := e.external.Create("CN="+name+","+container, attrs)
	if err != nil {
		return nil, err
	}
	err = e.links.Establish(source, created)
	if err != nil {
		e.rollbackCreation(source, created, err)
		return nil, err
	}
	return created, nil
}

// ImportGroup propagates an external group into the internal tree, then
// reconciles its member list. Only security groups are imported; distribution
// groups have no POSIX representation.
func (e *Engine) ImportGroup(source *directory.Entry) error {
	name, err := e.validatedAccountName(source, link.Group)
	if err != nil {
		return err
	}
	if e.isIgnored(name) {
		logg.Debug("skipping group %s (on the ignore list)", name)
		return nil
	}

	groupType, err := source.Get("groupType")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(groupType, "-") {
		logg.Debug("skipping group %s (not a security group)", name)
		return nil
	}

	counterpart, err := e.links.FindCounterpart(source, link.Group)
	if err == nil {
		updateErr := e.updateCounterpart(source, counterpart, groupAttrPairs)
		if updateErr != nil {
			return updateErr
		}
		return e.reconcileMembersAsError(source, counterpart)
	}
	if !directory.IsKind(err, directory.NotFound) {
		return err
	}

	sid, err := source.SID()
	if err != nil {
		return err
	}
	if rid := sid.RID(); rid == link.DomainAdminsRID || rid == link.AllUsersRID {
		return directory.NewError(directory.NotFound, "import group", name,
			fmt.Errorf("the group with well-known RID %d must already exist in the internal tree", rid))
	}

	counterpart, err = e.createInternalGroup(source, name)
	if err != nil {
		return err
	}
	logg.Info("group %s imported into %s tree", name, directory.Internal.String())
	return e.reconcileMembersAsError(source, counterpart)
}

func (e *Engine) createInternalGroup(source *directory.Entry, name string) (*directory.Entry, error) {
	sid, err := source.SID()
	if err != nil {
		return nil, err
	}
	gidNumber, err := e.allocateIDNumber(name, sid.RID())
	if err != nil {
		return nil, err
	}

	container, err := e.targetContainerFor(source, link.Group)
	if err != nil {
		return nil, err
	}

	attrs := map[string][]string{
		"objectClass": {"posixGroup"},
		"cn":          {name},
		"gidNumber":   {fmt.Sprintf("%d", gidNumber)},
	}
	for _, attr := range []string{"description", "mail"} {
		values, err := source.GetAll(attr)
		if err != nil {
			return nil, err
		}
		attrs[attr] = values
	}

	created, err := e.internal.Create("cn="+name+","+container, attrs)
	if err != nil {
		return nil, err
	}
	err = e.links.Establish(created, source)
	if err != nil {
		e.rollbackCreation(source, created, err)
		return nil, err
	}
	return created, nil
}

func (e *Engine) isIgnored(groupName string) bool {
	return e.opts.IgnoredGroups != nil && e.opts.IgnoredGroups.IsIgnored(groupName)
}

////////////////////////////////////////////////////////////////////////////////
// membership reconciliation

// ReconcileMembers brings the target group's member list in line with the
// source group's. Members are keyed by account name rather than raw
// identifier, since the well-known groups live in different containers on
// each side. Surplus members are removed first, then missing members are
// added; a member whose counterpart does not exist yet is created on the fly,
// bounded to one level (a nested group is created as an empty shell, not
// recursively reconciled). Failures are isolated per member and aggregated,
// so one broken member never aborts reconciliation of the rest.
func (e *Engine) ReconcileMembers(source, target *directory.Entry) (errs errext.ErrorSet) {
	sourceNames, err := memberNames(source)
	if err != nil {
		errs.Add(err)
		return
	}
	targetNames, err := memberNames(target)
	if err != nil {
		errs.Add(err)
		return
	}

	for key, name := range targetNames {
		if _, wanted := sourceNames[key]; wanted {
			continue
		}
		err := e.removeMember(target, name)
		if err != nil {
			errs.Addf("cannot remove member %q: %s", name, err.Error())
		}
	}

	for key, name := range sourceNames {
		if _, present := targetNames[key]; present {
			continue
		}
		err := e.addMember(source, target, name)
		if err != nil {
			errs.Addf("cannot add member %q: %s", name, err.Error())
		}
	}
	return
}

func (e *Engine) reconcileMembersAsError(source, target *directory.Entry) error {
	errs := e.ReconcileMembers(source, target)
	if errs.IsEmpty() {
		return nil
	}
	for _, err := range errs {
		logg.Error("membership reconciliation: %s", err.Error())
	}
	dn, _ := target.DN()
	return fmt.Errorf("%d members of %s could not be reconciled", len(errs), dn)
}

// Returns the group's members as a map from canonical (lowercased) account
// name to the name's original spelling.
func memberNames(group *directory.Entry) (map[string]string, error) {
	result := make(map[string]string)
	if group.Tree().Flavor() == directory.Internal {
		names, err := group.GetAll("memberUid")
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			result[strings.ToLower(name)] = name
		}
		return result, nil
	}

	memberDNs, err := group.GetAll("member")
	if err != nil {
		return nil, err
	}
	for _, memberDN := range memberDNs {
		member, err := group.Tree().Fetch(directory.ByDN(memberDN))
		if directory.IsKind(err, directory.NotFound) {
			//a dangling reference must not abort reconciliation of the others
			logg.Error("ignoring dangling member %q of %s", memberDN, describeDN(group))
			continue
		}
		if err != nil {
			return nil, err
		}
		name, err := member.Get("sAMAccountName")
		if err != nil {
			return nil, err
		}
		if name != "" {
			result[strings.ToLower(name)] = name
		}
	}
	return result, nil
}

func (e *Engine) removeMember(target *directory.Entry, name string) error {
	if target.Tree().Flavor() == directory.Internal {
		target.RemoveValue("memberUid", name)
		return target.Save()
	}

	member, _, err := findPrincipalByName(target.Tree(), name)
	if err != nil {
		return err
	}
	memberDN, err := member.DN()
	if err != nil {
		return err
	}
	target.RemoveValue("member", memberDN)
	return target.Save()
}

func (e *Engine) addMember(source, target *directory.Entry, name string) error {
	member, kind, err := findPrincipalByName(source.Tree(), name)
	if err != nil {
		return err
	}

	counterpart, err := e.links.FindCounterpart(member, kind)
	if directory.IsKind(err, directory.NotFound) {
		err = e.forceCreateMember(member, kind, target.Tree().Flavor())
		if err != nil {
			return err
		}
		counterpart, err = e.links.FindCounterpart(member, kind)
	}
	if err != nil {
		return err
	}

	if target.Tree().Flavor() == directory.Internal {
		target.AddValue("memberUid", name)
		return target.Save()
	}
	counterpartDN, err := counterpart.DN()
	if err != nil {
		return err
	}
	target.AddValue("member", counterpartDN)
	return target.Save()
}

// Creates the counterpart of a member that is missing from the target tree.
// Nested groups are created as empty shells; their own members are picked up
// when that group is synchronized in turn.
func (e *Engine) forceCreateMember(member *directory.Entry, kind link.Kind, targetFlavor directory.Flavor) error {
	switch kind {
	case link.User:
		if targetFlavor == directory.External {
			return e.ExportUser(member, nil, false)
		}
		return e.ImportUser(member)
	default:
		name, err := e.validatedAccountName(member, link.Group)
		if err != nil {
			return err
		}
		if targetFlavor == directory.External {
			_, err = e.createExternalGroup(member, name)
		} else {
			_, err = e.createInternalGroup(member, name)
		}
		return err
	}
}

// Resolves an account name to a user or group entry within one tree.
func findPrincipalByName(tree *directory.Tree, name string) (*directory.Entry, link.Kind, error) {
	var filter string
	if tree.Flavor() == directory.External {
		filter = fmt.Sprintf("(&(|(objectClass=user)(objectClass=group))(sAMAccountName=%s))",
			goldap.EscapeFilter(name))
	} else {
		filter = fmt.Sprintf("(|(&(objectClass=posixAccount)(uid=%s))(&(objectClass=posixGroup)(cn=%s)))",
			goldap.EscapeFilter(name), goldap.EscapeFilter(name))
	}

	matches, err := tree.Search("", filter, "*", tree.Flavor().GUIDAttribute())
	if err != nil {
		return nil, 0, err
	}
	switch len(matches) {
	case 0:
		return nil, 0, directory.NewError(directory.NotFound, "resolve member", name, nil)
	case 1:
		kind := link.User
		isGroup, err := matches[0].HasValue("objectClass", "group")
		if err != nil {
			return nil, 0, err
		}
		isPosixGroup, err := matches[0].HasValue("objectClass", "posixGroup")
		if err != nil {
			return nil, 0, err
		}
		if isGroup || isPosixGroup {
			kind = link.Group
		}
		return matches[0], kind, nil
	default:
		return nil, 0, directory.NewError(directory.DuplicateIdentity, "resolve member", name,
			fmt.Errorf("%d principals share this name", len(matches)))
	}
}
