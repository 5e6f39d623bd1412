/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package engine_test

import (
	"errors"
	"strings"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/janus-directory/janus/internal/codec"
	"github.com/janus-directory/janus/internal/directory"
	"github.com/janus-directory/janus/internal/engine"
	"github.com/janus-directory/janus/internal/link"
	"github.com/janus-directory/janus/internal/test"
)

func (f fixture) seedInternalGroup(t *testing.T, name string, memberUids []string, extraAttrs map[string][]string) *directory.Entry {
	t.Helper()
	attrs := map[string][]string{
		"objectClass": {"posixGroup"},
		"cn":          {name},
		"gidNumber":   {"2000"},
		"memberUid":   memberUids,
	}
	for attr, values := range extraAttrs {
		attrs[attr] = values
	}
	dn := "cn=" + name + ",ou=Groups," + baseDN
	f.internalDouble.SeedEntry(dn, attrs)
	entry, err := f.internalTree.Fetch(directory.ByDN(dn))
	test.ExpectNoError(t, err)
	return entry
}

func TestExportGroupComputesGroupType(t *testing.T) {
	f := makeFixture(t, engine.Options{})

	//a group with a POSIX GID becomes a security group
	source := f.seedInternalGroup(t, "devs", nil, nil)
	test.ExpectNoError(t, f.engine.ExportGroup(source))
	if actual := f.externalDouble.AttrValue("CN=devs,CN=Users,"+baseDN, "groupType"); actual != "-2147483646" {
		t.Errorf("expected a global security group, but groupType = %q", actual)
	}

	//a mail-only group becomes a distribution group
	source = f.seedInternalGroup(t, "newsletter", nil, map[string][]string{
		"gidNumber": nil,
		"mail":      {"news@example.org"},
	})
	test.ExpectNoError(t, f.engine.ExportGroup(source))
	if actual := f.externalDouble.AttrValue("CN=newsletter,CN=Users,"+baseDN, "groupType"); actual != "2" {
		t.Errorf("expected a global distribution group, but groupType = %q", actual)
	}
}

func TestExportGroupSkipsIgnored(t *testing.T) {
	f := makeFixture(t, engine.Options{IgnoredGroups: ignoreListStub{"printers"}})
	source := f.seedInternalGroup(t, "printers", nil, nil)

	test.ExpectNoError(t, f.engine.ExportGroup(source))
	if f.externalDouble.HasEntry("CN=printers,CN=Users," + baseDN) {
		t.Error("expected the ignored group not to be exported")
	}
}

func TestExportGroupNeverCreatesWellKnownGroups(t *testing.T) {
	f := makeFixture(t, engine.Options{})

	//without the pre-existing external object, exporting the well-known
	//group is an error, not a creation
	source := f.seedInternalGroup(t, "admins", nil, nil)
	err := f.engine.ExportGroup(source)
	if !directory.IsKind(err, directory.NotFound) {
		t.Fatalf("expected NotFound, but got %v", err)
	}
	if f.externalDouble.HasEntry("CN=admins,CN=Users," + baseDN) {
		t.Error("expected the well-known group not to be freshly created")
	}

	//with the pre-existing object, the export links instead of creating
	domainSID, err := codec.ParseSID(domainSIDStr)
	test.ExpectNoError(t, err)
	f.externalDouble.SeedEntryWithSID("CN=Domain Admins,CN=Users,"+baseDN,
		domainSID.WithRID(link.DomainAdminsRID), map[string][]string{
			"objectClass":    {"top", "group"},
			"sAMAccountName": {"Domain Admins"},
			"groupType":      {"-2147483646"},
		})
	test.ExpectNoError(t, f.engine.ExportGroup(source))
	if f.internalDouble.AttrValue("cn=admins,ou=Groups,"+baseDN, link.InternalLinkAttribute) == "" {
		t.Error("expected the well-known group to be linked to the pre-existing object")
	}
}

func TestImportGroupSkipsDistributionGroups(t *testing.T) {
	f := makeFixture(t, engine.Options{})
	f.externalDouble.SeedEntry("CN=newsletter,CN=Users,"+baseDN, map[string][]string{
		"objectClass":    {"top", "group"},
		"sAMAccountName": {"newsletter"},
		"groupType":      {"2"},
	})

	source := f.fetchExternal(t, "CN=newsletter,CN=Users,"+baseDN)
	test.ExpectNoError(t, f.engine.ImportGroup(source))
	if f.internalDouble.HasEntry("cn=newsletter,ou=Groups," + baseDN) {
		t.Error("expected the distribution group not to be imported")
	}
}

func TestImportGroupAllocatesGIDFromRID(t *testing.T) {
	f := makeFixture(t, engine.Options{})
	domainSID, err := codec.ParseSID(domainSIDStr)
	test.ExpectNoError(t, err)
	f.externalDouble.SeedEntryWithSID("CN=devs,CN=Users,"+baseDN, domainSID.WithRID(1105),
		map[string][]string{
			"objectClass":    {"top", "group"},
			"sAMAccountName": {"devs"},
			"groupType":      {"-2147483646"},
		})

	source := f.fetchExternal(t, "CN=devs,CN=Users,"+baseDN)
	test.ExpectNoError(t, f.engine.ImportGroup(source))

	//imported groups land in the standard internal Groups container
	if actual := f.internalDouble.AttrValue("cn=devs,ou=Groups,"+baseDN, "gidNumber"); actual != "101105" {
		t.Errorf("expected gidNumber 101105 (idmap base + RID), but got %q", actual)
	}
}

////////////////////////////////////////////////////////////////////////////////
// membership reconciliation

func TestReconcileMembers(t *testing.T) {
	f := makeFixture(t, engine.Options{})

	//internal group has members {alice, bob}; its external counterpart has
	//{bob, carol}; reconciliation must remove carol and add alice
	alice := f.seedInternalUser(t, "alice", nil)
	f.seedInternalUser(t, "bob", nil)
	test.ExpectNoError(t, f.engine.ExportUser(alice, nil, false))

	source := f.seedInternalGroup(t, "devs", []string{"alice", "bob"}, nil)
	test.ExpectNoError(t, f.engine.ExportGroup(source))

	members := f.externalDouble.AttrValues("CN=devs,CN=Users,"+baseDN, "member")
	if len(members) != 2 {
		t.Fatalf("expected 2 members after reconciliation, but got %v", members)
	}
	for _, member := range members {
		if !strings.HasPrefix(member, "CN=alice,") && !strings.HasPrefix(member, "CN=bob,") {
			t.Errorf("unexpected member %q", member)
		}
	}

	//bob's counterpart did not exist; reconciliation must have created it
	if !f.externalDouble.HasEntry("CN=bob,CN=Users," + baseDN) {
		t.Error("expected the missing member counterpart to be created on the fly")
	}

	//now remove alice internally and add carol, then export again
	f.seedInternalUser(t, "carol", nil)
	source.RemoveValue("memberUid", "alice")
	source.AddValue("memberUid", "carol")
	test.ExpectNoError(t, source.Save())
	test.ExpectNoError(t, f.engine.ExportGroup(source))

	members = f.externalDouble.AttrValues("CN=devs,CN=Users,"+baseDN, "member")
	if len(members) != 2 {
		t.Fatalf("expected 2 members after the second reconciliation, but got %v", members)
	}
	for _, member := range members {
		if strings.HasPrefix(member, "CN=alice,") {
			t.Error("expected alice to be removed from the external group")
		}
	}
}

func TestReconcileMembersIsolatesFailures(t *testing.T) {
	f := makeFixture(t, engine.Options{})
	f.seedInternalUser(t, "alice", nil)
	bob := f.seedInternalUser(t, "bob", nil)
	test.ExpectNoError(t, f.engine.ExportUser(bob, nil, false))

	//start out with {bob} synchronized, then grow the group to {alice, bob}
	source := f.seedInternalGroup(t, "devs", []string{"bob"}, nil)
	test.ExpectNoError(t, f.engine.ExportGroup(source))
	source.AddValue("memberUid", "alice")
	test.ExpectNoError(t, source.Save())

	//sabotage the on-the-fly creation of alice's counterpart: her add must
	//fail, but bob must stay a member
	f.externalDouble.FailNext("add", goldap.NewError(goldap.LDAPResultObjectClassViolation,
		errors.New("no can do")))
	err := f.engine.ExportGroup(source)
	if err == nil {
		t.Fatal("expected ExportGroup to report the failed member")
	}

	members := f.externalDouble.AttrValues("CN=devs,CN=Users,"+baseDN, "member")
	if len(members) != 1 || !strings.HasPrefix(members[0], "CN=bob,") {
		t.Errorf("expected bob to survive alice's failure, but members = %v", members)
	}
}

func TestReconcileMembersSkipsDanglingReferences(t *testing.T) {
	f := makeFixture(t, engine.Options{})
	alice := f.seedInternalUser(t, "alice", nil)
	test.ExpectNoError(t, f.engine.ExportUser(alice, nil, false))
	source := f.seedInternalGroup(t, "devs", []string{"alice"}, nil)
	test.ExpectNoError(t, f.engine.ExportGroup(source))

	//plant a member DN that points at nothing, then reconcile again
	target := f.fetchExternal(t, "CN=devs,CN=Users,"+baseDN)
	target.AddValue("member", "CN=ghost,CN=Users,"+baseDN)
	test.ExpectNoError(t, target.Save())

	target = f.fetchExternal(t, "CN=devs,CN=Users,"+baseDN)
	test.ExpectNoErrors(t, f.engine.ReconcileMembers(source, target))

	//alice is still a member; the dangling reference did not abort anything
	members := f.externalDouble.AttrValues("CN=devs,CN=Users,"+baseDN, "member")
	found := false
	for _, member := range members {
		if strings.HasPrefix(member, "CN=alice,") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected alice to stay a member, but members = %v", members)
	}
}

func TestReconcileMembersNestedGroupOneLevel(t *testing.T) {
	f := makeFixture(t, engine.Options{})
	f.seedInternalUser(t, "alice", nil)
	f.seedInternalGroup(t, "inner", []string{"alice"}, nil)
	source := f.seedInternalGroup(t, "outer", []string{"inner"}, nil)

	test.ExpectNoError(t, f.engine.ExportGroup(source))

	//the nested group was created as a shell and added as a member
	if !f.externalDouble.HasEntry("CN=inner,CN=Users," + baseDN) {
		t.Fatal("expected the nested group's counterpart to be created")
	}
	members := f.externalDouble.AttrValues("CN=outer,CN=Users,"+baseDN, "member")
	if len(members) != 1 || !strings.HasPrefix(members[0], "CN=inner,") {
		t.Errorf("expected the nested group as a member, but got %v", members)
	}

	//bounded to one level: the shell's own members are not reconciled yet
	if len(f.externalDouble.AttrValues("CN=inner,CN=Users,"+baseDN, "member")) != 0 {
		t.Error("expected the nested group shell to stay empty")
	}
}
