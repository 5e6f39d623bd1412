/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package link_test

import (
	"strings"
	"testing"

	"github.com/janus-directory/janus/internal/codec"
	"github.com/janus-directory/janus/internal/directory"
	"github.com/janus-directory/janus/internal/link"
	"github.com/janus-directory/janus/internal/test"
)

const (
	internalBaseDN = "dc=example,dc=org"
	externalBaseDN = "dc=example,dc=org"
	domainSIDStr   = "S-1-5-21-1004336348-1177238915-682003330"
)

type fixture struct {
	internalTree   *directory.Tree
	externalTree   *directory.Tree
	internalDouble *test.DirectoryDouble
	externalDouble *test.DirectoryDouble
	registry       *link.Registry
}

func makeFixture(t *testing.T) fixture {
	t.Helper()
	domainSID, err := codec.ParseSID(domainSIDStr)
	test.ExpectNoError(t, err)

	internalDouble := test.NewInternalDirectory(internalBaseDN)
	externalDouble := test.NewExternalDirectory(externalBaseDN, domainSID)

	makeProvider := func(double *test.DirectoryDouble) *directory.Provider {
		return directory.NewProvider(
			directory.ConnectionOptions{URL: "ldap://double", MaxAttempts: 1, RetryDelay: 1},
			func(directory.ConnectionOptions) (directory.Conn, error) { return double, nil },
		)
	}
	internalTree := directory.NewTree(directory.Internal, internalBaseDN, makeProvider(internalDouble))
	externalTree := directory.NewTree(directory.External, externalBaseDN, makeProvider(externalDouble))

	registry := link.NewRegistry(internalTree, externalTree, link.Options{
		DomainAdminsGroup: "admins",
		AllUsersGroup:     "users",
	})
	return fixture{internalTree, externalTree, internalDouble, externalDouble, registry}
}

func (f fixture) seedUserPair(t *testing.T, name string) (internal, external *directory.Entry) {
	t.Helper()
	internalDN := "uid=" + name + ",ou=Users," + internalBaseDN
	externalDN := "cn=" + name + ",cn=Users," + externalBaseDN
	f.internalDouble.SeedEntry(internalDN, map[string][]string{
		"objectClass": {"posixAccount", "inetOrgPerson"},
		"uid":         {name},
	})
	f.externalDouble.SeedEntry(externalDN, map[string][]string{
		"objectClass":    {"top", "user"},
		"sAMAccountName": {name},
	})

	internal, err := f.internalTree.Fetch(directory.ByDN(internalDN))
	test.ExpectNoError(t, err)
	external, err = f.externalTree.Fetch(directory.ByDN(externalDN))
	test.ExpectNoError(t, err)
	return internal, external
}

func TestEstablishLinkIsIdempotent(t *testing.T) {
	f := makeFixture(t)
	internal, external := f.seedUserPair(t, "jdoe")

	test.ExpectNoError(t, f.registry.Establish(internal, external))

	externalGUID, err := external.GUID()
	test.ExpectNoError(t, err)
	internalGUID, err := internal.GUID()
	test.ExpectNoError(t, err)

	internalDN, _ := internal.DN()
	externalDN, _ := external.DN()
	if actual := f.internalDouble.AttrValue(internalDN, link.InternalLinkAttribute); actual != externalGUID.String() {
		t.Errorf("expected internal link value %q, but got %q", externalGUID.String(), actual)
	}
	if actual := f.externalDouble.AttrValue(externalDN, link.ExternalLinkAttribute); actual != internalGUID.String() {
		t.Errorf("expected external link value %q, but got %q", internalGUID.String(), actual)
	}
	linkClasses := f.internalDouble.AttrValues(internalDN, "objectClass")
	if !containsFold(linkClasses, link.InternalLinkClass) {
		t.Errorf("expected the link auxiliary class on the internal entry, but got %v", linkClasses)
	}

	//linking the same pair again is a no-op
	test.ExpectNoError(t, f.registry.Establish(internal, external))
}

func TestEstablishLinkRefusesRelink(t *testing.T) {
	f := makeFixture(t)
	internal, external := f.seedUserPair(t, "jdoe")
	test.ExpectNoError(t, f.registry.Establish(internal, external))

	_, otherExternal := f.seedUserPair(t, "impostor")
	err := f.registry.Establish(internal, otherExternal)
	if !directory.IsKind(err, directory.LinkInconsistency) {
		t.Fatalf("expected LinkInconsistency, but got %v", err)
	}

	//the original link survives
	externalGUID, err := external.GUID()
	test.ExpectNoError(t, err)
	internalDN, _ := internal.DN()
	if actual := f.internalDouble.AttrValue(internalDN, link.InternalLinkAttribute); actual != externalGUID.String() {
		t.Errorf("expected the original link to survive, but got %q", actual)
	}
}

func TestFindCounterpartViaLink(t *testing.T) {
	f := makeFixture(t)
	internal, external := f.seedUserPair(t, "jdoe")
	test.ExpectNoError(t, f.registry.Establish(internal, external))

	//resolution works in both directions
	found, err := f.registry.FindCounterpart(internal, link.User)
	test.ExpectNoError(t, err)
	foundDN, _ := found.DN()
	externalDN, _ := external.DN()
	if foundDN != externalDN {
		t.Errorf("expected counterpart %q, but got %q", externalDN, foundDN)
	}

	found, err = f.registry.FindCounterpart(external, link.User)
	test.ExpectNoError(t, err)
	foundDN, _ = found.DN()
	internalDN, _ := internal.DN()
	if foundDN != internalDN {
		t.Errorf("expected counterpart %q, but got %q", internalDN, foundDN)
	}
}

func TestFindCounterpartStaleLink(t *testing.T) {
	f := makeFixture(t)
	internal, _ := f.seedUserPair(t, "jdoe")

	internalDN, _ := internal.DN()
	f.internalDouble.SeedEntry(internalDN, map[string][]string{
		"objectClass":              {"posixAccount", "zentyalSambaLink"},
		"uid":                      {"jdoe"},
		link.InternalLinkAttribute: {"11111111-2222-3333-4444-555555555555"},
	})

	stale, err := f.internalTree.Fetch(directory.ByDN(internalDN))
	test.ExpectNoError(t, err)
	_, err = f.registry.FindCounterpart(stale, link.User)
	if !directory.IsKind(err, directory.NotFound) {
		t.Errorf("expected NotFound for a stale link, but got %v", err)
	}
}

func TestFindCounterpartFallbackByAccountName(t *testing.T) {
	f := makeFixture(t)
	internal, external := f.seedUserPair(t, "jdoe")

	found, err := f.registry.FindCounterpart(internal, link.User)
	test.ExpectNoError(t, err)
	foundDN, _ := found.DN()
	externalDN, _ := external.DN()
	if foundDN != externalDN {
		t.Errorf("expected counterpart %q, but got %q", externalDN, foundDN)
	}

	//the successful fallback match established the link on both sides
	internalDN, _ := internal.DN()
	if f.internalDouble.AttrValue(internalDN, link.InternalLinkAttribute) == "" {
		t.Error("expected the fallback match to establish the internal link")
	}
	if f.externalDouble.AttrValue(externalDN, link.ExternalLinkAttribute) == "" {
		t.Error("expected the fallback match to establish the external link")
	}
}

func TestFindCounterpartFallbackBuiltInGroup(t *testing.T) {
	f := makeFixture(t)

	domainSID, err := codec.ParseSID(domainSIDStr)
	test.ExpectNoError(t, err)
	f.externalDouble.SeedEntryWithSID("cn=Domain Admins,cn=Users,"+externalBaseDN,
		domainSID.WithRID(link.DomainAdminsRID), map[string][]string{
			"objectClass":    {"top", "group"},
			"sAMAccountName": {"Domain Admins"},
		})
	f.internalDouble.SeedEntry("cn=admins,ou=Groups,"+internalBaseDN, map[string][]string{
		"objectClass": {"posixGroup"},
		"cn":          {"admins"},
	})

	//internal "admins" resolves to the external group with RID 512 even
	//though the names differ
	internal, err := f.internalTree.Fetch(directory.ByDN("cn=admins,ou=Groups," + internalBaseDN))
	test.ExpectNoError(t, err)
	found, err := f.registry.FindCounterpart(internal, link.Group)
	test.ExpectNoError(t, err)
	foundDN, _ := found.DN()
	if foundDN != "cn=Domain Admins,cn=Users,"+externalBaseDN {
		t.Errorf("expected the well-known group, but got %q", foundDN)
	}

	//and back: the external group resolves to "admins" by RID, not by name
	external, err := f.externalTree.Fetch(directory.ByDN("cn=Domain Admins,cn=Users," + externalBaseDN))
	test.ExpectNoError(t, err)
	found, err = f.registry.FindCounterpart(external, link.Group)
	test.ExpectNoError(t, err)
	foundDN, _ = found.DN()
	if foundDN != "cn=admins,ou=Groups,"+internalBaseDN {
		t.Errorf("expected the internal admins group, but got %q", foundDN)
	}
}

func TestFindCounterpartFallbackOrgUnit(t *testing.T) {
	f := makeFixture(t)
	f.internalDouble.SeedEntry("ou=Staff,"+internalBaseDN, map[string][]string{
		"objectClass": {"organizationalUnit"},
		"ou":          {"Staff"},
	})
	f.externalDouble.SeedEntry("ou=Staff,"+externalBaseDN, map[string][]string{
		"objectClass": {"top", "organizationalUnit"},
		"ou":          {"Staff"},
	})

	internal, err := f.internalTree.Fetch(directory.ByDN("ou=Staff," + internalBaseDN))
	test.ExpectNoError(t, err)
	found, err := f.registry.FindCounterpart(internal, link.OrgUnit)
	test.ExpectNoError(t, err)
	foundDN, _ := found.DN()
	if foundDN != "ou=Staff,"+externalBaseDN {
		t.Errorf("expected the mirrored OU, but got %q", foundDN)
	}
}

func TestFindCounterpartContactHasNoFallback(t *testing.T) {
	f := makeFixture(t)
	f.internalDouble.SeedEntry("cn=Jane Doe,ou=Contacts,"+internalBaseDN, map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"cn":          {"Jane Doe"},
	})

	internal, err := f.internalTree.Fetch(directory.ByDN("cn=Jane Doe,ou=Contacts," + internalBaseDN))
	test.ExpectNoError(t, err)
	_, err = f.registry.FindCounterpart(internal, link.Contact)
	if !directory.IsKind(err, directory.NotFound) {
		t.Errorf("expected NotFound for an unlinked contact, but got %v", err)
	}
}

func containsFold(values []string, wanted string) bool {
	for _, value := range values {
		if strings.EqualFold(value, wanted) {
			return true
		}
	}
	return false
}
