/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janus-directory/janus/internal/test"
)

func validConfig() Config {
	return Config{
		Realm:              "EXAMPLE.ORG",
		InternalBaseDN:     "dc=example,dc=org",
		ExternalBaseDN:     "dc=example,dc=org",
		IdmapRangeBegin:    100000,
		IdmapRangeEnd:      200000,
		AllUsersGroup:      "users",
		DomainAdminsGroup:  "admins",
		ConnectMaxAttempts: 300,
		ConnectRetryDelay:  500 * time.Millisecond,
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	test.ExpectNoErrors(t, validConfig().Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Realm = "not a realm"
	cfg.InternalBaseDN = "ou=nope"
	cfg.IdmapRangeEnd = cfg.IdmapRangeBegin

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("expected 3 validation errors reported at once, but got %d: %v", len(errs), errs)
	}
}

func TestIgnoreListEmptyPath(t *testing.T) {
	list, err := NewIgnoreList("")
	test.ExpectNoError(t, err)
	defer list.Close()
	if list.IsIgnored("anything") {
		t.Error("expected an empty ignore list to ignore nothing")
	}
}

func TestIgnoreListLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-groups.ignore")
	err := os.WriteFile(path, []byte("# groups excluded from sync\nprinters\n\nlegacy-staff\n"), 0o644)
	test.ExpectNoError(t, err)

	list, err := NewIgnoreList(path)
	test.ExpectNoError(t, err)
	defer list.Close()

	for _, name := range []string{"printers", "legacy-staff"} {
		if !list.IsIgnored(name) {
			t.Errorf("expected %q to be ignored", name)
		}
	}
	for _, name := range []string{"devs", "# groups excluded from sync", ""} {
		if list.IsIgnored(name) {
			t.Errorf("expected %q not to be ignored", name)
		}
	}
}

func TestIgnoreListReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-groups.ignore")
	err := os.WriteFile(path, []byte("printers\n"), 0o644)
	test.ExpectNoError(t, err)

	list, err := NewIgnoreList(path)
	test.ExpectNoError(t, err)
	defer list.Close()

	err = os.WriteFile(path, []byte("legacy-staff\n"), 0o644)
	test.ExpectNoError(t, err)

	//the reload happens asynchronously
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if list.IsIgnored("legacy-staff") && !list.IsIgnored("printers") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected the ignore list to reload after the file changed")
}
