/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package grammars

import (
	"regexp"
	"testing"
)

func FuzzIsDomainSuffix(f *testing.F) {
	domainSuffixRx := regexp.MustCompile(DomainSuffixRegex)
	f.Add("dc=example,dc=com")
	f.Fuzz(func(t *testing.T, input string) {
		actual := IsDomainSuffix(input)
		expected := domainSuffixRx.MatchString(input)
		if actual != expected {
			t.Errorf("expected IsDomainSuffix(%q) = %t, but got %t", input, expected, actual)
		}
	})
}

func FuzzIsKerberosRealm(f *testing.F) {
	kerberosRealmRx := regexp.MustCompile(KerberosRealmRegex)
	f.Add("EXAMPLE.COM")
	f.Add("SUB-1.EXAMPLE.ORG")
	f.Fuzz(func(t *testing.T, input string) {
		actual := IsKerberosRealm(input)
		expected := kerberosRealmRx.MatchString(input)
		if actual != expected {
			t.Errorf("expected IsKerberosRealm(%q) = %t, but got %t", input, expected, actual)
		}
	})
}
