/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package grammars contains explicit implementations of several regex grammars.
//
// These implementations are used to avoid pulling the entire regex engine into
// the sync engine's hot path; account names are checked before every write.
package grammars

import (
	"strings"
)

const (
	// AccountNameRegex is a regex for matching account names (sAMAccountName).
	// The character set follows the restrictions documented for AD-compatible
	// directories. Interior spaces are allowed (the well-known groups carry
	// them), but leading/trailing spaces are not; additionally the name must
	// not start with a dash, must not end with a dot, and is bounded to
	// 20 bytes.
	//
	// This is only shown for documentation purposes here; use func IsAccountName instead.
	AccountNameRegex = `^[^-\\/"\[\]:;|=,+*?<>@\x00-\x20\x7f-\xff](?:[^\\/"\[\]:;|=,+*?<>@\x00-\x1f\x7f-\xff]{0,18}[^\\/"\[\]:;|=,+*?<>@.\x00-\x20\x7f-\xff])?$`

	// DomainSuffixRegex is a regex for matching LDAP base DNs like `dc=example,dc=com`.
	//
	// This is only shown for documentation purposes here; use func IsDomainSuffix instead.
	DomainSuffixRegex = `^dc=[a-z0-9_-]+(?:,dc=[a-z0-9_-]+)*$`

	// KerberosRealmRegex is a regex for matching Kerberos realm names like `EXAMPLE.COM`.
	//
	// This is only shown for documentation purposes here; use func IsKerberosRealm instead.
	KerberosRealmRegex = `^[A-Z0-9-]+(?:\.[A-Z0-9-]+)*$`
)

const accountNameMaxLength = 20

// IsAccountName returns whether the string matches AccountNameRegex and does
// not end with a dot.
func IsAccountName(input string) bool {
	if len(input) == 0 || len(input) > accountNameMaxLength {
		return false
	}
	if input[0] == '-' {
		return false
	}
	if input[len(input)-1] == '.' {
		return false
	}
	return checkEachByte([]byte(input), checkByteInAccountName)
}

func checkByteInAccountName(idx, length int, b byte) bool {
	if b < 0x20 || b >= 0x7f {
		return false // control characters and non-ASCII bytes
	}
	if b == ' ' {
		// interior spaces are fine ("Domain Admins"), leading/trailing are not
		return idx > 0 && idx < length-1
	}
	switch b {
	case '"', '/', '\\', '[', ']', ':', ';', '|', '=', ',', '+', '*', '?', '<', '>', '@':
		return false
	default:
		return true
	}
}

// IsDomainSuffix returns whether the string matches DomainSuffixRegex.
func IsDomainSuffix(input string) bool {
	for _, field := range strings.Split(input, ",") {
		key, value, found := strings.Cut(field, "=")
		if !found {
			return false
		}
		if key != "dc" {
			return false
		}
		if len(value) == 0 {
			return false
		}
		if !checkEachByte([]byte(value), checkByteInDomainComponent) {
			return false
		}
	}
	return true
}

func checkByteInDomainComponent(idx, length int, b byte) bool {
	_ = length
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_':
		return true
	default:
		return false
	}
}

// IsKerberosRealm returns whether the string matches KerberosRealmRegex.
func IsKerberosRealm(input string) bool {
	for _, label := range strings.Split(input, ".") {
		if len(label) == 0 {
			return false
		}
		if !checkEachByte([]byte(label), checkByteInRealmLabel) {
			return false
		}
	}
	return true
}

func checkByteInRealmLabel(idx, length int, b byte) bool {
	_, _ = idx, length
	switch {
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '-':
		return true
	default:
		return false
	}
}

// Helper function: Returns whether each byte in the input is accepted by `check`.
func checkEachByte(bytes []byte, check func(idx, length int, b byte) bool) bool {
	l := len(bytes)
	for idx, b := range bytes {
		if !check(idx, l, b) {
			return false
		}
	}
	return true
}
