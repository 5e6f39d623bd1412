/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package test

import (
	"fmt"
	"strconv"
	"strings"
)

// A tiny LDAP filter evaluator, covering only what the sync engine sends:
// presence tests, equality tests, conjunction and disjunction. Substring and
// extensible matches are not supported and fail loudly.
type filterMatcher func(*doubleEntry) bool

func parseFilter(filter string) (filterMatcher, error) {
	matcher, rest, err := parseFilterComponent(filter)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("trailing garbage in filter: %q", rest)
	}
	return matcher, nil
}

func parseFilterComponent(input string) (filterMatcher, string, error) {
	if !strings.HasPrefix(input, "(") {
		return nil, "", fmt.Errorf("expected '(' in filter at: %q", input)
	}
	body := input[1:]

	switch {
	case strings.HasPrefix(body, "&"), strings.HasPrefix(body, "|"):
		isAnd := body[0] == '&'
		body = body[1:]
		var subMatchers []filterMatcher
		for !strings.HasPrefix(body, ")") {
			sub, rest, err := parseFilterComponent(body)
			if err != nil {
				return nil, "", err
			}
			subMatchers = append(subMatchers, sub)
			body = rest
		}
		matcher := func(entry *doubleEntry) bool {
			for _, sub := range subMatchers {
				if sub(entry) != isAnd {
					return !isAnd
				}
			}
			return isAnd
		}
		return matcher, body[1:], nil

	default:
		end := strings.IndexByte(body, ')')
		if end < 0 {
			return nil, "", fmt.Errorf("unterminated filter component: %q", input)
		}
		component := body[:end]
		attr, value, found := strings.Cut(component, "=")
		if !found {
			return nil, "", fmt.Errorf("unsupported filter component: %q", component)
		}
		if strings.ContainsAny(value, "*") && value != "*" {
			return nil, "", fmt.Errorf("substring filters are not supported: %q", component)
		}
		attr = strings.ToLower(attr)

		var matcher filterMatcher
		if value == "*" {
			matcher = func(entry *doubleEntry) bool {
				return len(entry.attrs[attr]) > 0
			}
		} else {
			unescaped, err := unescapeFilterValue(value)
			if err != nil {
				return nil, "", err
			}
			matcher = func(entry *doubleEntry) bool {
				for _, other := range entry.attrs[attr] {
					if strings.EqualFold(other, unescaped) {
						return true
					}
				}
				return false
			}
		}
		return matcher, body[end+1:], nil
	}
}

// Reverses goldap.EscapeFilter: `\xx` hex escapes become raw bytes.
func unescapeFilterValue(value string) (string, error) {
	if !strings.ContainsRune(value, '\\') {
		return value, nil
	}
	var builder strings.Builder
	for idx := 0; idx < len(value); idx++ {
		if value[idx] != '\\' {
			builder.WriteByte(value[idx])
			continue
		}
		if idx+2 >= len(value) {
			return "", fmt.Errorf("truncated escape in filter value: %q", value)
		}
		code, err := strconv.ParseUint(value[idx+1:idx+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("malformed escape in filter value: %q", value)
		}
		builder.WriteByte(byte(code))
		idx += 2
	}
	return builder.String(), nil
}
