/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package codec

import (
	"testing"
	"time"
)

func TestNTTimeKnownValue(t *testing.T) {
	//the Unix epoch in 100ns intervals since 1601-01-01
	epoch := time.Unix(0, 0)
	if nt := NTTimeOf(epoch); nt != 116444736000000000 {
		t.Errorf("unexpected NT time for the Unix epoch: %d", nt)
	}
}

func TestNTTimeRoundTrip(t *testing.T) {
	inputs := []time.Time{
		time.Date(2009, 7, 14, 2, 48, 9, 1400, time.UTC),
		time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Unix(0, 0).UTC(),
	}
	for _, input := range inputs {
		nt := NTTimeOf(input)
		if output := nt.Time(); !output.Equal(input) {
			t.Errorf("round trip failed: %s -> %s", input, output)
		}
	}
}

func TestNTTimeNormalizesToUTC(t *testing.T) {
	//the same instant expressed in a non-UTC calendar must convert identically
	loc := time.FixedZone("east", 7*3600)
	instant := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)
	if NTTimeOf(instant) != NTTimeOf(instant.In(loc)) {
		t.Error("conversion is sensitive to the input's time zone")
	}
}

func TestNTTimeStringForm(t *testing.T) {
	nt, err := ParseNTTime("116444736000000000")
	if err != nil {
		t.Fatal(err.Error())
	}
	if nt.String() != "116444736000000000" {
		t.Errorf("string round trip failed: %s", nt.String())
	}

	for _, input := range []string{"", "abc", "-5"} {
		if _, err := ParseNTTime(input); err == nil {
			t.Errorf("ParseNTTime did not reject %q", input)
		}
	}
}
