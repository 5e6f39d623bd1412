/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package codec

import (
	"bytes"
	"testing"
)

func TestSIDStringRoundTrip(t *testing.T) {
	inputs := []string{
		"S-1-5-21-2127521184-1604012920-1887927527-72713",
		"S-1-5-32-544",
		"S-1-5-18",
		"S-1-0-0",
		"S-1-5", // no sub-authorities at all
	}
	for _, input := range inputs {
		sid, err := ParseSID(input)
		if err != nil {
			t.Errorf("ParseSID(%q) failed: %s", input, err.Error())
			continue
		}
		if output := sid.String(); output != input {
			t.Errorf("round trip failed: %q -> %q", input, output)
		}
	}
}

func TestSIDBinaryRoundTrip(t *testing.T) {
	//S-1-5-21-1004336348-1177238915-682003330-512 taken from the MS-DTYP examples
	input := []byte{
		0x01, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
		0x15, 0x00, 0x00, 0x00,
		0xdc, 0xf4, 0xdc, 0x3b,
		0x83, 0x3d, 0x2b, 0x46,
		0x82, 0x8b, 0xa6, 0x28,
		0x00, 0x02, 0x00, 0x00,
	}
	sid, err := DecodeSID(input)
	if err != nil {
		t.Fatal(err.Error())
	}
	expected := "S-1-5-21-1004336348-1177238915-682003330-512"
	if sid.String() != expected {
		t.Errorf("expected %q, got %q", expected, sid.String())
	}
	if sid.RID() != 512 {
		t.Errorf("expected RID 512, got %d", sid.RID())
	}
	if !bytes.Equal(sid.Encode(), input) {
		t.Errorf("binary round trip failed:\n\tin:  %x\n\tout: %x", input, sid.Encode())
	}
}

func TestSIDMalformedInputs(t *testing.T) {
	binaryInputs := map[string][]byte{
		"too short":             {0x01, 0x01, 0x00},
		"wrong revision":        {0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05},
		"count/length mismatch": {0x01, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05, 0x15, 0x00, 0x00, 0x00},
	}
	for desc, input := range binaryInputs {
		sid, err := DecodeSID(input)
		if err == nil {
			t.Errorf("DecodeSID did not reject input with %s", desc)
		}
		if !sid.IsZero() {
			t.Errorf("DecodeSID returned a non-zero SID for input with %s", desc)
		}
	}

	stringInputs := []string{"", "S", "S-1", "X-1-5-21", "S-3-5-21", "S-1-5-abc"}
	for _, input := range stringInputs {
		sid, err := ParseSID(input)
		if err == nil {
			t.Errorf("ParseSID did not reject %q", input)
		}
		if !sid.IsZero() {
			t.Errorf("ParseSID returned a non-zero SID for %q", input)
		}
	}
}

func TestSIDWithRID(t *testing.T) {
	domain, err := ParseSID("S-1-5-21-1004336348-1177238915-682003330")
	if err != nil {
		t.Fatal(err.Error())
	}
	admin := domain.WithRID(500)
	if admin.String() != "S-1-5-21-1004336348-1177238915-682003330-500" {
		t.Errorf("unexpected result: %s", admin.String())
	}
	//the original SID must not be modified by WithRID
	if domain.RID() != 682003330 {
		t.Errorf("WithRID modified its receiver: %s", domain.String())
	}
}
