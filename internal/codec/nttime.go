/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package codec

import (
	"errors"
	"strconv"
	"time"
)

// Number of seconds between the Windows epoch (1601-01-01T00:00:00Z) and the
// Unix epoch (1970-01-01T00:00:00Z).
const epochDeltaSeconds = 11644473600

var errNTTimeMalformed = errors.New("NT timestamp must be a non-negative decimal number")

// NTTime is a point in time counted in 100-nanosecond intervals since
// 1601-01-01T00:00:00Z. Attributes like pwdLastSet and lastLogonTimestamp
// carry this format as a decimal string.
type NTTime uint64

// NTTimeOf converts a time.Time into the 1601-epoch representation. The input
// is normalized to UTC first, so values carrying a non-UTC location convert
// correctly.
func NTTimeOf(t time.Time) NTTime {
	t = t.UTC()
	secs := uint64(t.Unix() + epochDeltaSeconds)
	return NTTime(secs*10000000 + uint64(t.Nanosecond())/100)
}

// ParseNTTime parses the decimal attribute form.
func ParseNTTime(input string) (NTTime, error) {
	value, err := strconv.ParseUint(input, 10, 64)
	if err != nil {
		return 0, errNTTimeMalformed
	}
	return NTTime(value), nil
}

// Time converts back into a time.Time in UTC.
func (t NTTime) Time() time.Time {
	secs := int64(t/10000000) - epochDeltaSeconds
	nanos := int64(t%10000000) * 100
	return time.Unix(secs, nanos).UTC()
}

// String renders the decimal attribute form.
func (t NTTime) String() string {
	return strconv.FormatUint(uint64(t), 10)
}
