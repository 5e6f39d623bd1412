/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package creds converts between the credential representations of the two
// directory trees: Kerberos long-term key sets on the internal side, and the
// unicodePwd/supplementalCredentials attribute pair on the external side.
package creds

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/janus-directory/janus/internal/codec"
	"github.com/janus-directory/janus/internal/directory"
	"golang.org/x/text/encoding/unicode"
)

// EncryptionType enumerates the Kerberos enc-types we know how to transport.
// Values follow RFC 3961/4757.
type EncryptionType uint32

const (
	DESCBCCRC         EncryptionType = 1
	DESCBCMD5         EncryptionType = 3
	AES128CTSHMACSHA1 EncryptionType = 17
	AES256CTSHMACSHA1 EncryptionType = 18
	RC4HMAC           EncryptionType = 23
)

// String implements the fmt.Stringer interface.
func (t EncryptionType) String() string {
	switch t {
	case DESCBCCRC:
		return "des-cbc-crc"
	case DESCBCMD5:
		return "des-cbc-md5"
	case AES128CTSHMACSHA1:
		return "aes128-cts-hmac-sha1-96"
	case AES256CTSHMACSHA1:
		return "aes256-cts-hmac-sha1-96"
	case RC4HMAC:
		return "rc4-hmac"
	default:
		return fmt.Sprintf("enctype-%d", uint32(t))
	}
}

// Key is one Kerberos long-term key.
type Key struct {
	Type  EncryptionType
	Value []byte
}

// KeySet is a user's full set of Kerberos long-term keys, plus the salt that
// was used to derive them.
type KeySet struct {
	Salt string
	Keys []Key
}

// ErrNoConvertibleKey is returned by LegacyHashes when the key set contains
// none of the enc-types that can be transported into the external store.
var ErrNoConvertibleKey = errors.New("key set contains no convertible enc-type")

// LegacyHashes is the external store's representation of a credential: the NT
// hash (stored in unicodePwd) and the packed supplementalCredentials blob
// carrying the newer Kerberos keys. Either field may be empty if the source
// key set lacks the respective enc-types, but never both.
type LegacyHashes struct {
	NTHash       []byte
	Supplemental []byte
}

// LegacyHashes derives the external store's hash attributes from this key
// set. The rc4-hmac key doubles as the NT hash; AES keys are packed into a
// supplementalCredentials property bag. The reverse conversion does not
// exist: an NT hash cannot be turned back into Kerberos keys, so hash-based
// credentials only ever travel by direct storage.
func (ks KeySet) LegacyHashes() (LegacyHashes, error) {
	var result LegacyHashes
	var aesKeys []Key
	for _, key := range ks.Keys {
		switch key.Type {
		case RC4HMAC:
			result.NTHash = key.Value
		case AES128CTSHMACSHA1, AES256CTSHMACSHA1:
			aesKeys = append(aesKeys, key)
		}
	}

	if len(aesKeys) > 0 {
		result.Supplemental = packSupplementalCredentials(ks.Salt, aesKeys)
	}
	if result.NTHash == nil && result.Supplemental == nil {
		return LegacyHashes{}, ErrNoConvertibleKey
	}
	return result, nil
}

// BypassPasswordHashControlOID instructs the external store to accept
// pre-hashed values in unicodePwd instead of hashing them itself. Writes
// staged by a KeySet must carry this control on Save.
const BypassPasswordHashControlOID = "1.3.6.1.4.1.7165.4.3.12"

// Stage implements the Credentials interface.
func (ks KeySet) Stage(entry *directory.Entry, now time.Time) error {
	hashes, err := ks.LegacyHashes()
	if err != nil {
		return err
	}
	if hashes.NTHash != nil {
		entry.Set("unicodePwd", string(hashes.NTHash))
	}
	if hashes.Supplemental != nil {
		entry.Set("supplementalCredentials", string(hashes.Supplemental))
	}
	entry.Set("pwdLastSet", codec.NTTimeOf(now).String())
	return nil
}

// Controls implements the Credentials interface.
func (ks KeySet) Controls() []goldap.Control {
	return []goldap.Control{goldap.NewControlString(BypassPasswordHashControlOID, false, "")}
}

// The supplementalCredentials attribute is a USER_PROPERTIES property bag
// carrying one "Primary:Kerberos-Newer-Keys" property, whose value is a
// hex-encoded KERB_STORED_CREDENTIAL_NEW structure. Layouts follow MS-SAMR
// sections 2.2.10.1 through 2.2.10.7.
func packSupplementalCredentials(salt string, keys []Key) []byte {
	value := packKerberosNewerKeys(salt, keys)
	property := packUserProperty("Primary:Kerberos-Newer-Keys", hexUpper(value))

	var buf bytes.Buffer
	le := binary.LittleEndian

	//Reserved1, Length (filled in below), Reserved2, Reserved3
	binary.Write(&buf, le, uint32(0))
	binary.Write(&buf, le, uint32(0))
	binary.Write(&buf, le, uint16(0))
	binary.Write(&buf, le, uint16(0))
	buf.Write(make([]byte, 96))          //Reserved4
	binary.Write(&buf, le, uint16(0x50)) //PropertySignature 'P'
	binary.Write(&buf, le, uint16(1))    //PropertyCount
	buf.Write(property)
	buf.WriteByte(0) //Reserved5

	result := buf.Bytes()
	le.PutUint32(result[4:8], uint32(len(result)-8))
	return result
}

func packUserProperty(name string, value []byte) []byte {
	nameUTF16 := encodeUTF16LE(name)

	var buf bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&buf, le, uint16(len(nameUTF16)))
	binary.Write(&buf, le, uint16(len(value)))
	binary.Write(&buf, le, uint16(1)) //Reserved
	buf.Write(nameUTF16)
	buf.Write(value)
	return buf.Bytes()
}

const keyIterationCount = 4096

func packKerberosNewerKeys(salt string, keys []Key) []byte {
	saltUTF16 := encodeUTF16LE(salt)

	//header (24 bytes) + one 24-byte KERB_KEY_DATA_NEW per key, then the
	//salt, then the key bytes
	headerLen := 24 + 24*len(keys)
	saltOffset := headerLen
	keyOffset := saltOffset + len(saltUTF16)

	var buf bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&buf, le, uint16(4)) //Revision
	binary.Write(&buf, le, uint16(0)) //Flags
	binary.Write(&buf, le, uint16(len(keys)))
	binary.Write(&buf, le, uint16(0)) //ServiceCredentialCount
	binary.Write(&buf, le, uint16(0)) //OldCredentialCount
	binary.Write(&buf, le, uint16(0)) //OlderCredentialCount
	binary.Write(&buf, le, uint16(len(saltUTF16)))
	binary.Write(&buf, le, uint16(len(saltUTF16)))
	binary.Write(&buf, le, uint32(saltOffset))
	binary.Write(&buf, le, uint32(keyIterationCount))

	offset := keyOffset
	for _, key := range keys {
		binary.Write(&buf, le, uint16(0)) //Reserved1
		binary.Write(&buf, le, uint16(0)) //Reserved2
		binary.Write(&buf, le, uint32(0)) //Reserved3
		binary.Write(&buf, le, uint32(keyIterationCount))
		binary.Write(&buf, le, uint32(key.Type))
		binary.Write(&buf, le, uint32(len(key.Value)))
		binary.Write(&buf, le, uint32(offset))
		offset += len(key.Value)
	}

	buf.Write(saltUTF16)
	for _, key := range keys {
		buf.Write(key.Value)
	}
	return buf.Bytes()
}

func hexUpper(buf []byte) []byte {
	const digits = "0123456789ABCDEF"
	result := make([]byte, 0, 2*len(buf))
	for _, b := range buf {
		result = append(result, digits[b>>4], digits[b&0x0F])
	}
	return result
}

func encodeUTF16LE(input string) []byte {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(input)
	if err != nil {
		//cannot happen: every string encodes into UTF-16 (invalid bytes
		//become U+FFFD)
		panic(err.Error())
	}
	return []byte(encoded)
}
