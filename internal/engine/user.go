/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package engine

import (
	"fmt"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/janus-directory/janus/internal/creds"
	"github.com/janus-directory/janus/internal/directory"
	"github.com/janus-directory/janus/internal/grammars"
	"github.com/janus-directory/janus/internal/link"
	"github.com/sapcc/go-bits/logg"
)

// userAccountControl bits and composites.
const (
	uacAccountDisable  = 2
	uacNormalAccount   = 512
	uacDisabledAccount = uacNormalAccount | uacAccountDisable
)

// ExportUser propagates an internal user into the external tree. If a
// counterpart exists, its core attributes are brought up to date; otherwise a
// counterpart is created in the mirrored container. A freshly-created account
// starts out disabled and is only enabled as the very last step, after its
// credentials and link are in place, so a partially-configured account is
// never active. If `disabled` is set, the account stays disabled.
//
// `credentials` may be nil if there is no password material to carry; the
// caller supplies either a clear password or a Kerberos key set, never both.
func (e *Engine) ExportUser(source *directory.Entry, credentials creds.Credentials, disabled bool) error {
	name, err := e.validatedAccountName(source, link.User)
	if err != nil {
		return err
	}

	counterpart, err := e.links.FindCounterpart(source, link.User)
	if err == nil {
		return e.updateUserCounterpart(source, counterpart, name, credentials)
	}
	if !directory.IsKind(err, directory.NotFound) {
		return err
	}

	container, err := e.targetContainerFor(source, link.User)
	if err != nil {
		return err
	}

	cn, err := source.Get("cn")
	if err != nil {
		return err
	}
	if cn == "" {
		cn = name
	}
	attrs := map[string][]string{
		"objectClass":        {"top", "person", "organizationalPerson", "user"},
		"sAMAccountName":     {name},
		"cn":                 {cn},
		"displayName":        {cn},
		"userAccountControl": {fmt.Sprintf("%d", uacDisabledAccount)},
	}
	for _, attr := range []string{"sn", "givenName", "mail", "description"} {
		values, err := source.GetAll(attr)
		if err != nil {
			return err
		}
		attrs[attr] = values
	}

	created, err := e.external.Create("CN="+cn+","+container, attrs)
	if err != nil {
		return err
	}

	// every failure from here on must undo the partial creation
	err = e.finishUserCreation(source, created, name, credentials, disabled)
	if err != nil {
		e.rollbackCreation(source, created, err)
		return err
	}
	logg.Info("user %s exported to %s tree", name, directory.External.String())
	return nil
}

// The update path for users. Core attributes and fresh password material are
// staged into the same changeset, so one modify carries both and pwdLastSet
// stays consistent with the password bytes.
func (e *Engine) updateUserCounterpart(source, counterpart *directory.Entry, name string, credentials creds.Credentials) error {
	changed, err := stageCoreAttributes(source, counterpart, userAttrPairs)
	if err != nil {
		return err
	}

	var controls []goldap.Control
	if credentials != nil {
		credentials = e.withDefaultSalt(credentials, name)
		err = credentials.Stage(counterpart, time.Now())
		if err != nil {
			return err
		}
		controls = credentials.Controls()
		changed = true
	}
	if !changed {
		return nil
	}

	err = counterpart.Save(controls...)
	if err != nil {
		return err
	}
	if credentials != nil {
		logg.Info("credentials of user %s updated in %s tree", name, directory.External.String())
	}
	return nil
}

// A key set without a salt gets the default salt for this realm.
func (e *Engine) withDefaultSalt(credentials creds.Credentials, name string) creds.Credentials {
	if keys, ok := credentials.(creds.KeySet); ok && keys.Salt == "" {
		keys.Salt = e.opts.Realm + name
		return keys
	}
	return credentials
}

func (e *Engine) finishUserCreation(source, created *directory.Entry, name string, credentials creds.Credentials, disabled bool) error {
	if credentials != nil {
		credentials = e.withDefaultSalt(credentials, name)
		err := credentials.Stage(created, time.Now())
		if err != nil {
			return err
		}
		err = created.Save(credentials.Controls()...)
		if err != nil {
			return err
		}
	}

	err := e.links.Establish(source, created)
	if err != nil {
		return err
	}

	if !disabled {
		created.Set("userAccountControl", fmt.Sprintf("%d", uacNormalAccount))
		err = created.Save()
		if err != nil {
			return err
		}
	}
	return nil
}

// ImportUser propagates an external user into the internal tree. The UID
// number is allocated deterministically from the user's RID within the
// configured idmap range. Password material never travels in this direction:
// the external hashes cannot be converted back into Kerberos keys.
func (e *Engine) ImportUser(source *directory.Entry) error {
	name, err := e.validatedAccountName(source, link.User)
	if err != nil {
		return err
	}

	counterpart, err := e.links.FindCounterpart(source, link.User)
	if err == nil {
		return e.updateCounterpart(source, counterpart, userAttrPairs)
	}
	if !directory.IsKind(err, directory.NotFound) {
		return err
	}

	sid, err := source.SID()
	if err != nil {
		return err
	}
	uidNumber, err := e.allocateIDNumber(name, sid.RID())
	if err != nil {
		return err
	}
	gidNumber, err := e.allocateIDNumber(name, link.AllUsersRID)
	if err != nil {
		return err
	}

	container, err := e.targetContainerFor(source, link.User)
	if err != nil {
		return err
	}

	cn, err := source.Get("displayName")
	if err != nil {
		return err
	}
	if cn == "" {
		cn = name
	}
	sn, err := source.Get("sn")
	if err != nil {
		return err
	}
	if sn == "" {
		sn = name
	}
	attrs := map[string][]string{
		"objectClass":   {"inetOrgPerson", "posixAccount", "shadowAccount"},
		"uid":           {name},
		"cn":            {cn},
		"sn":            {sn},
		"uidNumber":     {fmt.Sprintf("%d", uidNumber)},
		"gidNumber":     {fmt.Sprintf("%d", gidNumber)},
		"homeDirectory": {"/home/" + name},
		"loginShell":    {"/bin/bash"},
	}
	for _, attr := range []string{"givenName", "mail", "description"} {
		values, err := source.GetAll(attr)
		if err != nil {
			return err
		}
		attrs[attr] = values
	}

	created, err := e.internal.Create("uid="+name+","+container, attrs)
	if err != nil {
		return err
	}

	err = e.links.Establish(created, source)
	if err != nil {
		e.rollbackCreation(source, created, err)
		return err
	}
	logg.Info("user %s imported into %s tree", name, directory.Internal.String())
	return nil
}

// Checks the account-name constraints before any write happens.
func (e *Engine) validatedAccountName(source *directory.Entry, kind link.Kind) (string, error) {
	var attr string
	if source.Tree().Flavor() == directory.External {
		attr = "sAMAccountName"
	} else if kind == link.Group {
		attr = "cn"
	} else {
		attr = "uid"
	}

	name, err := source.Get(attr)
	if err != nil {
		return "", err
	}
	if !grammars.IsAccountName(name) {
		return "", directory.NewError(directory.InvalidAttributeValue, "validate account name", name,
			fmt.Errorf("%q is not an acceptable account name (see documentation for constraints)", name))
	}
	return name, nil
}

func (e *Engine) allocateIDNumber(name string, rid uint32) (uint32, error) {
	//the sum is computed in uint64 so that a large RID cannot wrap around the
	//bounds check
	idNumber := uint64(e.opts.IdmapRangeBegin) + uint64(rid)
	if e.opts.IdmapRangeEnd != 0 && idNumber > uint64(e.opts.IdmapRangeEnd) {
		return 0, directory.NewError(directory.InvalidAttributeValue, "allocate ID number", name,
			fmt.Errorf("ID number %d for RID %d is outside the configured idmap range [%d, %d]",
				idNumber, rid, e.opts.IdmapRangeBegin, e.opts.IdmapRangeEnd))
	}
	return uint32(idNumber), nil
}

// The shared update path: stage the core attributes onto the counterpart and
// save. A counterpart whose core attributes already match is left alone.
func (e *Engine) updateCounterpart(source, counterpart *directory.Entry, pairs []attrPair) error {
	changed, err := stageCoreAttributes(source, counterpart, pairs)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	err = counterpart.Save()
	if err != nil {
		return err
	}
	dn, _ := counterpart.DN()
	logg.Debug("updated core attributes of %s", dn)
	return nil
}
