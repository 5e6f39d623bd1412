/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package engine

import (
	"fmt"

	"github.com/janus-directory/janus/internal/directory"
	"github.com/janus-directory/janus/internal/link"
	"github.com/sapcc/go-bits/logg"
)

// ExportContact propagates an internal contact into the external tree.
// Contacts have no account name, so they are matched by link only; a contact
// without a link always gets a fresh counterpart.
func (e *Engine) ExportContact(source *directory.Entry) error {
	cn, err := source.Get("cn")
	if err != nil {
		return err
	}
	if cn == "" {
		return directory.NewError(directory.InvalidAttributeValue, "export contact", describeDN(source),
			fmt.Errorf("contact has no cn attribute"))
	}

	counterpart, err := e.links.FindCounterpart(source, link.Contact)
	if err == nil {
		return e.updateCounterpart(source, counterpart, contactAttrPairs)
	}
	if !directory.IsKind(err, directory.NotFound) {
		return err
	}

	container, err := e.targetContainerFor(source, link.Contact)
	if err != nil {
		return err
	}
	attrs := map[string][]string{
		"objectClass": {"top", "person", "organizationalPerson", "contact"},
		"cn":          {cn},
		"displayName": {cn},
	}
	for _, pair := range contactAttrPairs {
		values, err := source.GetAll(pair.internal)
		if err != nil {
			return err
		}
		attrs[pair.external] = values
	}

	created, err := e.external.Create("CN="+cn+","+container, attrs)
	if err != nil {
		return err
	}
	err = e.links.Establish(source, created)
	if err != nil {
		e.rollbackCreation(source, created, err)
		return err
	}
	logg.Info("contact %s exported to %s tree", cn, directory.External.String())
	return nil
}

// ImportContact propagates an external contact into the internal tree.
func (e *Engine) ImportContact(source *directory.Entry) error {
	cn, err := source.Get("cn")
	if err != nil {
		return err
	}
	if cn == "" {
		return directory.NewError(directory.InvalidAttributeValue, "import contact", describeDN(source),
			fmt.Errorf("contact has no cn attribute"))
	}

	counterpart, err := e.links.FindCounterpart(source, link.Contact)
	if err == nil {
		return e.updateCounterpart(source, counterpart, contactAttrPairs)
	}
	if !directory.IsKind(err, directory.NotFound) {
		return err
	}

	container, err := e.targetContainerFor(source, link.Contact)
	if err != nil {
		return err
	}
	sn, err := source.Get("sn")
	if err != nil {
		return err
	}
	if sn == "" {
		sn = cn
	}
	attrs := map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"cn":          {cn},
		"sn":          {sn},
	}
	for _, pair := range contactAttrPairs {
		if pair.internal == "sn" {
			continue
		}
		values, err := source.GetAll(pair.external)
		if err != nil {
			return err
		}
		attrs[pair.internal] = values
	}

	created, err := e.internal.Create("cn="+cn+","+container, attrs)
	if err != nil {
		return err
	}
	err = e.links.Establish(created, source)
	if err != nil {
		e.rollbackCreation(source, created, err)
		return err
	}
	logg.Info("contact %s imported into %s tree", cn, directory.Internal.String())
	return nil
}

func describeDN(entry *directory.Entry) string {
	dn, err := entry.DN()
	if err != nil {
		return "<unresolved entry>"
	}
	return dn
}
