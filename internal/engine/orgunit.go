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

// ExportOrgUnit propagates an internal organizational unit into the external
// tree. The parent must already be mirrored; nested OU hierarchies are
// synchronized top-down, one level per call.
func (e *Engine) ExportOrgUnit(source *directory.Entry) error {
	return e.propagateOrgUnit(source, e.external)
}

// ImportOrgUnit propagates an external organizational unit into the internal
// tree.
func (e *Engine) ImportOrgUnit(source *directory.Entry) error {
	return e.propagateOrgUnit(source, e.internal)
}

func (e *Engine) propagateOrgUnit(source *directory.Entry, target *directory.Tree) error {
	name, err := source.Get("ou")
	if err != nil {
		return err
	}
	if name == "" {
		return directory.NewError(directory.InvalidAttributeValue, "propagate organizational unit",
			describeDN(source), fmt.Errorf("entry has no ou attribute"))
	}

	counterpart, err := e.links.FindCounterpart(source, link.OrgUnit)
	if err == nil {
		return e.updateCounterpart(source, counterpart, []attrPair{{"description", "description"}})
	}
	if !directory.IsKind(err, directory.NotFound) {
		return err
	}

	container, err := e.orgUnitContainerFor(source, target)
	if err != nil {
		return err
	}

	var attrs map[string][]string
	var rdnAttr string
	if target.Flavor() == directory.External {
		attrs = map[string][]string{"objectClass": {"top", "organizationalUnit"}, "ou": {name}}
		rdnAttr = "OU"
	} else {
		attrs = map[string][]string{"objectClass": {"organizationalUnit"}, "ou": {name}}
		rdnAttr = "ou"
	}
	description, err := source.GetAll("description")
	if err != nil {
		return err
	}
	attrs["description"] = description

	created, err := target.Create(rdnAttr+"="+name+","+container, attrs)
	if err != nil {
		return err
	}

	var internal, external *directory.Entry
	if target.Flavor() == directory.External {
		internal, external = source, created
	} else {
		internal, external = created, source
	}
	err = e.links.Establish(internal, external)
	if err != nil {
		e.rollbackCreation(source, created, err)
		return err
	}
	logg.Info("organizational unit %s mirrored into %s tree", name, target.Flavor().String())
	return nil
}

// Unlike users and groups, OUs directly below the base DN stay directly below
// the base DN on the other side; there is no standard container to map into.
func (e *Engine) orgUnitContainerFor(source *directory.Entry, target *directory.Tree) (string, error) {
	parentDN, err := source.ParentDN()
	if err != nil {
		return "", err
	}
	if equalDN(parentDN, source.Tree().BaseDN()) {
		return target.BaseDN(), nil
	}

	parent, err := source.Tree().Fetch(directory.ByDN(parentDN))
	if err != nil {
		return "", err
	}
	counterpart, err := e.links.FindCounterpart(parent, link.OrgUnit)
	if err != nil {
		if directory.IsKind(err, directory.NotFound) {
			return "", directory.NewError(directory.NotFound, "resolve parent container", parentDN,
				fmt.Errorf("parent organizational unit has no counterpart in the %s tree", target.Flavor().String()))
		}
		return "", err
	}
	return counterpart.DN()
}
