/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import (
	goldap "github.com/go-ldap/ldap/v3"
)

type changeOp int

const (
	opReplace changeOp = iota
	opAddValues
	opDeleteValues
	opDeleteAttribute
)

type pendingChange struct {
	op     changeOp
	attr   string
	values []string
}

// PendingChangeSet buffers attribute changes on one entry until they are
// flushed by Entry.Save in a single modify request. There is no implicit
// mutation tracking; every change is staged explicitly.
type PendingChangeSet struct {
	changes []pendingChange
}

// IsEmpty returns whether there is anything to flush.
func (cs *PendingChangeSet) IsEmpty() bool {
	return len(cs.changes) == 0
}

func (cs *PendingChangeSet) stage(op changeOp, attr string, values []string) {
	cs.changes = append(cs.changes, pendingChange{op: op, attr: attr, values: values})
}

func (cs *PendingChangeSet) clear() {
	cs.changes = nil
}

// Renders the staged changes into a single modify request, so that the whole
// set is applied in one network round trip and (on the server side) one
// atomic modification.
func (cs *PendingChangeSet) buildModifyRequest(dn string, controls []goldap.Control) goldap.ModifyRequest {
	req := goldap.ModifyRequest{DN: dn, Controls: controls}
	for _, change := range cs.changes {
		switch change.op {
		case opReplace:
			req.Replace(change.attr, change.values)
		case opAddValues:
			req.Add(change.attr, change.values)
		case opDeleteValues:
			req.Delete(change.attr, change.values)
		case opDeleteAttribute:
			req.Delete(change.attr, nil)
		}
	}
	return req
}

// Replays the staged changes onto the cached attribute map after a successful
// flush, so that subsequent reads see the saved state without a refetch.
func (cs *PendingChangeSet) applyToCache(attrs map[string][]string) {
	for _, change := range cs.changes {
		attr := normalizeAttrName(change.attr)
		switch change.op {
		case opReplace:
			attrs[attr] = append([]string(nil), change.values...)
		case opAddValues:
			attrs[attr] = append(attrs[attr], change.values...)
		case opDeleteValues:
			attrs[attr] = removeValues(attrs[attr], change.values)
			if len(attrs[attr]) == 0 {
				delete(attrs, attr)
			}
		case opDeleteAttribute:
			delete(attrs, attr)
		}
	}
}

func removeValues(values, toRemove []string) []string {
	var result []string
	for _, value := range values {
		removed := false
		for _, other := range toRemove {
			if value == other {
				removed = true
				break
			}
		}
		if !removed {
			result = append(result, value)
		}
	}
	return result
}
