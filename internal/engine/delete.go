/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package engine

import (
	"github.com/janus-directory/janus/internal/directory"
	"github.com/janus-directory/janus/internal/link"
	"github.com/sapcc/go-bits/errext"
	"github.com/sapcc/go-bits/logg"
)

// DeleteUser propagates the deletion of a user: its counterpart in the other
// tree is removed, then all configured sweepers purge references to the
// account name from collaborating subsystems. A counterpart that is flagged
// critical is left alone; the refusal is logged, and the caller's own
// deletion of the source entry proceeds regardless. Sweeper failures are
// isolated per sweeper and aggregated.
func (e *Engine) DeleteUser(source *directory.Entry) errext.ErrorSet {
	return e.propagateDeletion(source, link.User)
}

// DeleteGroup propagates the deletion of a group, like DeleteUser.
func (e *Engine) DeleteGroup(source *directory.Entry) errext.ErrorSet {
	return e.propagateDeletion(source, link.Group)
}

func (e *Engine) propagateDeletion(source *directory.Entry, kind link.Kind) (errs errext.ErrorSet) {
	name, err := e.validatedAccountName(source, kind)
	if err != nil {
		errs.Add(err)
		return
	}

	counterpart, err := e.links.FindCounterpart(source, kind)
	switch {
	case directory.IsKind(err, directory.NotFound):
		// nothing to delete on the other side
	case err != nil:
		errs.Add(err)
	default:
		dn, _ := counterpart.DN()
		err = counterpart.Delete()
		switch {
		case directory.IsKind(err, directory.RefusedCriticalDeletion):
			logg.Info("not deleting %s: it is a protected system object", dn)
		case err != nil:
			errs.Add(err)
		default:
			logg.Info("%s %s deleted from %s tree", kind.String(), name, counterpart.Tree().Flavor().String())
		}
	}

	for _, sweeper := range e.opts.Sweepers {
		err := sweeper.SweepReferences(name)
		if err != nil {
			logg.Error("sweeper %s failed for %s: %s", sweeper.Name(), name, err.Error())
			errs.Addf("sweeper %s: %s", sweeper.Name(), err.Error())
		}
	}
	return
}
