/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package twt

import (
	"bgwlan/ap_common/objmgr"
)

// SetWaitForNotify marks whether the vdev is waiting for the host's TWT
// notification.  The flag is advisory and takes no lock.
func (l *Ledger) SetWaitForNotify(vdevID uint8, isSet bool) error {
	return l.withVdev(vdevID, "set_wait_notify",
		func(_ *objmgr.Vdev, ctx *VdevContext) {
			ctx.waitForNotify.SetTo(isSet)
		})
}

// IsNotifyInProgress reports whether the vdev is waiting for the host's TWT
// notification.
func (l *Ledger) IsNotifyInProgress(vdevID uint8) bool {
	var waiting bool

	l.withVdev(vdevID, "notify_in_progress",
		func(_ *objmgr.Vdev, ctx *VdevContext) {
			waiting = ctx.waitForNotify.IsSet()
		})
	return waiting
}
