// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !darwin && !windows

package dexcom

import "tinygo.org/x/bluetooth"

// writeWithResponse writes data to c. BlueZ and bare metal
// characteristics only expose unacknowledged writes.
func writeWithResponse(c bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := c.WriteWithoutResponse(data)
	return err
}
