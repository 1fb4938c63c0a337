// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || windows

package dexcom

import "tinygo.org/x/bluetooth"

// writeWithResponse writes data to c and waits for the peripheral to
// acknowledge it.
func writeWithResponse(c bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := c.Write(data)
	return err
}
