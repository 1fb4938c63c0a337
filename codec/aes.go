// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import "crypto/aes"

// ChallengeKey returns the AES-128 key a Dexcom transmitter derives
// from its serial number: "00"+serial+"00"+serial as UTF-8, truncated
// or zero padded to 16 bytes.
func ChallengeKey(serial string) [aes.BlockSize]byte {
	var key [aes.BlockSize]byte
	copy(key[:], "00"+serial+"00"+serial)
	return key
}

// ChallengeResponse returns the first eight bytes of the AES-128-ECB
// encryption of the doubled challenge under the serial's key.
func ChallengeResponse(serial string, challenge [8]byte) [8]byte {
	key := ChallengeKey(serial)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		// A 16 byte key is always valid.
		panic(err)
	}
	var src, dst [aes.BlockSize]byte
	copy(src[:8], challenge[:])
	copy(src[8:], challenge[:])
	block.Encrypt(dst[:], src[:])
	var resp [8]byte
	copy(resp[:], dst[:8])
	return resp
}
