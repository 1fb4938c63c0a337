// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// logger adapts a logrus.Logger to cgm.Logger.
type logger struct {
	log *logrus.Logger
}

func (l logger) Debug(msg string, kv ...any) { l.log.WithFields(fields(kv)).Debug(msg) }
func (l logger) Info(msg string, kv ...any)  { l.log.WithFields(fields(kv)).Info(msg) }
func (l logger) Error(msg string, kv ...any) { l.log.WithFields(fields(kv)).Error(msg) }

// badKey is the key used for a trailing value without a key.
const badKey = "!BADKEY"

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			f[badKey] = kv[i]
			break
		}
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		f[k] = kv[i+1]
	}
	return f
}
