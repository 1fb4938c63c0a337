// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

var fieldsTests = []struct {
	name string
	kv   []any
	want logrus.Fields
}{
	{
		name: "empty",
		want: logrus.Fields{},
	},
	{
		name: "pairs",
		kv:   []any{"opcode", 0x4e, "valid", true},
		want: logrus.Fields{"opcode": 0x4e, "valid": true},
	},
	{
		name: "trailing",
		kv:   []any{"opcode", 0x4e, "orphan"},
		want: logrus.Fields{"opcode": 0x4e, badKey: "orphan"},
	},
	{
		name: "non_string_key",
		kv:   []any{1, "one"},
		want: logrus.Fields{"1": "one"},
	},
}

func TestFields(t *testing.T) {
	for _, test := range fieldsTests {
		t.Run(test.name, func(t *testing.T) {
			got := fields(test.kv)
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("unexpected fields: got:%v want:%v", got, test.want)
			}
		})
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l := logger{log}

	l.Debug("hidden", "opcode", 0x4e)
	if buf.Len() != 0 {
		t.Errorf("unexpected debug output at info level: %q", buf.String())
	}
	l.Info("glucose", "value", 97)
	got := buf.String()
	for _, want := range []string{"level=info", "msg=glucose", "value=97"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}
