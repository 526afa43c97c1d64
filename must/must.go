// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package must expresses fatal assertions for lumod's main package: a
// handful of startup steps (opening the watch root, binding the control
// and data sockets) have no recovery path, so a failure there should
// stop the process with a clear message instead of being threaded back
// up through error returns that main would just panic on anyway.
package must

import (
	"fmt"

	"github.com/hahatianx/lumo/lumolog"
)

// Func is called to report a fatal assertion and stop the program.
// Tests override it to capture the message instead of exiting.
var Func func(...interface{}) = lumolog.Panic

// Nil asserts that v is nil; v is typically a value of type error. If v
// is not nil, Nil formats a message in the manner of fmt.Sprint and
// calls Func, suffixed with the fmt.Sprint-formatted value of v.
func Nil(v interface{}, args ...interface{}) {
	if v == nil {
		return
	}
	if len(args) == 0 {
		Func(v)
		return
	}
	Func(fmt.Sprint(args...), ": ", v)
}

// Nilf asserts that v is nil; v is typically a value of type error. If v
// is not nil, Nilf formats a message in the manner of fmt.Sprintf and
// calls Func, suffixed with the fmt.Sprint-formatted value of v.
func Nilf(v interface{}, format string, args ...interface{}) {
	if v == nil {
		return
	}
	Func(fmt.Sprintf(format, args...), ": ", v)
}
