// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package lumolog_test

import (
	"os"
	"testing"

	"github.com/hahatianx/lumo/lumolog"
)

type testOutputter struct {
	level    lumolog.Level
	messages map[lumolog.Level][]string
}

func newTestOutputter(level lumolog.Level) *testOutputter {
	return &testOutputter{level, make(map[lumolog.Level][]string)}
}

func (t *testOutputter) Empty() bool {
	for _, m := range t.messages {
		if len(m) != 0 {
			return false
		}
	}
	return true
}

func (t *testOutputter) Next(level lumolog.Level) string {
	if len(t.messages[level]) == 0 {
		return ""
	}
	var m string
	m, t.messages[level] = t.messages[level][0], t.messages[level][1:]
	return m
}

func (t *testOutputter) Level() lumolog.Level {
	return t.level
}

func (t *testOutputter) Output(calldepth int, level lumolog.Level, s string) error {
	t.messages[level] = append(t.messages[level], s)
	return nil
}

func TestLog(t *testing.T) {
	out := newTestOutputter(lumolog.Info)
	defer lumolog.SetOutputter(lumolog.SetOutputter(out))
	lumolog.Printf("hello %q", "world")
	if got, want := out.Next(lumolog.Info), `hello "world"`; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	lumolog.Error.Print(1, 2, 3)
	if got, want := out.Next(lumolog.Error), "1 2 3"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	lumolog.Debug.Print("x")
	if got, want := out.Next(lumolog.Debug), ""; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !out.Empty() {
		t.Error("extra messages")
	}
}

func Example() {
	lumolog.SetOutput(os.Stdout)
	lumolog.SetFlags(0)
	lumolog.Print("hello, world!")
	lumolog.Error.Print("hello from error")
	lumolog.Debug.Print("invisible")

	// Output:
	// hello, world!
	// hello from error
}
