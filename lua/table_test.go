// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEmptyTable(t *testing.T) {
	tab := newTable(0)
	if got, want := valueType(tab), TypeTable; got != want {
		t.Errorf("valueType(newTable(0)) = %v; want %v", got, want)
	}
	if got := tab.len(); got != 0 {
		t.Errorf("newTable(0).len() = %d; want 0", got)
	}
	if got := tab.get(stringValue{s: "bork"}); got != nil {
		t.Errorf("newTable(0).get(\"bork\") = %#v; want <nil>", got)
	}
}

func TestArrayTable(t *testing.T) {
	tab := newTable(3)
	const want1 integerValue = 42
	tab.set(integerValue(1), want1)
	const want2 = "abc"
	tab.set(integerValue(2), stringValue{s: want2})
	const want3 floatValue = 3.14
	tab.set(integerValue(3), want3)

	if got, want := tab.len(), integerValue(3); got != want {
		t.Errorf("tab.len() = %d; want %d", got, want)
	}
	if got := tab.get(integerValue(1)); got != want1 {
		t.Errorf("tab.get(integerValue(1)) = %#v; want %#v", got, want1)
	}
	if got := tab.get(integerValue(2)); !cmp.Equal(stringValue{s: want2}, got, cmpValueOptions) {
		t.Errorf("tab.get(integerValue(2)) = %#v; want %#v", got, want2)
	}
	if got := tab.get(integerValue(3)); got != want3 {
		t.Errorf("tab.get(integerValue(3)) = %#v; want %#v", got, want3)
	}
	if got := tab.get(integerValue(4)); got != nil {
		t.Errorf("tab.get(integerValue(4)) = %#v; want <nil>", got)
	}
}

func TestHashTable(t *testing.T) {
	tab := newTable(0)
	if err := tab.set(stringValue{s: "foo"}, integerValue(1)); err != nil {
		t.Fatal(err)
	}
	if err := tab.set(integerValue(10), stringValue{s: "ten"}); err != nil {
		t.Fatal(err)
	}
	if got := tab.get(stringValue{s: "foo"}); got != integerValue(1) {
		t.Errorf("tab.get(\"foo\") = %#v; want 1", got)
	}
	if got := tab.get(integerValue(10)); !cmp.Equal(stringValue{s: "ten"}, got, cmpValueOptions) {
		t.Errorf("tab.get(10) = %#v; want \"ten\"", got)
	}
	// A sparse integer key does not extend the array part or the length border.
	if got, want := tab.len(), integerValue(0); got != want {
		t.Errorf("tab.len() = %d; want %d", got, want)
	}
}

func TestTableNext(t *testing.T) {
	tab := newTable(2)
	tab.set(integerValue(1), stringValue{s: "a"})
	tab.set(integerValue(2), stringValue{s: "b"})
	tab.set(stringValue{s: "k"}, stringValue{s: "v"})

	seen := make(map[string]string)
	var k, v value
	var ok bool
	for {
		k, v, ok = tab.next(k)
		if !ok {
			break
		}
		ks, _ := toString(k)
		vs, _ := toString(v)
		seen[ks.s] = vs.s
	}
	want := map[string]string{"1": "a", "2": "b", "k": "v"}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("tab.next traversal (-want +got):\n%s", diff)
	}
}

func TestTableSetNilRemoves(t *testing.T) {
	tab := newTable(0)
	tab.set(stringValue{s: "foo"}, integerValue(1))
	if err := tab.set(stringValue{s: "foo"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := tab.get(stringValue{s: "foo"}); got != nil {
		t.Errorf("tab.get(\"foo\") after delete = %#v; want <nil>", got)
	}
	if _, _, ok := tab.next(nil); ok {
		t.Errorf("tab.next(nil) on empty table returned ok=true")
	}
}

func TestTableFunctionKey(t *testing.T) {
	// Function values carry a slice of upvalues and are not
	// comparable with ==, so they must not be used as Go map keys
	// directly; the table must adapt them to a comparable proxy.
	tab := newTable(0)
	f1 := goFunction{id: nextID()}
	f2 := goFunction{id: nextID()}
	if err := tab.set(f1, stringValue{s: "one"}); err != nil {
		t.Fatal(err)
	}
	if err := tab.set(f2, stringValue{s: "two"}); err != nil {
		t.Fatal(err)
	}
	if got := tab.get(f1); !cmp.Equal(stringValue{s: "one"}, got, cmpValueOptions) {
		t.Errorf("tab.get(f1) = %#v; want \"one\"", got)
	}
	if got := tab.get(f2); !cmp.Equal(stringValue{s: "two"}, got, cmpValueOptions) {
		t.Errorf("tab.get(f2) = %#v; want \"two\"", got)
	}
}

var cmpValueOptions = cmp.Options{
	cmp.AllowUnexported(stringValue{}),
}
