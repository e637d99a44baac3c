// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"errors"
	"math"

	"github.com/lucore-lang/lucore/internal/luacode"
)

// table is the runtime representation of a Lua table: an ordered
// array part holding the sequence table[1], table[2], ... with no
// intervening nils, plus a hash part for every other key. Reads and
// writes on a positive integer key that falls within (or one past) the
// array part's bounds are serviced by the array; everything else goes
// through the hash map.
//
// hashKeys records the order in which keys were first inserted into
// hash, so that [table.next] can walk the hash part in a fixed order
// for the lifetime of the table, as required by Lua's next semantics.
// A key's absence from hash (after a delete) is how a stale entry in
// hashKeys is recognized and skipped.
type table struct {
	id       uint64
	array    []value
	hash     map[hashKey]hashEntry
	hashKeys []hashKey
	meta     *table
}

func newTable(capacity int) *table {
	tab := &table{id: nextID()}
	if capacity > 0 {
		tab.array = make([]value, 0, capacity)
	}
	return tab
}

func (tab *table) valueType() Type {
	return TypeTable
}

// hashKey adapts a [value] for use as a Go map key.
// Function values ([goFunction] and [luaFunction]) hold a slice of
// upvalues and are therefore not comparable, so they cannot be used as
// map keys directly; they are represented here by their function
// identity instead. Every other key type accepted by a table
// (booleans, integers, floats, strings, *table) is already comparable
// and is used as-is.
type hashKey struct {
	fn     uint64
	isFn   bool
	scalar value
}

func makeHashKey(v value) hashKey {
	if f, ok := v.(function); ok {
		return hashKey{fn: f.functionID(), isFn: true}
	}
	return hashKey{scalar: v}
}

// hashEntry pairs a hash-part value with the original key value,
// since [hashKey] discards information (the function's upvalues)
// that next must still be able to hand back to callers.
type hashEntry struct {
	key   value
	value value
}

// normalizeKey converts a float key with no fractional part to the
// equivalent integer key, matching Lua's table-indexing coercion.
func normalizeKey(key value) value {
	if f, ok := key.(floatValue); ok {
		if i, ok := luacode.FloatToInteger(float64(f), luacode.OnlyIntegral); ok {
			return integerValue(i)
		}
	}
	return key
}

// arrayIndex reports whether key addresses a slot in tab.array
// (a positive integer no greater than len(tab.array)) and returns
// the corresponding 0-based slice index.
func arrayIndex(key value, arrayLen int) (i int, ok bool) {
	ik, isInt := key.(integerValue)
	if !isInt || ik < 1 || int64(ik) > int64(arrayLen) {
		return 0, false
	}
	return int(ik) - 1, true
}

// len returns a border of the table:
// an index n such that table[n] is non-nil and table[n+1] is nil.
// Any such border is an acceptable result for tables with holes.
//
// [border in the table]: https://lua.org/manual/5.4/manual.html#3.4.7
func (tab *table) len() integerValue {
	if tab == nil {
		return 0
	}
	n := len(tab.array)
	for n > 0 && tab.array[n-1] == nil {
		n--
	}
	if n == len(tab.array) && tab.hash != nil {
		// The array part is full; the border may continue into the hash part.
		for {
			if _, ok := tab.hash[makeHashKey(integerValue(n+1))]; !ok {
				break
			}
			n++
		}
	}
	return integerValue(n)
}

func (tab *table) get(key value) value {
	if tab == nil {
		return nil
	}
	key = normalizeKey(key)
	if i, ok := arrayIndex(key, len(tab.array)); ok {
		return tab.array[i]
	}
	if tab.hash == nil {
		return nil
	}
	return tab.hash[makeHashKey(key)].value
}

func (tab *table) set(key, v value) error {
	switch k := key.(type) {
	case nil:
		return errors.New("table index is nil")
	case floatValue:
		if math.IsNaN(float64(k)) {
			return errors.New("table index is NaN")
		}
	}
	key = normalizeKey(key)

	if i, ok := arrayIndex(key, len(tab.array)); ok {
		tab.array[i] = v
		if v == nil && i == len(tab.array)-1 {
			tab.shrinkArray()
		}
		return nil
	}
	if ik, isInt := key.(integerValue); isInt && int64(ik) == int64(len(tab.array))+1 && v != nil {
		tab.deleteHash(key)
		tab.array = append(tab.array, v)
		tab.growArray()
		return nil
	}

	if v == nil {
		tab.deleteHash(key)
		return nil
	}
	tab.putHash(key, v)
	return nil
}

// putHash inserts or updates key in the hash part,
// recording it in hashKeys the first time it is seen.
func (tab *table) putHash(key, v value) {
	if tab.hash == nil {
		tab.hash = make(map[hashKey]hashEntry)
	}
	hk := makeHashKey(key)
	if _, exists := tab.hash[hk]; !exists {
		tab.hashKeys = append(tab.hashKeys, hk)
	}
	tab.hash[hk] = hashEntry{key: key, value: v}
}

// deleteHash removes key from the hash part.
// The entry in hashKeys is left in place as a tombstone and
// skipped on iteration.
func (tab *table) deleteHash(key value) {
	delete(tab.hash, makeHashKey(key))
}

// growArray migrates any hash entries whose integer keys
// immediately follow the array part into the array itself.
func (tab *table) growArray() {
	for {
		k := integerValue(len(tab.array) + 1)
		e, ok := tab.hash[makeHashKey(k)]
		if !ok {
			break
		}
		tab.deleteHash(k)
		tab.array = append(tab.array, e.value)
	}
}

// shrinkArray trims trailing nils from the array part.
func (tab *table) shrinkArray() {
	n := len(tab.array)
	for n > 0 && tab.array[n-1] == nil {
		n--
	}
	tab.array = tab.array[:n]
}

// setExisting looks up a key in the table
// and changes or removes the value for the key as appropriate
// if the key was found and returns true.
// Otherwise, if the key was not found,
// then setExisting does nothing and returns false.
func (tab *table) setExisting(k, v value) bool {
	if tab == nil {
		return false
	}
	k = normalizeKey(k)
	if i, ok := arrayIndex(k, len(tab.array)); ok {
		tab.array[i] = v
		if v == nil && i == len(tab.array)-1 {
			tab.shrinkArray()
		}
		return true
	}
	if tab.hash == nil {
		return false
	}
	hk := makeHashKey(k)
	if _, found := tab.hash[hk]; !found {
		return false
	}
	if v == nil {
		tab.deleteHash(k)
	} else {
		tab.hash[hk] = hashEntry{key: k, value: v}
	}
	return true
}

// clear removes all entries from the table,
// but retains the space allocated for the table.
// It does not remove the table's metatable association.
func (tab *table) clear() {
	clear(tab.array)
	tab.array = tab.array[:0]
	clear(tab.hash)
	tab.hashKeys = tab.hashKeys[:0]
}

// next returns the key/value pair that follows key in the table's
// iteration order: the array part in index order, then the hash part
// in insertion order. Passing a nil key returns the first pair. ok is
// false once iteration is exhausted.
func (tab *table) next(key value) (nextKey, nextValue value, ok bool) {
	if tab == nil {
		return nil, nil, false
	}
	key = normalizeKey(key)

	startArray := 0
	if key != nil {
		if i, isArr := arrayIndex(key, len(tab.array)); isArr {
			startArray = i + 1
		} else {
			return tab.nextHash(makeHashKey(key))
		}
	}
	for i := startArray; i < len(tab.array); i++ {
		if tab.array[i] != nil {
			return integerValue(i + 1), tab.array[i], true
		}
	}
	return tab.nextHash(hashKey{})
}

// nextHash returns the hash-part key/value pair that follows after,
// where after is either the zero [hashKey] (meaning "start of the hash
// part") or a key previously returned by next that is expected to be
// in hashKeys.
func (tab *table) nextHash(after hashKey) (nextKey, nextValue value, ok bool) {
	start := 0
	if after != (hashKey{}) {
		i := -1
		for j, k := range tab.hashKeys {
			if k == after {
				i = j
				break
			}
		}
		if i < 0 {
			return nil, nil, false
		}
		start = i + 1
	}
	for ; start < len(tab.hashKeys); start++ {
		hk := tab.hashKeys[start]
		if e, ok := tab.hash[hk]; ok {
			return e.key, e.value, true
		}
	}
	return nil, nil, false
}
