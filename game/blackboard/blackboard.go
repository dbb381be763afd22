// Package blackboard is the pet's scratch memory: named values shared by
// behavior routines across ticks. It belongs to the tick goroutine and is
// not safe for concurrent use.
package blackboard

import "sort"

type Board struct {
	values map[string]any
}

func New() *Board {
	return &Board{values: make(map[string]any)}
}

func (b *Board) Set(key string, v any) { b.values[key] = v }

func (b *Board) Get(key string) (any, bool) {
	v, ok := b.values[key]
	return v, ok
}

func (b *Board) Delete(key string) { delete(b.values, key) }

// DeletePrefix removes every key starting with prefix and returns how many
// were removed. Routines namespace their keys so they can be wiped at once.
func (b *Board) DeletePrefix(prefix string) int {
	n := 0
	for k := range b.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(b.values, k)
			n++
		}
	}
	return n
}

// Float returns the float64 stored at key, or def.
func (b *Board) Float(key string, def float64) float64 {
	if v, ok := b.values[key].(float64); ok {
		return v
	}
	return def
}

// Int returns the int stored at key, or def.
func (b *Board) Int(key string, def int) int {
	if v, ok := b.values[key].(int); ok {
		return v
	}
	return def
}

func (b *Board) Bool(key string) bool {
	v, _ := b.values[key].(bool)
	return v
}

func (b *Board) Len() int { return len(b.values) }

// Keys returns the keys in sorted order.
func (b *Board) Keys() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
