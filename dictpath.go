package cktools

// Value lookup in decoded JSON trees by dot-separated key paths.

import (
	"fmt"
	"strings"
)

// mapLookup looks up the value whose key, in string form, equals key. The second result is
// false if node is not a mapping or has no such key.
func mapLookup(node interface{}, key string) (interface{}, bool) {
	switch m := node.(type) {
	case map[string]interface{}:
		v, ok := m[key]
		return v, ok
	case map[interface{}]interface{}:
		if v, ok := m[key]; ok {
			return v, true
		}
		for k, v := range m {
			if fmt.Sprint(k) == key {
				return v, true
			}
		}
	}
	return nil, false
}

func isMapping(node interface{}) bool {
	switch node.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
		return true
	}
	return false
}

// GetValue returns the single value at path in tree, e.g. "info.version". Every node along the
// path must be a mapping; the second result is false if any key is missing or an intermediate
// value is not a mapping.
func GetValue(tree interface{}, path string) (interface{}, bool) {
	keys := strings.Split(path, ".")

	node := tree
	for _, key := range keys[:len(keys)-1] {
		v, ok := mapLookup(node, key)
		if !ok || !isMapping(v) {
			return nil, false
		}
		node = v
	}

	return mapLookup(node, keys[len(keys)-1])
}

// GetValues returns all values at path in tree. When a sequence is met before the last key, the
// rest of the path is resolved against each of its elements and the results are concatenated in
// element order. This collects a field repeated across lists of records, e.g.
// GetValues(coco, "annotations.category_id").
//
// The result is empty, never nil, if nothing matches or tree is not a mapping.
func GetValues(tree interface{}, path string) []interface{} {
	return appendValues(make([]interface{}, 0), tree, strings.Split(path, "."))
}

func appendValues(values []interface{}, tree interface{}, keys []string) []interface{} {
	if !isMapping(tree) {
		return values
	}

	node := tree
	for i, key := range keys[:len(keys)-1] {
		v, ok := mapLookup(node, key)
		if !ok {
			return values
		}
		if list, isList := v.([]interface{}); isList {
			for _, item := range list {
				values = appendValues(values, item, keys[i+1:])
			}
			return values
		}
		node = v
	}

	if v, ok := mapLookup(node, keys[len(keys)-1]); ok {
		values = append(values, v)
	}
	return values
}
