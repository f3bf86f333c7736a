// Package similartext suggests names close to a misspelled one.
package similartext

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DistanceSkipped is the maximum edit distance of a suggested name.
const DistanceSkipped = 2

// Find returns a hint listing the names closest to src, or an empty string
// if none is close enough.
func Find(names []string, src string) string {
	if len(src) == 0 {
		return ""
	}

	minDistance := -1
	matches := make(map[int][]string)
	for _, name := range names {
		dist := levenshtein.ComputeDistance(src, name)
		if dist > DistanceSkipped {
			continue
		}

		if minDistance == -1 || dist < minDistance {
			minDistance = dist
		}
		matches[dist] = append(matches[dist], name)
	}

	if len(matches) == 0 {
		return ""
	}

	return fmt.Sprintf(", maybe you mean %s?", strings.Join(matches[minDistance], " or "))
}

// FindFromMap does the same as Find but taking the sorted keys of a map
// with string keys.
func FindFromMap(names interface{}, src string) string {
	rnames := reflect.ValueOf(names)
	if rnames.Kind() != reflect.Map {
		panic("similartext.FindFromMap: names must be a map")
	}

	var keys []string
	for _, k := range rnames.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	return Find(keys, src)
}
