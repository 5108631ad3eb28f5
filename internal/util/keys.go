package util

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// HashKey returns the hex SHA-256 of key. Used where a key must become a safe file name.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// UniqSorted returns a sorted copy of s without duplicates or empty strings.
func UniqSorted(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	w := 0
	for i, v := range out {
		if i > 0 && v == out[w-1] {
			continue
		}
		out[w] = v
		w++
	}
	return out[:w]
}

// Without returns s minus every element of drop. s is not mutated.
func Without(s []string, drop ...string) []string {
	if len(drop) == 0 {
		return s
	}
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(s))
	for _, v := range s {
		if _, ok := skip[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
