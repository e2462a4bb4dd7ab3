package grading

import "strings"

// matchBlank compares a fill-in answer against the accepted set: surrounding
// whitespace is ignored and letters compare case-insensitively.
func matchBlank(answer string, accepted []string) bool {
	a := strings.TrimSpace(answer)
	if a == "" {
		return false
	}
	for _, k := range accepted {
		if strings.EqualFold(a, strings.TrimSpace(k)) {
			return true
		}
	}
	return false
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[strings.TrimSpace(s)] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func equalTrimmed(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
