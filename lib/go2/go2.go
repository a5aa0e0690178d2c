// Package go2 contains generic helpers missing from the standard library.
package go2

// Pointer returns a pointer to a copy of v.
func Pointer[T any](v T) *T {
	return &v
}

func Contains[T comparable](els []T, el T) bool {
	for _, el2 := range els {
		if el2 == el {
			return true
		}
	}
	return false
}

// Unique returns els without repeats, keeping the first occurrence of each.
func Unique[T comparable](els []T) []T {
	seen := make(map[T]struct{}, len(els))
	out := els[:0:0]
	for _, el := range els {
		if _, ok := seen[el]; ok {
			continue
		}
		seen[el] = struct{}{}
		out = append(out, el)
	}
	return out
}
