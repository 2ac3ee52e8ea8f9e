package ldfmock

// Collection Utility Function: some
// Check if any of the object in current collection satisfy fn.
//
// ex:
// collection: ["http://a.org/x", "http://b.org/y"]
// fn: strings.HasPrefix(v, "http://b.org")
// output: true
func some[T any](collections []T, fn func(T) bool) bool {
	for _, data := range collections {
		if fn(data) {
			return true
		}
	}
	return false
}

// Collection Utility Function: filter
// Return elements that satisfy condition, keeping the collection order.
//
// ex:
// collection: [TPF, File, SPARQL]
// condition: not mocked
// output: [File]
func filter[T any](collections []T, condition func(T) bool) []T {
	var result []T
	for _, data := range collections {
		if condition(data) {
			result = append(result, data)
		}
	}
	return result
}

// Collection Utility Function: mapTo
// Transform every element of a collection.
func mapTo[T, R any](collections []T, fn func(T) R) []R {
	result := make([]R, 0, len(collections))
	for _, data := range collections {
		result = append(result, fn(data))
	}
	return result
}

// Collection Utility Function: unique
// Drop repeated elements, keeping the first occurrence.
func unique[T comparable](collections []T) []T {
	seen := make(map[T]struct{}, len(collections))
	var result []T
	for _, data := range collections {
		if _, ok := seen[data]; ok {
			continue
		}
		seen[data] = struct{}{}
		result = append(result, data)
	}
	return result
}
