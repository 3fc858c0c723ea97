package cards

// IsValidSet reports whether a, b and c form a set: for every attribute the
// three values are either all the same or all different.
func IsValidSet(a, b, c Card) bool {
	av, bv, cv := a.attributes(), b.attributes(), c.attributes()

	for i := range av {
		same := av[i] == bv[i] && bv[i] == cv[i]
		distinct := av[i] != bv[i] && bv[i] != cv[i] && av[i] != cv[i]
		if !same && !distinct {
			return false
		}
	}

	return true
}

// HasAnySet reports whether at least one set is present on the table.
func HasAnySet(table []Card) bool {
	_, ok := FindFirstSet(table)
	return ok
}

// FindFirstSet returns the first set on the table, scanning index triples
// i < j < k in ascending order.
func FindFirstSet(table []Card) ([3]int, bool) {
	n := len(table)
	for i := 0; i < n-2; i++ {
		for j := i + 1; j < n-1; j++ {
			for k := j + 1; k < n; k++ {
				if IsValidSet(table[i], table[j], table[k]) {
					return [3]int{i, j, k}, true
				}
			}
		}
	}

	return [3]int{}, false
}

// FindAllSets returns every set on the table in the same order FindFirstSet
// scans them.
func FindAllSets(table []Card) [][3]int {
	var sets [][3]int

	n := len(table)
	for i := 0; i < n-2; i++ {
		for j := i + 1; j < n-1; j++ {
			for k := j + 1; k < n; k++ {
				if IsValidSet(table[i], table[j], table[k]) {
					sets = append(sets, [3]int{i, j, k})
				}
			}
		}
	}

	return sets
}
