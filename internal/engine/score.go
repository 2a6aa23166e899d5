package engine

import "github.com/quizforge/quizforge/internal/bank"

func correctLabels(options []bank.Option) []string {
	var out []string
	for _, o := range options {
		if o.IsCorrect {
			out = append(out, o.Label)
		}
	}
	return out
}

// equalLabelSets is all-or-nothing scoring: equal cardinality and every
// selected label present in the key, order-insensitive. No partial
// credit on multi-select.
func equalLabelSets(selected, key []string) bool {
	if len(selected) != len(key) {
		return false
	}
	seen := map[string]int{}
	for _, l := range selected {
		seen[l]++
	}
	for _, l := range key {
		seen[l]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}
