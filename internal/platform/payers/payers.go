// Package payers holds the static known-payer registry and the payer-name
// normalization shared by manual-entry validation and adapter selection.
package payers

import "strings"

// known lists payers accepted during manual entry, keyed by normalized name.
var known = map[string]string{}

// Known payer display names. Extend as payer contracts are signed.
var names = []string{
	"Aetna",
	"Anthem Blue Cross",
	"Blue Cross Blue Shield",
	"Cigna",
	"Humana",
	"Kaiser Permanente",
	"Oscar Health",
	"Oxford Health Plans",
	"UnitedHealthcare",
}

func init() {
	for _, n := range names {
		known[Normalize(n)] = n
	}
}

// Normalize lowercases a payer name and collapses interior whitespace so
// lookups tolerate casing and spacing differences from OCR or manual entry.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// IsKnown reports whether the payer name matches the registry after
// normalization.
func IsKnown(name string) bool {
	_, ok := known[Normalize(name)]
	return ok
}

// CanonicalName returns the registry's display name for a payer, or the
// input unchanged when the payer is not registered.
func CanonicalName(name string) string {
	if canonical, ok := known[Normalize(name)]; ok {
		return canonical
	}
	return name
}

// All returns the registered payer display names.
func All() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}
