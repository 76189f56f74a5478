package trust

// Verdict classifies one requirement after its archive has been hashed.
type Verdict int

const (
	// Matched: the computed digest equals the annotated one.
	Matched Verdict = iota
	// Mismatched: an annotation exists but the downloaded bytes differ.
	Mismatched
	// Unexpected: no annotation was declared for the requirement.
	Unexpected
)

func (v Verdict) String() string {
	switch v {
	case Matched:
		return "matched"
	case Mismatched:
		return "mismatched"
	case Unexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Result is the verdict for one package, with both sides of the comparison.
type Result struct {
	Name     string
	Verdict  Verdict
	Expected string // empty for Unexpected
	Got      string
}

// Evaluate classifies each named package by comparing its annotated digest
// against the computed one. Comparison is exact string equality, with no
// normalization and no case folding. Results come back in the order of
// names, so reports stay reproducible.
func Evaluate(names []string, expected, computed map[string]string) []Result {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		got := computed[name]
		exp, ok := expected[name]
		switch {
		case !ok:
			results = append(results, Result{Name: name, Verdict: Unexpected, Got: got})
		case got != exp:
			results = append(results, Result{Name: name, Verdict: Mismatched, Expected: exp, Got: got})
		default:
			results = append(results, Result{Name: name, Verdict: Matched, Expected: exp, Got: got})
		}
	}
	return results
}
