package bloom

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/hadro-db/hadro/pkg/hash"
)

// TestFilterProperties verifies the filter's contract with generated inputs.
// These properties must hold for any sizing and any insert sequence.
func TestFilterProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	// Property 1: no false negatives, for any parameter choice.
	properties.Property("added hashes always answer positive", prop.ForAll(
		func(items []string, expected int, fpRate float64) bool {
			f := New(expected, fpRate)
			for _, s := range items {
				f.Add(hash.Sum32String(s))
			}
			for _, s := range items {
				if !f.PossiblyContains(hash.Sum32String(s)) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(-10, 5000),
		gen.Float64Range(-0.5, 1.5),
	))

	// Property 2: serialization preserves every answer.
	properties.Property("round trip preserves membership answers", prop.ForAll(
		func(present []string, probes []string) bool {
			f := New(len(present), 0.01)
			for _, s := range present {
				f.Add(hash.Sum32String(s))
			}

			restored, err := UnmarshalBinary(f.MarshalBinary())
			if err != nil {
				return false
			}

			for _, s := range append(present, probes...) {
				h := hash.Sum32String(s)
				if f.PossiblyContains(h) != restored.PossiblyContains(h) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
