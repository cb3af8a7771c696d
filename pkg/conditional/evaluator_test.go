package conditional

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCCEvaluatorGuards(t *testing.T) {
	eval := NewCCEvaluator()

	tests := []struct {
		name      string
		directive string
		defined   []string
		want      bool
	}{
		{"ifdef defined", "#ifdef CONFIG_A", []string{"CONFIG_A"}, true},
		{"ifdef undefined", "#ifdef CONFIG_A", nil, false},
		{"ifndef undefined", "#ifndef CONFIG_A", nil, true},
		{"ifndef defined", "#ifndef CONFIG_A", []string{"CONFIG_A"}, false},
		{"or left", "#if defined(CONFIG_A) || defined(CONFIG_B)", []string{"CONFIG_A"}, true},
		{"or right", "#if defined(CONFIG_A) || defined(CONFIG_B)", []string{"CONFIG_B"}, true},
		{"or neither", "#if defined(CONFIG_A) || defined(CONFIG_B)", nil, false},
		{"and both", "#if defined(CONFIG_A) && defined(CONFIG_B)", []string{"CONFIG_A", "CONFIG_B"}, true},
		{"and half", "#if defined(CONFIG_A) && defined(CONFIG_B)", []string{"CONFIG_A"}, false},
		{"literal true", "#if 1", nil, true},
		{"literal false", "#if 0", nil, false},
		{"undefined is zero", "#if CONFIG_N > 0", nil, false},
		{"defined is one", "#if CONFIG_N > 0", []string{"CONFIG_N"}, true},
		{"negation", "#if !defined(CONFIG_A)", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Satisfies(tt.directive, tt.defined)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCCEvaluatorMalformedGuard(t *testing.T) {
	eval := NewCCEvaluator()

	// A broken expression must never register as satisfied, whether the
	// preprocessor reports an error or swallows it.
	got, _ := eval.Satisfies("#if defined(", []string{"CONFIG_A"})
	assert.False(t, got)
}

func TestEnumerateProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		drawn := rapid.SliceOfN(rapid.StringMatching(`CONFIG_[A-Z][A-Z0-9]{0,6}`), 0, 6).Draw(rt, "flags")

		seenFlag := make(map[string]bool)
		var flags []string
		for _, f := range drawn {
			if !seenFlag[f] {
				seenFlag[f] = true
				flags = append(flags, f)
			}
		}

		subsets := enumerate(flags)
		if len(subsets) != 1<<uint(len(flags)) {
			rt.Fatalf("got %d subsets for %d flags, want %d", len(subsets), len(flags), 1<<uint(len(flags)))
		}
		if len(subsets[0]) != 0 {
			rt.Fatalf("first subset must be empty, got %v", subsets[0])
		}
		if len(flags) > 0 {
			last := subsets[len(subsets)-1]
			if strings.Join(last, ",") != strings.Join(flags, ",") {
				rt.Fatalf("last subset must be the full set, got %v", last)
			}
		}

		seen := make(map[string]bool, len(subsets))
		for _, s := range subsets {
			key := strings.Join(s, ",")
			if seen[key] {
				rt.Fatalf("duplicate subset %v", s)
			}
			seen[key] = true
		}
	})
}

func TestMinimalProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.SliceOfN(
			rapid.SliceOfN(rapid.StringMatching(`CONFIG_[A-D]`), 0, 3),
			0, 8,
		).Draw(rt, "subsets")

		out := minimal(in)

		// Every surviving subset was in the input.
		for _, s := range out {
			found := false
			for _, orig := range in {
				if strings.Join(orig, ",") == strings.Join(s, ",") {
					found = true
					break
				}
			}
			if !found {
				rt.Fatalf("minimal invented subset %v", s)
			}
		}

		// No surviving subset strictly contains another input subset.
		for _, s := range out {
			for _, other := range in {
				if len(other) < len(s) && isSubset(other, s) {
					rt.Fatalf("subset %v still dominated by %v", s, other)
				}
			}
		}
	})
}
