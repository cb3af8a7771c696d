package conditional

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	cc "modernc.org/cc/v3"
)

// Evaluator decides whether one flag subset makes a guard expression true.
type Evaluator interface {
	// Satisfies preprocesses the guard with exactly the given flags
	// defined (to 1) and reports whether the guarded region survives.
	Satisfies(directive string, defined []string) (bool, error)
}

// sentinelRe matches the survival marker in preprocessor output,
// tolerating token-stream spacing.
var sentinelRe = regexp.MustCompile(`found\s*\(\s*1\s*\)`)

// CCEvaluator evaluates guards with a pure-Go C preprocessor, so no
// external toolchain is needed for satisfiability search.
type CCEvaluator struct {
	cfg *cc.Config
}

// NewCCEvaluator creates the preprocessor-backed evaluator.
func NewCCEvaluator() *CCEvaluator {
	cfg := &cc.Config{
		PreprocessOnly: true,
	}
	if abi, err := cc.NewABIFromEnv(); err == nil {
		cfg.ABI = abi
	}
	return &CCEvaluator{cfg: cfg}
}

// Satisfies builds a snippet defining the subset, restating the guard, and
// placing a sentinel statement inside the guarded region:
//
//	#define <flag> 1 ...
//	<directive>
//	found(1);
//	#endif
//
// The subset satisfies the guard when the sentinel survives preprocessing.
func (e *CCEvaluator) Satisfies(directive string, defined []string) (bool, error) {
	var sb strings.Builder
	for _, flag := range defined {
		fmt.Fprintf(&sb, "#define %s 1\n", flag)
	}
	sb.WriteString(directive)
	sb.WriteString("\nfound(1);\n#endif\n")

	src := []cc.Source{{
		Name:  "guard.c",
		Value: sb.String(),
		// Each evaluation must see a fresh macro universe; the package
		// level source cache would leak defines between subsets.
		DoNotCache: true,
	}}

	var out bytes.Buffer
	if err := cc.Preprocess(e.cfg, nil, nil, src, &out); err != nil {
		return false, err
	}
	return sentinelRe.Match(out.Bytes()), nil
}
