package astdump

import "strings"

// DecodeSignature splits a qualified type signature into a return type and
// parameter entries. The text before the first top-level '(' is the return
// type; inside that group, only commas at parenthesis depth 1 separate
// parameters, so nested groups such as function-pointer parameter types
// stay verbatim inside their entry. Text after the first top-level group
// closes (trailing attributes) is ignored, and a string with no parameter
// list at all decodes as a bare return type.
func DecodeSignature(sig string) (ret string, params []string) {
	depth := 0
	var token strings.Builder

	flush := func() {
		if p := strings.TrimSpace(token.String()); p != "" {
			params = append(params, p)
		}
		token.Reset()
	}

	for _, ch := range sig {
		if depth == 0 {
			if ch == '(' {
				ret = strings.TrimSpace(token.String())
				token.Reset()
				depth = 1
				continue
			}
			token.WriteRune(ch)
			continue
		}
		switch {
		case ch == '(':
			depth++
			token.WriteRune(ch)
		case ch == ')':
			depth--
			if depth == 0 {
				flush()
				return ret, params
			}
			token.WriteRune(ch)
		case ch == ',' && depth == 1:
			flush()
		default:
			token.WriteRune(ch)
		}
	}

	if depth == 0 {
		// No parameter list: the whole string is the return type.
		ret = strings.TrimSpace(token.String())
	} else {
		// Unterminated list: keep what was scanned.
		flush()
	}
	return ret, params
}
