package lang

// Precompile checks a rule source syntactically without executing
// anything.  It returns (true, "") when lexing and parsing succeed,
// and (false, diagnostic) otherwise.  The diagnostic carries the
// offending line and column in the formats of LexError and
// ParseError.
func Precompile(src string) (bool, string) {
	if _, err := Parse(src); err != nil {
		return false, err.Error()
	}
	return true, ""
}
