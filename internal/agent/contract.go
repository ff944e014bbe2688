package agent

import "regexp"

// contract describes the code shape a role must produce.
type contract struct {
	describe string
	required []*regexp.Regexp
}

// check returns a reason when code does not satisfy the contract.
func (c contract) check(code string) (string, bool) {
	for _, re := range c.required {
		if !re.MatchString(code) {
			return "expected code that " + c.describe, false
		}
	}
	return "", true
}

var (
	anyDefRe     = regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(`)
	returnRe     = regexp.MustCompile(`\breturn\b`)
	twoArgDefRe  = regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(\s*\w+\s*,\s*\w+`)
	creatorRe    = regexp.MustCompile(`creator\.create\(`)
	individualRe = regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(|\.register\(\s*["'](?:individual|population)["']`)
	selectionRe  = regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(\s*\w+\s*,\s*\w+|tools\.sel\w+`)
	toolboxRe    = regexp.MustCompile(`base\.Toolbox\(\s*\)`)
	registerRe   = regexp.MustCompile(`\.register\(`)
)
