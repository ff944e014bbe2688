package agent

import (
	"regexp"
	"sort"
	"strings"
)

var (
	fenceRe  = regexp.MustCompile("(?s)```[ \t]*(?:python|py|python3)?[ \t]*\r?\n(.*?)```")
	symbolRe = regexp.MustCompile(`(?m)^(?:def|class)\s+([A-Za-z_]\w*)`)
	registRe = regexp.MustCompile(`\.register\(\s*["']([A-Za-z_]\w*)["']`)
)

// ExtractCode pulls python code out of a model answer. Fenced blocks are
// joined in order and the remaining prose becomes the reasoning. An answer
// without fences is taken as code when it looks like python.
func ExtractCode(text string) (code, reasoning string, ok bool) {
	matches := fenceRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		trimmed := strings.TrimSpace(text)
		if looksLikePython(trimmed) {
			return trimmed, "", true
		}
		return "", trimmed, false
	}

	var blocks []string
	var prose strings.Builder
	last := 0
	for _, m := range matches {
		prose.WriteString(text[last:m[0]])
		if block := strings.TrimSpace(text[m[2]:m[3]]); block != "" {
			blocks = append(blocks, block)
		}
		last = m[1]
	}
	prose.WriteString(text[last:])

	if len(blocks) == 0 {
		return "", strings.TrimSpace(prose.String()), false
	}
	return strings.Join(blocks, "\n\n"), strings.TrimSpace(prose.String()), true
}

func looksLikePython(s string) bool {
	if s == "" {
		return false
	}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "def ") ||
			strings.HasPrefix(line, "import ") ||
			strings.HasPrefix(line, "from ") ||
			strings.HasPrefix(line, "class ") ||
			strings.HasPrefix(line, "creator.create(") ||
			strings.HasPrefix(line, "toolbox") {
			return true
		}
	}
	return false
}

// Symbols returns the sorted top-level functions, classes and toolbox
// registrations defined by code.
func Symbols(code string) []string {
	seen := make(map[string]bool)
	for _, re := range []*regexp.Regexp{symbolRe, registRe} {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			seen[m[1]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
