package context

import "strings"

// ContentType represents the type of content for token estimation.
type ContentType int

const (
	ContentTypeProse ContentType = iota
	ContentTypeCode
	ContentTypeJSON
	ContentTypeMixed
)

// heuristicMargin inflates heuristic estimates so they err on the high side
// of a real BPE tokenizer.
const heuristicMargin = 1.15

// EstimateTokens estimates tokens without a tokenizer. It over-counts rather
// than under-counts and is deterministic for a given text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	raw := estimateTokensForType(text, detectContentType(text))
	est := int(float64(raw)*heuristicMargin) + 1
	return est
}

func estimateTokensForType(text string, contentType ContentType) int {
	chars := len(text)
	words := len(strings.Fields(text))

	switch contentType {
	case ContentTypeCode:
		// identifiers, operators and indentation split into many short tokens
		return maxInt(int(float64(chars)/3.0), int(float64(words)*1.6))

	case ContentTypeJSON:
		return int(float64(chars) / 2.8)

	case ContentTypeProse:
		return maxInt(int(float64(words)*1.35), chars/4)

	default:
		return maxInt(int(float64(words)*1.5), int(float64(chars)/3.3))
	}
}

// detectContentType analyzes text to determine its type.
func detectContentType(text string) ContentType {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ContentTypeProse
	}

	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		return ContentTypeJSON
	}

	lines := strings.Split(trimmed, "\n")
	codeLines := 0
	for _, line := range lines {
		if isCodeLine(strings.TrimSpace(line)) {
			codeLines++
		}
	}

	ratio := float64(codeLines) / float64(len(lines))
	switch {
	case ratio >= 0.5:
		return ContentTypeCode
	case ratio >= 0.15:
		return ContentTypeMixed
	default:
		return ContentTypeProse
	}
}

func isCodeLine(line string) bool {
	for _, prefix := range []string{
		"def ", "class ", "import ", "from ", "return ", "for ", "while ",
		"if ", "elif ", "else:", "try:", "except", "with ", "#", "@",
	} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return strings.HasSuffix(line, ":") ||
		strings.HasSuffix(line, ")") ||
		strings.Contains(line, " = ") ||
		strings.Contains(line, "toolbox.")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
