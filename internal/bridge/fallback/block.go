package fallback

import "strings"

// Prompt prefixes that mark the start of a new interactive input line in the
// agents we bridge (Claude-style "> ", common shell prompts).
var promptPrefixes = []string{"> ", ">", "❯", "$ "}

func isPromptLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	for _, p := range promptPrefixes {
		if trimmed == strings.TrimSpace(p) || strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// isSeparatorLine matches horizontal rules menus draw under the prompt.
func isSeparatorLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len([]rune(trimmed)) < 3 {
		return false
	}
	for _, r := range trimmed {
		switch r {
		case '-', '─', '━', '=', '＿', '_':
		default:
			return false
		}
	}
	return true
}

// ExtractLastBlock returns the substring from the final prompt-marker
// occurrence to the end, trailing blank lines trimmed; the whole text when no
// marker is found.
func ExtractLastBlock(text string) string {
	lines := strings.Split(text, "\n")
	start := 0
	for i := len(lines) - 1; i >= 0; i-- {
		if isPromptLine(lines[i]) {
			start = i
			break
		}
	}
	block := lines[start:]
	for len(block) > 0 && strings.TrimSpace(block[len(block)-1]) == "" {
		block = block[:len(block)-1]
	}
	return strings.Join(block, "\n")
}

// IsIdleBlock classifies blocks that carry no agent output: empty, a bare
// prompt, or a prompt followed by a separator and a short (≤3 line) menu.
func IsIdleBlock(block string) bool {
	if strings.TrimSpace(block) == "" {
		return true
	}
	lines := strings.Split(block, "\n")
	if !isPromptLine(lines[0]) {
		return false
	}
	rest := lines[1:]
	for len(rest) > 0 && strings.TrimSpace(rest[len(rest)-1]) == "" {
		rest = rest[:len(rest)-1]
	}
	if len(rest) == 0 {
		return true
	}
	if !isSeparatorLine(rest[0]) {
		return false
	}
	return len(rest)-1 <= 3
}
