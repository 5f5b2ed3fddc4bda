package analyzer

import (
	"fmt"
	"strings"
)

// cleanPageText removes page furniture from raw PDF text: blank lines, bare
// page numbers, shouty short headers, boilerplate footers and symbol-only
// noise, then rejoins sentences broken across lines.
func cleanPageText(text string, pageNumber int) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isPageNumberLine(trimmed, pageNumber) {
			continue
		}
		if isHeaderFooter(trimmed) {
			continue
		}
		if isNoise(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(fixBrokenLines(strings.Join(kept, "\n")))
}

func isPageNumberLine(line string, pageNumber int) bool {
	if line == fmt.Sprintf("%d", pageNumber) {
		return true
	}
	patterns := []string{
		fmt.Sprintf("Page %d", pageNumber),
		fmt.Sprintf("- %d -", pageNumber),
		fmt.Sprintf("[%d]", pageNumber),
	}
	for _, p := range patterns {
		if strings.EqualFold(line, p) {
			return true
		}
	}
	return false
}

func isHeaderFooter(line string) bool {
	if len(line) < 3 {
		return true
	}
	if len(line) < 50 && strings.ToUpper(line) == line {
		if len(strings.Fields(line)) <= 2 {
			return true
		}
	}
	footers := []string{"CONFIDENTIAL", "COPYRIGHT", "ALL RIGHTS RESERVED", "PROPRIETARY"}
	upper := strings.ToUpper(line)
	for _, f := range footers {
		if strings.Contains(upper, f) && len(line) < 100 {
			return true
		}
	}
	return false
}

func isNoise(line string) bool {
	for _, r := range line {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// fixBrokenLines merges a line into the next when it does not end a sentence
// and the next starts lowercase, undoing hard wraps.
func fixBrokenLines(text string) string {
	lines := strings.Split(text, "\n")
	var fixed []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if i < len(lines)-1 {
			trimmed := strings.TrimSpace(line)
			next := strings.TrimSpace(lines[i+1])
			if trimmed != "" && next != "" {
				last := trimmed[len(trimmed)-1]
				sentenceEnd := last == '.' || last == '!' || last == '?' || last == ':' || last == ';'
				if !sentenceEnd && next[0] >= 'a' && next[0] <= 'z' && !strings.HasSuffix(trimmed, "-") {
					fixed = append(fixed, trimmed+" "+next)
					i++
					continue
				}
			}
		}
		fixed = append(fixed, line)
	}
	return strings.Join(fixed, "\n")
}
