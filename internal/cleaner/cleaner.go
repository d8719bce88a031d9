// Package cleaner strips navigation chrome, feedback widgets, and other
// non-content noise out of scraped documentation markdown, and provides
// boundary-aware truncation for bounded responses.
package cleaner

import (
	"regexp"
	"strings"
)

// skipSectionHeaders name sections dropped wholesale: the header and its
// entire body until the next header of equal or shallower level.
var skipSectionHeaders = []string{
	"related articles",
	"related pages",
	"related links",
	"related resources",
	"see also",
	"next steps",
	"additional resources",
	"feedback",
	"contribute",
	"help us improve",
}

// tocHeaders name table-of-contents sections. Only the header itself and the
// link-only list lines under it are dropped; real content under the header
// survives.
var tocHeaders = []string{
	"in this article",
	"in this page",
	"in this section",
	"in this document",
	"in this guide",
	"on this page",
	"table of contents",
	"contents",
	"quick links",
	"navigation",
	"jump to",
}

var (
	headerRe     = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	breadcrumbRe = regexp.MustCompile(`^[^>›»/]+(\s*[>›»/]\s*[^>›»/]+){2,}$`)
	anchorLinkRe = regexp.MustCompile(`^\s*\[[^\]]*\]\(#[^)]*\)\s*$`)
	listLinkRe   = regexp.MustCompile(`^\s*[-*+]\s*\[[^\]]*\]\([^)]*\)\s*$`)
	minReadRe    = regexp.MustCompile(`(?i)^\s*\d+\s*min(ute)?s?\s+read\s*$`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

// noisePhrases are matched case-insensitively against single lines. A line
// containing one of these (and little else) is dropped.
var noisePhrases = []string{
	"last updated",
	"last modified",
	"last edited",
	"edit this page",
	"was this page helpful",
	"was this article helpful",
	"was this helpful",
	"rate this",
	"did this help",
	"share this",
	"share on",
	"tweet",
	"follow us",
	"we use cookies",
	"this site uses cookies",
	"cookie policy",
	"accept cookies",
	"cookie settings",
}

// Clean filters documentation markdown line by line, removing navigation
// sections, TOC blocks, and per-line noise. Idempotent: cleaning already
// clean content is a no-op.
func Clean(markdown string) string {
	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))

	skipLevel := 0 // >0 while inside a skipped section
	inTOC := false

	for _, line := range lines {
		if m := headerRe.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			title := strings.ToLower(strings.TrimSpace(m[2]))

			if skipLevel > 0 && level <= skipLevel {
				skipLevel = 0
			}
			inTOC = false

			if skipLevel == 0 {
				if matchesAny(title, skipSectionHeaders) {
					skipLevel = level
					continue
				}
				if matchesAny(title, tocHeaders) {
					inTOC = true
					continue
				}
				out = append(out, line)
			}
			continue
		}

		if skipLevel > 0 {
			continue
		}

		if inTOC {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || listLinkRe.MatchString(line) || anchorLinkRe.MatchString(line) {
				continue
			}
			// First non-TOC content line ends the TOC block
			inTOC = false
		}

		if isNoiseLine(line) {
			// Keep an empty line in its place so surrounding paragraphs
			// don't merge; the post-pass collapses the extras
			out = append(out, "")
			continue
		}

		out = append(out, line)
	}

	result := strings.Join(out, "\n")
	result = multiNewline.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

func matchesAny(title string, phrases []string) bool {
	for _, p := range phrases {
		if strings.HasPrefix(title, p) {
			return true
		}
	}
	return false
}

func isNoiseLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if breadcrumbRe.MatchString(trimmed) && !strings.Contains(trimmed, "](") {
		return true
	}
	if anchorLinkRe.MatchString(trimmed) {
		return true
	}
	if minReadRe.MatchString(trimmed) {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range noisePhrases {
		if strings.Contains(lower, phrase) && len(trimmed) < 120 {
			return true
		}
	}
	return false
}

// truncationMarker is appended to content cut by Truncate.
const truncationMarker = "\n\n[Content truncated...]"

// Truncate cuts content to at most maxLen characters, preferring a paragraph
// break after 70% of maxLen, then a sentence boundary after 80%, then a word
// boundary after 90%, before falling back to a hard cut. The marker is
// appended to anything shortened.
func Truncate(content string, maxLen int) string {
	if maxLen <= 0 || len(content) <= maxLen {
		return content
	}

	window := content[:maxLen]

	if idx := strings.LastIndex(window, "\n\n"); idx >= maxLen*70/100 {
		return content[:idx] + truncationMarker
	}

	if idx := lastSentenceEnd(window); idx >= maxLen*80/100 {
		return content[:idx] + truncationMarker
	}

	if idx := strings.LastIndexAny(window, " \t\n"); idx >= maxLen*90/100 {
		return content[:idx] + truncationMarker
	}

	return window + truncationMarker
}

// lastSentenceEnd returns the index just past the last sentence-ending
// punctuation followed by whitespace, or -1.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i > 0; i-- {
		c := s[i]
		if c == ' ' || c == '\n' {
			prev := s[i-1]
			if prev == '.' || prev == '!' || prev == '?' {
				return i
			}
		}
	}
	return -1
}
