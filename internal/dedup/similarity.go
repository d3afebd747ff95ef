package dedup

import (
	"regexp"
	"strings"
)

var (
	quotedHeaderRe = regexp.MustCompile(`(?m)^On .{1,200} wrote:\s*$`)
	originalMsgRe  = regexp.MustCompile(`(?m)^-{2,}\s*Original Message\s*-{2,}\s*$`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// StripQuoted removes quoted history from a reply body: everything from an
// "On ... wrote:" or "Original Message" marker on, plus ">"-prefixed lines.
func StripQuoted(body string) string {
	if loc := quotedHeaderRe.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	if loc := originalMsgRe.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}

	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func normalize(s string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// Similarity returns the Sørensen–Dice coefficient over character bigrams
// of the normalized inputs. Empty vs empty is 1.0; anything vs empty is 0.0.
func Similarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)

	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	if len(a) < 2 || len(b) < 2 {
		return 0.0
	}

	bigrams := make(map[string]int)
	for i := 0; i < len(a)-1; i++ {
		bigrams[a[i:i+2]]++
	}

	matches := 0
	for i := 0; i < len(b)-1; i++ {
		bg := b[i : i+2]
		if bigrams[bg] > 0 {
			bigrams[bg]--
			matches++
		}
	}

	return 2.0 * float64(matches) / float64(len(a)-1+len(b)-1)
}
