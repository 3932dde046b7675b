// Package quality classifies extracted content: real text versus page-shell
// boilerplate and login walls.
package quality

import (
	"regexp"
	"strings"
)

// Rendering-required sources must clear this many characters of real text
// before a response counts as usable.
const textualFloor = 100

// A page under this textual length containing multiple login phrases is
// treated as a login wall rather than content.
const loginWallCeiling = 500

var (
	mdImageRe = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe  = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	// Bare URLs and the call-to-action lead-ins that would dangle once the
	// URL itself is gone ("visit https://...").
	bareURLRe = regexp.MustCompile(`(?i)(?:\b(?:visit|see|check out)\s+)?https?://[^\s)\]]+`)
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// loginPhrases is a fixed English-only heuristic list. Non-English login
// walls are a known gap.
var loginPhrases = []string{
	"log in",
	"sign in",
	"sign up",
	"create an account",
	"forgot password",
	"continue with google",
}

// StripNonText removes markup that inflates a naive length check without
// carrying any readable text: markdown image syntax, link targets (visible
// link text is kept), bare URLs, and HTML tags.
func StripNonText(content string) string {
	s := mdImageRe.ReplaceAllString(content, " ")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = bareURLRe.ReplaceAllString(s, " ")
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TextualLength is the character count of the content after StripNonText.
// A profile photo rendered as markdown image syntax contributes nothing.
func TextualLength(content string) int {
	return len([]rune(StripNonText(content)))
}

// IsLoginWall reports whether content looks like an authentication gate:
// at least two login-related phrases and under 500 characters of real text.
func IsLoginWall(content string) bool {
	textLen := TextualLength(content)
	if textLen >= loginWallCeiling {
		return false
	}

	lower := strings.ToLower(content)
	hits := 0
	for _, phrase := range loginPhrases {
		if strings.Contains(lower, phrase) {
			hits++
		}
	}
	return hits >= 2
}

// Verdict is the quality gate's assessment of one tier's output.
type Verdict struct {
	TextLen     int
	Boilerplate bool
	LoginWall   bool
}

// Evaluate runs both gate checks. The textual floor applies only to sources
// that require client-side rendering; short output from an ordinary page is
// tolerated as-is.
func Evaluate(content string, requiresRendering bool) Verdict {
	v := Verdict{
		TextLen:   TextualLength(content),
		LoginWall: IsLoginWall(content),
	}
	if requiresRendering && v.TextLen < textualFloor {
		v.Boilerplate = true
	}
	return v
}
