package text

import (
	"regexp"
	"strings"
)

// DefaultStyle is the style label in effect before any tag appears in a
// script.
const DefaultStyle = "Regular"

// StyleSegment is a span of script text together with the speech style active
// at that point. Segments are produced transiently from a script string and
// never persisted.
type StyleSegment struct {
	Style string `json:"style"`
	Text  string `json:"text"`
}

var styleTag = regexp.MustCompile(`\{(.*?)\}`)

// ParseStyleSegments splits a script containing zero or more {label} tags
// into ordered (style, text) segments. Text spans that trim to empty are
// dropped, but a style change with no following text still updates the
// current style for the next segment. Single pass, stateless across calls.
func ParseStyleSegments(script string) []StyleSegment {
	currentStyle := DefaultStyle
	var segments []StyleSegment

	rest := script
	for {
		loc := styleTag.FindStringSubmatchIndex(rest)
		if loc == nil {
			if t := strings.TrimSpace(rest); t != "" {
				segments = append(segments, StyleSegment{Style: currentStyle, Text: t})
			}
			return segments
		}
		if t := strings.TrimSpace(rest[:loc[0]]); t != "" {
			segments = append(segments, StyleSegment{Style: currentStyle, Text: t})
		}
		currentStyle = strings.TrimSpace(rest[loc[2]:loc[3]])
		rest = rest[loc[1]:]
	}
}
