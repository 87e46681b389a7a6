// Package format holds helpers for Telegram HTML parse mode text.
package format

import (
	"regexp"
	"strings"
)

const (
	boldOpen  = "<b>"
	boldClose = "</b>"
	// Marker is the inline-bold delimiter used in editable text.
	Marker = "*"
)

var (
	breakTag   = regexp.MustCompile(`(?i)<br\s*/?>`)
	extraLines = regexp.MustCompile(`\n{3,}`)
)

// Bold wraps s in bold tags.
func Bold(s string) string {
	return boldOpen + s + boldClose
}

// Link renders an anchor tag.
func Link(href, text string) string {
	return `<a href="` + href + `">` + text + `</a>`
}

// BoldSegments splits s on Marker and wraps every odd segment in bold tags.
// "go *fast* but *safe*" becomes "go <b>fast</b> but <b>safe</b>".
// Each segment is wrapped on its own so the result is always balanced,
// even for an odd number of markers. Empty odd segments still produce a
// tag pair.
func BoldSegments(s string) string {
	parts := strings.Split(s, Marker)
	var b strings.Builder
	b.Grow(len(s) + len(parts)*len(boldOpen+boldClose)/2)
	for i, part := range parts {
		if i%2 == 1 {
			b.WriteString(Bold(part))
			continue
		}
		b.WriteString(part)
	}
	return b.String()
}

// NormalizeBreaks turns CRLF and <br> variants into "\n", collapses runs of
// blank lines and trims surrounding whitespace.
func NormalizeBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = breakTag.ReplaceAllString(s, "\n")
	s = extraLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Description converts operator input into HTML: line breaks are normalized
// and *marked* segments are bolded.
func Description(raw string) string {
	return BoldSegments(NormalizeBreaks(raw))
}

// BalancedBold reports whether the bold open and close tag counts match.
func BalancedBold(html string) bool {
	return strings.Count(html, boldOpen) == strings.Count(html, boldClose)
}

// RepairBold returns html unchanged when its bold tags are balanced. Otherwise
// every bold tag is stripped and the text is re-bolded from its markers.
func RepairBold(html string) (string, bool) {
	if BalancedBold(html) {
		return html, false
	}
	stripped := strings.NewReplacer(boldOpen, "", boldClose, "").Replace(html)
	return BoldSegments(stripped), true
}

// Editable converts HTML back into the marker form shown to operators.
func Editable(html string) string {
	if html == "" {
		return ""
	}
	html = strings.NewReplacer(boldOpen, Marker, boldClose, Marker).Replace(html)
	return breakTag.ReplaceAllString(html, "\n")
}
