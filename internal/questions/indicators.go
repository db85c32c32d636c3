// Package questions implements the investigation question pipeline:
// generation with a deterministic fallback, parent/child hierarchy
// expansion of compound indicator questions, and capability mapping.
package questions

import (
	"regexp"
	"strings"

	"inquest/pkg/blackboard"
)

// Indicator type names used throughout the pipeline.
const (
	IndicatorIP       = "ip"
	IndicatorDomain   = "domain"
	IndicatorHash     = "hash"
	IndicatorFilepath = "filepath"
	IndicatorHostname = "hostname"
)

// Explicit "type: value" annotations are preferred over bare pattern
// detection; a question author who labeled an indicator knows its type.
var annotatedPattern = regexp.MustCompile(`(?i)\b(ip|domain|hash|filepath|hostname)\s*:\s*([^\s,()]+)`)

// Bare patterns, tried in order after annotations. Hostname is last and
// deliberately narrow (name-dash-number shapes) to limit false positives.
var barePatterns = []struct {
	indicatorType string
	re            *regexp.Regexp
}{
	{IndicatorIP, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{IndicatorHash, regexp.MustCompile(`\b[a-fA-F0-9]{64}\b|\b[a-fA-F0-9]{40}\b|\b[a-fA-F0-9]{32}\b`)},
	{IndicatorFilepath, regexp.MustCompile(`(?:[A-Za-z]:\\[^\s,;()]+)|(?:/(?:[\w.-]+/)*[\w.-]+\.\w+)`)},
	{IndicatorDomain, regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9][a-z0-9-]*)+\b`)},
	{IndicatorHostname, regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9]{2,}-\d{1,4}\b`)},
}

// ExtractIndicators finds all distinct indicator-shaped substrings in a
// question's wording, typed via explicit annotation first and bare pattern
// match second. Order of first appearance is preserved.
func ExtractIndicators(text string) []blackboard.Indicator {
	var indicators []blackboard.Indicator
	seen := make(map[string]bool)

	add := func(indicatorType, value string) {
		value = strings.Trim(value, `"'.,;`)
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		indicators = append(indicators, blackboard.Indicator{Type: indicatorType, Value: value})
	}

	for _, match := range annotatedPattern.FindAllStringSubmatch(text, -1) {
		add(strings.ToLower(match[1]), match[2])
	}

	for _, bp := range barePatterns {
		for _, loc := range bp.re.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			if bp.indicatorType == IndicatorDomain {
				if looksLikeIP(value) {
					continue
				}
				// A dotted name inside a filepath is not a domain.
				if loc[0] > 0 && (text[loc[0]-1] == '/' || text[loc[0]-1] == '\\') {
					continue
				}
			}
			add(bp.indicatorType, value)
		}
	}

	return indicators
}

func looksLikeIP(s string) bool {
	return barePatterns[0].re.MatchString(s)
}
