// Package extract derives structured student details from free-text email
// bodies. Every function is total: no match yields empty strings.
package extract

import (
	"regexp"
	"strings"
)

// Matcher tables are tried in order and the first hit wins. Reordering them
// changes results.

// AdmissionPatterns capture the token after an admission/registration label.
var AdmissionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)admission(?:\s*no| number|#|:)?\s*[:#]?\s*([A-Za-z0-9\-]+)`),
	regexp.MustCompile(`(?i)admn(?:\.)?\s*[:#]?\s*([A-Za-z0-9\-]+)`),
	regexp.MustCompile(`(?i)reg(?:istration)?(?:\s*no| number|#|:)?\s*[:#]?\s*([A-Za-z0-9\-]+)`),
	regexp.MustCompile(`(?i)student\s*no(?:\s*[:#])?\s*([A-Za-z0-9\-]+)`),
}

// CoursePatterns capture course code, year (1-4, optionally "4.2") and group
// combinations.
var CoursePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([A-Z]{2,6}\s*[A-Z0-9]{0,4})\s+([1-4](?:\.[0-9])?)(?:\s*[-/]?\s*([A-Z]))`),
	regexp.MustCompile(`(?i)course\s*[:\-]?\s*([A-Za-z0-9\s\.]{2,30})\s*(year\s*)?([1-4](?:\.[0-9])?)\s*(group\s*)?([A-Za-z0-9]+)`),
	regexp.MustCompile(`(?i)([A-Z]{2,6}\s*[A-Z0-9]{0,4})\s+(year)?\s*([1-4](?:\.[0-9])?)`),
	regexp.MustCompile(`(?i)([A-Za-z]{2,10}\s*[A-Za-z0-9]{0,6})\s*-\s*([1-4](?:\.[0-9])?)`),
}

var (
	groupMention = regexp.MustCompile(`(?i)group(?:\s*[:#])?\s*([A-Za-z0-9]+)`)
	yearMention  = regexp.MustCompile(`(?i)year(?:\s*[:#])?\s*([1-4](?:\.[0-9])?)`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Details is the result of ExtractAdmissionAndGroup.
type Details struct {
	Admission   string
	CourseGroup string
}

// ExtractAdmissionAndGroup scans body for an admission number and a
// "course year group" string such as "BBIT 4.2 B".
func ExtractAdmissionAndGroup(body string) Details {
	text := strings.ReplaceAll(body, "\r", " ")
	return Details{
		Admission:   admission(text),
		CourseGroup: courseGroup(text),
	}
}

func admission(text string) string {
	for _, re := range AdmissionPatterns {
		if m := re.FindStringSubmatch(text); m != nil && m[1] != "" {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func courseGroup(text string) string {
	for _, re := range CoursePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if joined := joinCaptures(m[1:]); joined != "" {
			return joined
		}
	}

	var year, group string
	if m := yearMention.FindStringSubmatch(text); m != nil {
		year = m[1]
	}
	if m := groupMention.FindStringSubmatch(text); m != nil {
		group = m[1]
	}
	return strings.TrimSpace(year + " " + group)
}

func joinCaptures(captures []string) string {
	parts := make([]string, 0, len(captures))
	for _, c := range captures {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(strings.Join(parts, " "), " "))
}
