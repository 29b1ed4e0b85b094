package inbox

import (
	"strings"

	"strathyterm/internal/model"
)

// Filter returns threads whose subject, student name, student email or body
// contains query, case-insensitively. A blank query returns threads unchanged.
func Filter(threads []model.Thread, query string) []model.Thread {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return threads
	}
	var out []model.Thread
	for _, t := range threads {
		haystack := strings.ToLower(strings.Join([]string{t.Subject, t.StudentName, t.StudentEmail, t.Body}, "\n"))
		if strings.Contains(haystack, q) {
			out = append(out, t)
		}
	}
	return out
}

// Paginate returns the 1-based page of size pageSize. Pages past the end are
// empty; page < 1 is treated as 1.
func Paginate(threads []model.Thread, pageSize, page int) []model.Thread {
	if pageSize <= 0 {
		return nil
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(threads) {
		return nil
	}
	end := min(start+pageSize, len(threads))
	return threads[start:end]
}

// TotalPages is ceil(n / pageSize).
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 || n <= 0 {
		return 0
	}
	return (n + pageSize - 1) / pageSize
}
