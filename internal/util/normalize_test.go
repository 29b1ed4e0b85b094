package util

import (
	"testing"
	"time"
)

func TestParseSenderHeader(t *testing.T) {
	tests := []struct {
		in        string
		wantEmail string
		wantName  string
	}{
		{`Jane Doe <Jane.Doe@Strathmore.EDU>`, "jane.doe@strathmore.edu", "Jane Doe"},
		{`"Jane Doe" <jane@strathmore.edu>`, "jane@strathmore.edu", "Jane Doe"},
		{`  JOHN@strathmore.edu  `, "john@strathmore.edu", "JOHN@strathmore.edu"},
		{`<only@x.com>`, "only@x.com", ""},
		{`Broken <no-close`, "broken <no-close", "Broken"},
		{``, "", ""},
	}
	for _, tc := range tests {
		email, name := ParseSenderHeader(tc.in)
		if email != tc.wantEmail || name != tc.wantName {
			t.Errorf("ParseSenderHeader(%q) = (%q, %q); want (%q, %q)", tc.in, email, name, tc.wantEmail, tc.wantName)
		}
	}
}

func TestPrettyNameFromEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jane.doe@strathmore.edu", "Jane Doe"},
		{"john_k-mwangi@strathmore.edu", "John K Mwangi"},
		{"a..b@x.com", "A B"},
		{"plain", "Plain"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := PrettyNameFromEmail(tc.in); got != tc.want {
			t.Errorf("PrettyNameFromEmail(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	for _, in := range []string{
		"2025-03-04T10:30:00Z",
		"2025-03-04T13:30:00+03:00",
		"Tue, 04 Mar 2025 13:30:00 +0300",
		"Tue, 4 Mar 2025 13:30:00 +0300",
	} {
		got, ok := ParseTimestamp(in)
		if !ok || !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseTimestamp("yesterday"); ok {
		t.Error("ParseTimestamp(yesterday) should fail")
	}
}
