package http

import (
	"testing"

	"github.com/pramodabacco-sudo/school-sub002/internal/model"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]model.AttendanceStatus{
		"present": model.StatusPresent,
		"Present": model.StatusPresent,
		" absent": model.StatusAbsent,
		"ABSENT":  model.StatusAbsent,
	}
	for input, expected := range cases {
		status, err := normalizeStatus(input)
		if err != nil {
			t.Fatalf("expected status %q to be valid", input)
		}
		if status != expected {
			t.Fatalf("expected %s, got %s", expected, status)
		}
	}
	for _, input := range []string{"", "late", "unset", "excused"} {
		if _, err := normalizeStatus(input); err == nil {
			t.Fatalf("expected status %q to be rejected", input)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer abc":   "abc",
		"Bearer  abc ": "abc",
		"":             "",
		"Basic abc":    "",
		"Bearer":       "",
	}
	for header, expected := range cases {
		if got := bearerToken(header); got != expected {
			t.Fatalf("header %q: expected %q, got %q", header, expected, got)
		}
	}
}

func TestValidAccountKind(t *testing.T) {
	for _, kind := range []string{"super-admin", "admin", "teacher", "student", "parent"} {
		if !model.ValidAccountKind(kind) {
			t.Fatalf("expected kind %q to be valid", kind)
		}
	}
	for _, kind := range []string{"", "dev", "superadmin", "Teacher"} {
		if model.ValidAccountKind(kind) {
			t.Fatalf("expected kind %q to be rejected", kind)
		}
	}
}
