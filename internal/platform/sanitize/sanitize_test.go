package sanitize

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	s := New()
	tests := []struct {
		in   string
		want string
	}{
		{"Dra. Ana López", "Dra. Ana López"},
		{"  <b>Dr.</b> House  ", "Dr. House"},
		{`<script>alert(1)</script>Dr. Smith`, "Dr. Smith"},
		{"Tom & Jerry", "Tom & Jerry"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := s.Text(tt.in); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNotes(t *testing.T) {
	s := New()

	got := s.Notes(`<p>Sesión <strong>3</strong></p><script>steal()</script><a href="javascript:x">link</a><img src=x onerror=alert(1)>`)
	if !strings.Contains(got, "<p>Sesión <strong>3</strong></p>") {
		t.Errorf("expected formatting to survive, got %q", got)
	}
	for _, bad := range []string{"<script", "steal()", "<a", "javascript:", "<img", "onerror"} {
		if strings.Contains(got, bad) {
			t.Errorf("expected %q to be removed, got %q", bad, got)
		}
	}
}
