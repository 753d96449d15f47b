package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Episode 12: AI in 2026", "Episode 12- AI in 2026"},
		{`what?/why\how`, "what-why-how"},
		{"  spaced  ", "spaced"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello_world"},
		{"科技早知道 EP42", "科技早知道_ep42"},
		{"！！！", "untitled"},
		{"", "untitled"},
		{"already-safe_name", "already-safe_name"},
	}
	for _, tc := range cases {
		if got := Slug(tc.in); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlugFoldsFullwidth(t *testing.T) {
	// NFKC maps fullwidth latin to ASCII before slugging.
	if got := Slug("ＡＢＣ１２３"); got != "abc123" {
		t.Errorf("Slug fullwidth = %q, want abc123", got)
	}
}
