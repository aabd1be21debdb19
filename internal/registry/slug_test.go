package registry

import "testing"

func TestSlugFromTitle(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Promo", "promo"},
		{"Summer Sale 2026", "summer-sale-2026"},
		{"  Spaced   Out  ", "spaced-out"},
		{"Ünïcode & Friends", "n-code-friends"},
		{"---dashes---", "dashes"},
		{"!!!", ""},
	}
	for _, c := range cases {
		if got := slugFromTitle(c.title); got != c.want {
			t.Errorf("slugFromTitle(%q) = %q, want %q", c.title, got, c.want)
		}
	}
}

func TestSlugFromTitleClampsLength(t *testing.T) {
	long := "this is a very long title that keeps going and going and going on forever"
	got := slugFromTitle(long)
	if len(got) > 48 {
		t.Fatalf("slug too long: %d chars", len(got))
	}
	if got[len(got)-1] == '-' {
		t.Fatalf("clamped slug ends with hyphen: %q", got)
	}
	if !slugPattern.MatchString(got) {
		t.Fatalf("clamped slug fails slug pattern: %q", got)
	}
}
