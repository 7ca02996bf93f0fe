package browser

import "testing"

func TestProfileURL(t *testing.T) {
	if got := ProfileURL("natgeo"); got != "https://www.instagram.com/natgeo/" {
		t.Errorf("ProfileURL = %q", got)
	}
}

func TestPostURL(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"/p/abc123/", "https://www.instagram.com/p/abc123/"},
		{"p/abc123/", "https://www.instagram.com/p/abc123/"},
		{"https://www.instagram.com/p/abc123/", "https://www.instagram.com/p/abc123/"},
	}

	for _, tt := range tests {
		if got := PostURL(tt.ref); got != tt.want {
			t.Errorf("PostURL(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}
