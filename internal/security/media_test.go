package security

import "testing"

func TestMediaResolver_Resolve(t *testing.T) {
	m, err := NewMediaResolver("http://media.example.com:9000")
	if err != nil {
		t.Fatalf("NewMediaResolver() がエラーを返した: %v", err)
	}

	tests := []struct {
		ref  string
		want string
	}{
		{"", ""},
		{"/uploads/a.png", "http://media.example.com:9000/uploads/a.png"},
		{"uploads/b.png", "http://media.example.com:9000/uploads/b.png"},
		{"https://cdn.example.com/c.png", "https://cdn.example.com/c.png"},
		{"javascript:alert(1)", ""},
		{"data:image/png;base64,AAAA", ""},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			if got := m.Resolve(tt.ref); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestMediaResolver_NoBaseKeepsRelative(t *testing.T) {
	m, err := NewMediaResolver("")
	if err != nil {
		t.Fatalf("NewMediaResolver() がエラーを返した: %v", err)
	}
	if got := m.Resolve("/uploads/a.png"); got != "/uploads/a.png" {
		t.Errorf("Resolve() = %q, want relative path", got)
	}
}

func TestNewMediaResolver_RejectsBadScheme(t *testing.T) {
	if _, err := NewMediaResolver("ftp://media.example.com"); err == nil {
		t.Fatal("http(s)以外のベースURLはエラーになるべき")
	}
}

func TestSafeVideoLink(t *testing.T) {
	tests := []struct {
		link   string
		want   string
		wantOK bool
	}{
		{"https://www.youtube.com/watch?v=abc", "https://www.youtube.com/watch?v=abc", true},
		{"http://youtu.be/abc", "https://youtu.be/abc", true},
		{"https://evil.example.com/watch?v=abc", "", false},
		{"javascript:alert(1)", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			got, ok := SafeVideoLink(tt.link)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("SafeVideoLink(%q) = (%q, %v), want (%q, %v)", tt.link, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
