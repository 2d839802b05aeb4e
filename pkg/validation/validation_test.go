package validation

import (
	"strings"
	"testing"
)

func TestValidateResourceName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{name: "valid lowercase name", input: "valid-name"},
		{name: "valid with numbers", input: "valid-name-123"},
		{name: "valid with dots", input: "valid.name.example"},
		{name: "valid single character", input: "a"},
		{name: "valid exactly 63 chars", input: strings.Repeat("a", 63)},
		{name: "invalid uppercase", input: "Invalid-Name", wantError: true},
		{name: "invalid underscore", input: "invalid_name", wantError: true},
		{name: "invalid starts with dash", input: "-invalid", wantError: true},
		{name: "invalid ends with dash", input: "invalid-", wantError: true},
		{name: "invalid empty", input: "", wantError: true},
		{name: "invalid too long", input: strings.Repeat("a", 64), wantError: true},
		{name: "invalid special characters", input: "name@example.com", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResourceName(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateResourceName(%q) error = %v, wantError %v", tt.input, err, tt.wantError)
			}
		})
	}
}

func TestResourceNameForKey(t *testing.T) {
	states := []string{
		"x96Pc3ynjOX2eMnby1oZI1jSmfCwUn7ai_O9TYPJaBc",
		"X96PC3YNJOX2EMNBY1OZI1JSMFCWUN7AI_O9TYPJABC",
		"x96Pc3ynjOX2eMnby1oZI1jSmfCwUn7ai-O9TYPJaBc",
	}

	seen := map[string]string{}
	for _, s := range states {
		name := ResourceNameForKey("login", s)
		if err := ValidateResourceName(name); err != nil {
			t.Errorf("ResourceNameForKey(%q) produced invalid name %q: %v", s, name, err)
		}
		if strings.Contains(strings.ToLower(name), strings.ToLower(s[:10])) {
			t.Errorf("ResourceNameForKey(%q) leaks the key: %q", s, name)
		}
		if prev, ok := seen[name]; ok {
			t.Errorf("keys %q and %q map to the same name %q", prev, s, name)
		}
		seen[name] = s

		if again := ResourceNameForKey("login", s); again != name {
			t.Errorf("ResourceNameForKey not stable: %q vs %q", name, again)
		}
	}
}

func TestSafeReturnPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/swipe", "/swipe"},
		{"/swipe?deck=2#top", "/swipe?deck=2#top"},
		{"swipe", "/"},
		{"//evil.example.com", "/"},
		{"/\\evil.example.com", "/"},
		{"https://evil.example.com/", "/"},
		{"/ok\r\nSet-Cookie: a=b", "/"},
	}
	for _, tt := range tests {
		if got := SafeReturnPath(tt.in); got != tt.want {
			t.Errorf("SafeReturnPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func BenchmarkValidateResourceName(b *testing.B) {
	input := "valid-resource-name"
	for i := 0; i < b.N; i++ {
		ValidateResourceName(input)
	}
}
