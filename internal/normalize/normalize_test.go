package normalize

import "testing"

func TestName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"simple", "Sam Ghanem", "sam ghanem"},
		{"extra whitespace", "  samuel   GHANEM  ", "samuel ghanem"},
		{"accents folded", "José García", "jose garcia"},
		{"parenthetical stripped", "Sam Ghanem (Guest)", "sam ghanem"},
		{"bracketed stripped", "Sam Ghanem [External]", "sam ghanem"},
		{"braces stripped", "Sam {via phone}", "sam"},
		{"punctuation to space", "Ghanem, Sam", "ghanem sam"},
		{"abbreviation dot", "Sam G.", "sam g"},
		{"apostrophe dropped", "Pat O'Brien", "pat obrien"},
		{"curly apostrophe dropped", "Pat O’Brien", "pat obrien"},
		{"digits kept", "Sam Ghanem 2", "sam ghanem 2"},
		{"emoji only", "💻🎉", ""},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"parenthetical only", "(Guest)", ""},
		{"mixed emoji", "Sam💻Ghanem", "sam ghanem"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Name(tt.raw)
			if got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNameIdempotent(t *testing.T) {
	inputs := []string{
		"Sam Ghanem (Guest)",
		"José García",
		"  samuel   GHANEM  ",
		"Pat O'Brien",
	}
	for _, raw := range inputs {
		once := Name(raw)
		twice := Name(once)
		if once != twice {
			t.Errorf("Name not idempotent for %q: %q != %q", raw, once, twice)
		}
	}
}

func TestTokens(t *testing.T) {
	tokens := Tokens("sam ghanem jr")
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(tokens))
	}
	if tokens[0] != "sam" || tokens[2] != "jr" {
		t.Errorf("unexpected tokens: %v", tokens)
	}

	if got := Tokens(""); len(got) != 0 {
		t.Errorf("expected no tokens for empty string, got %v", got)
	}
}
