package memory

import "testing"

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"C0123ABC", "C0123ABC"},
		{"1724.000200", "1724_000200"},
		{"already_ok-123", "already_ok-123"},
		{"a b\tc", "a_b_c"},
		{"emoji🙂id", "emoji_id"},
		{"", "default"},
		{"   ", "default"},
		{"..", "__"},
	}

	for _, tt := range tests {
		if got := SanitizeToken(tt.in); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewKey(t *testing.T) {
	k := NewKey("C0123", "1724.000200")
	if k.ActorID != "C0123" {
		t.Errorf("ActorID = %q", k.ActorID)
	}
	if k.SessionID != "1724_000200" {
		t.Errorf("SessionID = %q", k.SessionID)
	}
	if k.String() != "C0123/1724_000200" {
		t.Errorf("String() = %q", k.String())
	}
	if k.SessionKey() != "C0123_1724_000200" {
		t.Errorf("SessionKey() = %q", k.SessionKey())
	}
}

func TestNewKey_Deterministic(t *testing.T) {
	a := NewKey("D99", "1.2.3")
	b := NewKey("D99", "1.2.3")
	if a != b {
		t.Errorf("keys differ: %v vs %v", a, b)
	}
}
