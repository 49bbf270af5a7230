package transfer

import "testing"

func TestValidatePathRejects(t *testing.T) {
	cases := []string{"", "../x", "a/../../b", "/abs", `C:\x`, `\\srv\s`}
	for _, p := range cases {
		if err := ValidatePath(p); err == nil {
			t.Errorf("ValidatePath(%q) = nil, want error", p)
		}
	}
}

func TestValidatePathAccepts(t *testing.T) {
	cases := []string{"a", "a/b", "./a", ".config/x"}
	for _, p := range cases {
		if err := ValidatePath(p); err != nil {
			t.Errorf("ValidatePath(%q) = %v, want nil", p, err)
		}
	}
}
