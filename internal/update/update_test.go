package update

import "testing"

func TestIsNewerVersion(t *testing.T) {
	cases := []struct {
		current   string
		candidate string
		want      bool
	}{
		{"1.0.0", "1.0.1", true},
		{"1.0.0", "1.1.0", true},
		{"1.0.0", "2.0.0", true},
		{"1.2.3", "1.2.3", false},
		{"2.0.0", "1.9.9", false},
		{"v1.0.0", "1.0.1", true},
		{"1.0.0", "v1.0.1", true},
		{"1.0.0-beta.1", "1.0.1", true},
		{"dev", "1.0.0", false},
		{"1.0.0", "not-a-version", false},
		{"1.0.0", "", false},
	}
	for _, c := range cases {
		if got := isNewerVersion(c.current, c.candidate); got != c.want {
			t.Errorf("isNewerVersion(%q, %q) = %v, want %v", c.current, c.candidate, got, c.want)
		}
	}
}

func TestVersionSpecValidation(t *testing.T) {
	valid := []string{"1.0.0", "0.2.17", "12.34.56"}
	for _, v := range valid {
		if !versionSpec.MatchString(v) {
			t.Errorf("%q should be a valid specifier", v)
		}
	}

	invalid := []string{
		"1.0", "1.0.0.0", "v1.0.0", "1.0.0-beta",
		"1.0.0; rm -rf /", "$(curl evil)", "latest || true", "",
	}
	for _, v := range invalid {
		if versionSpec.MatchString(v) {
			t.Errorf("%q should be rejected", v)
		}
	}
}
