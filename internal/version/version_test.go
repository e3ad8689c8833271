package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	str := String()
	if !strings.HasPrefix(str, Name+" ") {
		t.Errorf("String() = %q, expected %q prefix", str, Name)
	}
	if !strings.Contains(str, Version) {
		t.Errorf("String() = %q, missing version %q", str, Version)
	}
}

func TestInfo(t *testing.T) {
	info := Info()

	for _, field := range []string{"name", "version", "gitCommit", "buildTime", "goVersion"} {
		if info[field] == "" {
			t.Errorf("Info() missing field %s", field)
		}
	}
	if info["name"] != Name {
		t.Errorf("name = %q, want %q", info["name"], Name)
	}
}
