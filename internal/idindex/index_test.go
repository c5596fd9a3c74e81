package idindex

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolve(t *testing.T) {
	x := New()
	for _, id := range []string{"c0ffee01", "c0ffee02", "deadbeef", "dead"} {
		x.Add(id)
	}
	x.Add("dead")

	tests := []struct {
		prefix  string
		want    string
		wantErr error
	}{
		{"dea", "", ErrAmbiguous},
		{"dead", "dead", nil},
		{"deadb", "deadbeef", nil},
		{"c0ffee0", "", ErrAmbiguous},
		{"c0ffee02", "c0ffee02", nil},
		{"beef", "", ErrNoMatch},
		{"", "", ErrNoMatch},
	}
	for _, tt := range tests {
		got, err := x.Resolve(tt.prefix)
		if !errors.Is(err, tt.wantErr) || got != tt.want {
			t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.prefix, got, err, tt.want, tt.wantErr)
		}
	}
	if x.Len() != 4 {
		t.Errorf("Len = %d, want 4", x.Len())
	}
}

func TestMatchesAndRemove(t *testing.T) {
	x := New()
	for _, id := range []string{"b2", "a1", "a3", "a2"} {
		x.Add(id)
	}
	if diff := cmp.Diff([]string{"a1", "a2", "a3"}, x.Matches("a", 0)); diff != "" {
		t.Errorf("Matches (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a1", "a2"}, x.Matches("a", 2)); diff != "" {
		t.Errorf("limited Matches (-want +got):\n%s", diff)
	}
	if !x.Remove("a2") || x.Remove("a2") {
		t.Error("Remove should report presence once")
	}
	if got, err := x.Resolve("a3"); err != nil || got != "a3" {
		t.Errorf("Resolve after remove = %q, %v", got, err)
	}
	if x.Contains("a2") {
		t.Error("a2 still present")
	}
}
