package deps

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheck(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Fallback", Command: "clearly-not-present-binary", Alternatives: []string{present}},
	}

	results := NewProber().Check(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if !results[2].Available || results[2].Path != present {
		t.Fatalf("expected alternative to resolve, got %#v", results[2])
	}
}

func TestLookupCachesFirstAnswer(t *testing.T) {
	calls := 0
	p := NewProber()
	p.lookPath = func(string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("not found")
		}
		return "/usr/bin/ffmpeg", nil
	}

	for i := 0; i < 3; i++ {
		if _, err := p.Lookup("ffmpeg"); err == nil {
			t.Fatalf("lookup %d: expected cached failure", i)
		}
	}
	if calls != 1 {
		t.Errorf("expected one probe, got %d", calls)
	}
}

func TestPathsRequirements(t *testing.T) {
	reqs := Paths{FFmpeg: "/opt/ffmpeg"}.Requirements()
	if len(reqs) != 4 {
		t.Fatalf("expected 4 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "/opt/ffmpeg" {
		t.Errorf("ffmpeg override ignored: %q", reqs[0].Command)
	}
	if reqs[2].Command != "chromium" || len(reqs[2].Alternatives) == 0 {
		t.Errorf("unexpected chromium requirement: %#v", reqs[2])
	}
}
