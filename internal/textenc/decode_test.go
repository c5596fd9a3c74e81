package textenc

import (
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func TestToUTF8(t *testing.T) {
	latin1, err := charmap.Windows1252.NewEncoder().Bytes([]byte("café,naïve\n"))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	tests := []struct {
		name     string
		in       []byte
		want     string
		wantName string
	}{
		{"plain utf-8", []byte("a,b\n1,2\n"), "a,b\n1,2\n", "utf-8"},
		{"utf-8 bom stripped", append([]byte{0xEF, 0xBB, 0xBF}, "a,b\n"...), "a,b\n", "utf-8"},
		{"utf-16le bom", []byte{0xFF, 0xFE, 'h', 0, 'i', 0}, "hi", "utf-16le"},
		{"windows-1252", latin1, "café,naïve\n", "windows-1252"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, name, err := ToUTF8(tt.in, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ToUTF8() = %q, want %q", got, tt.want)
			}
			if name != tt.wantName {
				t.Errorf("encoding name = %q, want %q", name, tt.wantName)
			}
		})
	}
}
