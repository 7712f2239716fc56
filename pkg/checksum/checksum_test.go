package checksum

import (
	"bytes"
	"strings"
	"testing"
)

const helloSum = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestSHA256(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"hello", "hello", helloSum},
		{"empty", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SHA256([]byte(tt.input)); got != tt.want {
				t.Errorf("SHA256(%q) = %q, want %q", tt.input, got, tt.want)
			}
			got, err := CalculateSHA256(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("CalculateSHA256() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CalculateSHA256(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestVerifySHA256(t *testing.T) {
	ok, err := VerifySHA256(strings.NewReader("hello"), helloSum)
	if err != nil || !ok {
		t.Fatalf("VerifySHA256() = %v, %v; want true, nil", ok, err)
	}
	ok, _ = VerifySHA256(strings.NewReader("hello!"), helloSum)
	if ok {
		t.Error("VerifySHA256() matched altered content")
	}
}

func TestWriterPassesThroughAndHashes(t *testing.T) {
	var dst bytes.Buffer
	w := NewWriter(&dst)
	for _, part := range []string{"he", "ll", "o"} {
		if _, err := w.Write([]byte(part)); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}
	if dst.String() != "hello" {
		t.Errorf("underlying writer got %q, want %q", dst.String(), "hello")
	}
	if w.Written() != 5 {
		t.Errorf("Written() = %d, want 5", w.Written())
	}
	if w.Sum() != helloSum {
		t.Errorf("Sum() = %q, want %q", w.Sum(), helloSum)
	}
}
