package platform

import (
	"bufio"
	"strings"
	"testing"
)

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("first secret\r\nsecond\nlast"))
	for _, want := range []string{"first secret", "second", "last"} {
		got, err := readLine(r)
		if err != nil {
			t.Fatalf("readLine: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
	if _, err := readLine(r); err == nil {
		t.Fatal("expected error at end of input")
	}
}
