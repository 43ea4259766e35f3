package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{"Customer Feedback", "customer-feedback"},
		{"  Hello,   World!  ", "hello-world"},
		{"Q2 2026 — Survey", "q2-2026-survey"},
		{"already-a-slug", "already-a-slug"},
		{"ALLCAPS", "allcaps"},
		{"***", "form"},
		{"", "form"},
	}
	for _, c := range cases {
		assert.Equal(t, c.out, Make(c.in), "Make(%q)", c.in)
	}
}
