package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1.2K", 1200},
		{"5M", 5000000},
		{"1,234", 1234},
		{"", 0},
		{"   ", 0},
		{"Reply", 0},
		{"42", 42},
		{"12.7k", 12700},
		{"3 thousand", 3000},
		{"2.5 million", 2500000},
		{"1.2K Likes", 1200},
		{"1.5", 1},
		{"7 Likes", 7},
		{"1.2.3K", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCount(tt.in))
		})
	}
}
