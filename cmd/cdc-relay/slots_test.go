package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"zero", 0, "0 B"},
		{"below one KiB", 1023, "1023 B"},
		{"one KiB", 1 << 10, "1.0 KiB"},
		{"one MiB", 1 << 20, "1.0 MiB"},
		{"one GiB", 1 << 30, "1.0 GiB"},
		{"one TiB", 1 << 40, "1.0 TiB"},
		{"one PiB", 1 << 50, "1.0 PiB"},
		{"one EiB", 1 << 60, "1.0 EiB"},
		{"max int64", math.MaxInt64, "8.0 EiB"},
		{"fractional", 1536, "1.5 KiB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatBytes(tt.n))
		})
	}
}
