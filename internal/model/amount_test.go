package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatEq(want, got float64) bool {
	const eps = 0.0001
	return math.Abs(want-got) < eps
}

func TestAmount_ToFloat64(t *testing.T) {
	tests := []struct {
		name  string
		cents int64
		want  float64
	}{
		{"zero", 0, 0.0},
		{"cents only", 99, 0.99},
		{"exact unit", 100, 1.0},
		{"units and cents", 2345, 23.45},
		{"large", 123456789, 1234567.89},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := FromCents(tt.cents)
			assert.True(t, floatEq(tt.want, a.ToFloat64()))
			assert.Equal(t, tt.cents, a.TotalCents())
		})
	}
}

func TestAmount_Format(t *testing.T) {
	tests := []struct {
		name     string
		cents    int64
		currency string
		want     string
	}{
		{"zero with currency", 0, "AED", "0.00 AED"},
		{"single cent", 1, "AED", "0.01 AED"},
		{"no currency", 10050, "", "100.50"},
		{"negative", -250, "USD", "-2.50 USD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := FromCents(tt.cents)
			assert.Equal(t, tt.want, a.Format(tt.currency))
		})
	}
}

func TestFromFloat(t *testing.T) {
	tests := []struct {
		float   float64
		want    int64
		wantErr bool
	}{
		{1234.0, 123400, false},
		{0, 0, false},
		{0.12345, 12, false},
		{0.129999, 13, false},
		{1234.164, 123416, false},
		{1234.165, 123417, false},
		{1234.991, 123499, false},
		{9007199254740992.01, 0, true},
		{-1234.0, 0, true},
		{-0.01, 0, true},
	}
	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			got, err := FromFloat(tt.float)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.TotalCents())
		})
	}
}
