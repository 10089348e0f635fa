package app

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseSymbols(t *testing.T) {
	symbols, err := ParseSymbols("BTC:45000, eth-usd:2800.5 ,SOL:150")
	assert.NoError(t, err)
	assert.Len(t, symbols, 3)

	assert.Equal(t, "BTC", symbols[0].Name)
	assert.True(t, symbols[0].InitialPrice.Equal(decimal.NewFromInt(45000)))

	assert.Equal(t, "ETHUSD", symbols[1].Name)
	assert.True(t, symbols[1].InitialPrice.Equal(decimal.NewFromFloat(2800.5)))

	assert.Equal(t, "SOL", symbols[2].Name)
}

func TestParseSymbols_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing price", "BTC"},
		{"bad price", "BTC:abc"},
		{"only separators", " , , "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSymbols(tt.input)
			assert.Error(t, err)
		})
	}
}
