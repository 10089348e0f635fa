package model

import "strings"

// NormalizeSymbol unifies symbol spellings from API callers into the form
// tracked by the price feed (e.g. "btc-usd" -> "BTCUSD").
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}
