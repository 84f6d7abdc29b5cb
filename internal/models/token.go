package models

import "strings"

// Token describes a coin a pool can be denominated in.
type Token struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	Address  string `json:"address"`
}

var tokens = []Token{
	{Symbol: "APT", Name: "Aptos Coin", Decimals: 8, Address: "0x1::aptos_coin::AptosCoin"},
	{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Address: "0x1::usdc::USDC"},
	{Symbol: "USDT", Name: "Tether USD", Decimals: 6, Address: "0x1::usdt::USDT"},
}

// DefaultToken is the coin pools are denominated in unless configured otherwise.
const DefaultToken = "APT"

// Tokens returns the supported tokens.
func Tokens() []Token {
	return append([]Token(nil), tokens...)
}

// TokenBySymbol looks a token up by symbol, case-insensitively.
func TokenBySymbol(symbol string) (Token, bool) {
	for _, t := range tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

// TokenByAddress looks a token up by its type address.
func TokenByAddress(address string) (Token, bool) {
	for _, t := range tokens {
		if strings.EqualFold(t.Address, address) {
			return t, true
		}
	}
	return Token{}, false
}
