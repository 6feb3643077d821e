// Package domain defines the value types shared by the rebalancing pipeline.
package domain

import "fmt"

// Pair market pair used to price or trade an asset.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// NewPair creates a pair for asset quoted in quote.
func NewPair(asset, quote string) Pair {
	return Pair{From: asset, To: quote}
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
