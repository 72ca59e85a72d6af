package venue

import "fmt"

// pairIndex maps instrument symbols to the external service's numeric pair
// identifiers. The service addresses positions by pair index, not symbol.
var pairIndex = map[string]int{
	"BTC":   0,
	"ETH":   1,
	"SOL":   2,
	"AVAX":  3,
	"MATIC": 4,
	"ARB":   5,
	"OP":    6,
	"LINK":  7,
	"UNI":   8,
	"AAVE":  9,
	"ATOM":  10,
	"DOT":   11,
	"ADA":   12,
	"XRP":   13,
	"DOGE":  14,
	"BNB":   15,
}

var indexPair = func() map[int]string {
	m := make(map[int]string, len(pairIndex))
	for sym, idx := range pairIndex {
		m[idx] = sym
	}
	return m
}()

// PairIndexFor resolves a symbol to the external service's pair index.
func PairIndexFor(symbol string) (int, error) {
	idx, ok := pairIndex[symbol]
	if !ok {
		return 0, fmt.Errorf("symbol %q is not tradable on the external venue", symbol)
	}
	return idx, nil
}

// SymbolForPairIndex resolves a pair index back to its symbol.
func SymbolForPairIndex(idx int) (string, error) {
	sym, ok := indexPair[idx]
	if !ok {
		return "", fmt.Errorf("unknown pair index %d", idx)
	}
	return sym, nil
}
