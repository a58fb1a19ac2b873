package models

import (
	"fmt"
	"strings"
)

// Coin identifies a cryptocurrency by its ticker symbol, provider identifier
// and display name.
type Coin struct {
	Symbol string `json:"symbol"`
	ID     string `json:"id"`
	Name   string `json:"name"`
}

// Label returns the display text used by selectors, e.g. "BTC - Bitcoin".
func (c Coin) Label() string {
	return fmt.Sprintf("%s - %s", c.Symbol, c.Name)
}

// Registry is an immutable, symbol-ordered list of known coins.
type Registry struct {
	coins    []Coin
	byID     map[string]Coin
	bySymbol map[string]Coin
	byLabel  map[string]Coin
}

// NewRegistry builds a registry from the given coins, preserving order.
// Later duplicates of an ID are ignored.
func NewRegistry(coins []Coin) *Registry {
	r := &Registry{
		coins:    make([]Coin, 0, len(coins)),
		byID:     make(map[string]Coin, len(coins)),
		bySymbol: make(map[string]Coin, len(coins)),
		byLabel:  make(map[string]Coin, len(coins)),
	}
	for _, c := range coins {
		if _, dup := r.byID[c.ID]; dup {
			continue
		}
		r.coins = append(r.coins, c)
		r.byID[c.ID] = c
		r.bySymbol[strings.ToUpper(c.Symbol)] = c
		r.byLabel[c.Label()] = c
	}
	return r
}

// DefaultRegistry returns the built-in coin list.
func DefaultRegistry() *Registry {
	return NewRegistry(defaultCoins)
}

// All returns a copy of the registered coins in order.
func (r *Registry) All() []Coin {
	out := make([]Coin, len(r.coins))
	copy(out, r.coins)
	return out
}

// IDs returns the provider identifiers in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.coins))
	for i, c := range r.coins {
		ids[i] = c.ID
	}
	return ids
}

// Len returns the number of registered coins.
func (r *Registry) Len() int {
	return len(r.coins)
}

// LookupID finds a coin by provider identifier.
func (r *Registry) LookupID(id string) (Coin, bool) {
	c, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	return c, ok
}

// LookupSymbol finds a coin by ticker symbol, case-insensitively.
func (r *Registry) LookupSymbol(symbol string) (Coin, bool) {
	c, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return c, ok
}

// LookupLabel finds a coin by its display label.
func (r *Registry) LookupLabel(label string) (Coin, bool) {
	c, ok := r.byLabel[strings.TrimSpace(label)]
	return c, ok
}

// Resolve accepts an identifier, symbol or label and returns the matching coin.
// Unknown input is returned as a bare coin with the input as ID, so callers
// can still query identifiers that are not in the built-in list.
func (r *Registry) Resolve(s string) (Coin, bool) {
	if c, ok := r.LookupID(s); ok {
		return c, true
	}
	if c, ok := r.LookupSymbol(s); ok {
		return c, true
	}
	if c, ok := r.LookupLabel(s); ok {
		return c, true
	}
	id := strings.ToLower(strings.TrimSpace(s))
	return Coin{Symbol: strings.ToUpper(id), ID: id, Name: id}, false
}

var defaultCoins = []Coin{
	{Symbol: "AAVE", ID: "aave", Name: "Aave"},
	{Symbol: "ADA", ID: "cardano", Name: "Cardano"},
	{Symbol: "ALGO", ID: "algorand", Name: "Algorand"},
	{Symbol: "ALICE", ID: "my-neighbor-alice", Name: "My Neighbor Alice"},
	{Symbol: "APE", ID: "apecoin", Name: "ApeCoin"},
	{Symbol: "ARB", ID: "arbitrum", Name: "Arbitrum"},
	{Symbol: "AVAX", ID: "avalanche-2", Name: "Avalanche"},
	{Symbol: "AXS", ID: "axie-infinity", Name: "Axie Infinity"},
	{Symbol: "BCH", ID: "bitcoin-cash", Name: "Bitcoin Cash"},
	{Symbol: "BCNT", ID: "bincentive", Name: "Bincentive"},
	{Symbol: "BNB", ID: "binancecoin", Name: "BNB"},
	{Symbol: "BTC", ID: "bitcoin", Name: "Bitcoin"},
	{Symbol: "CHZ", ID: "chiliz", Name: "Chiliz"},
	{Symbol: "COMP", ID: "compound-governance-token", Name: "Compound"},
	{Symbol: "DAI", ID: "dai", Name: "Dai"},
	{Symbol: "DOGE", ID: "dogecoin", Name: "Dogecoin"},
	{Symbol: "DOT", ID: "polkadot", Name: "Polkadot"},
	{Symbol: "ENS", ID: "ethereum-name-service", Name: "Ethereum Name Service"},
	{Symbol: "ETC", ID: "ethereum-classic", Name: "Ethereum Classic"},
	{Symbol: "ETH", ID: "ethereum", Name: "Ethereum"},
	{Symbol: "FIL", ID: "filecoin", Name: "Filecoin"},
	{Symbol: "GALA", ID: "gala", Name: "Gala"},
	{Symbol: "GMT", ID: "stepn", Name: "GMT"},
	{Symbol: "GRT", ID: "the-graph", Name: "The Graph"},
	{Symbol: "GST", ID: "green-satoshi-token", Name: "Green Satoshi Token"},
	{Symbol: "LDO", ID: "lido-dao", Name: "Lido DAO"},
	{Symbol: "LINK", ID: "chainlink", Name: "Chainlink"},
	{Symbol: "LOOKS", ID: "looksrare", Name: "LooksRare"},
	{Symbol: "LOOT", ID: "loot", Name: "Lootex"},
	{Symbol: "LTC", ID: "litecoin", Name: "Litecoin"},
	{Symbol: "MANA", ID: "decentraland", Name: "Decentraland"},
	{Symbol: "MASK", ID: "mask-network", Name: "Mask Network"},
	{Symbol: "MITH", ID: "mithril", Name: "Mithril"},
	{Symbol: "PAXG", ID: "pax-gold", Name: "PAX Gold"},
	{Symbol: "POL", ID: "polygon-ecosystem-token", Name: "Polymath"},
	{Symbol: "RLY", ID: "rally-2", Name: "Rally"},
	{Symbol: "SAND", ID: "the-sandbox", Name: "The Sandbox"},
	{Symbol: "SHIB", ID: "shiba-inu", Name: "Shiba Inu"},
	{Symbol: "SLP", ID: "smooth-love-potion", Name: "Smooth Love Potion"},
	{Symbol: "SOL", ID: "solana", Name: "Solana"},
	{Symbol: "TRX", ID: "tron", Name: "TRON"},
	{Symbol: "UNI", ID: "uniswap", Name: "Uniswap"},
	{Symbol: "USDC", ID: "usd-coin", Name: "USD Coin"},
	{Symbol: "USDT", ID: "tether", Name: "Tether"},
	{Symbol: "XLM", ID: "stellar", Name: "Stellar"},
	{Symbol: "XRP", ID: "ripple", Name: "XRP"},
	{Symbol: "XTZ", ID: "tezos", Name: "Tezos"},
	{Symbol: "YFI", ID: "yearn-finance", Name: "Yearn Finance"},
}
