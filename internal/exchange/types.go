package exchange

import "encoding/json"

// marketChartRangeResponse represents the response from /coins/{id}/market_chart/range.
// Example response:
//
//	{
//	  "prices": [[1704067200000, 42261.04], [1704070800000, 42340.12]],
//	  "market_caps": [[1704067200000, 827657891234], [1704070800000, 829234567890]],
//	  "total_volumes": [[1704067200000, 12345678901], [1704070800000, 12456789012]]
//	}
//
// Prices is a pointer so a missing key can be told apart from an empty array.
type marketChartRangeResponse struct {
	Prices       *[][]json.Number `json:"prices"`
	MarketCaps   [][]json.Number  `json:"market_caps"`
	TotalVolumes [][]json.Number  `json:"total_volumes"`
}

// historyResponse represents the response from /coins/{id}/history.
//
//	{
//	  "id": "bitcoin",
//	  "symbol": "btc",
//	  "market_data": {"current_price": {"usd": 42261.04, "eur": 38512.3}}
//	}
type historyResponse struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	MarketData *struct {
		CurrentPrice map[string]json.Number `json:"current_price"`
	} `json:"market_data"`
}

// coinGeckoError represents an error response from the CoinGecko API.
// The public API uses {"error": "..."}, rate limiting and the pro API use
// {"status": {"error_code": 429, "error_message": "..."}}.
type coinGeckoError struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}
