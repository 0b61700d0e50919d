package model

// MarketDataPoint is one observation in an instrument's time series, keyed by
// (asset_id, timestamp_unix). The source may omit any of the measures.
type MarketDataPoint struct {
	TimestampUnix int64    `json:"timestamp_unix"`
	PriceUSD      *float64 `json:"price_usd"`
	MarketCapUSD  *float64 `json:"market_cap_usd"`
	VolumeUSD     *float64 `json:"volume_usd"`
}
