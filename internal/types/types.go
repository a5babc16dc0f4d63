// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package types

type PriceReq struct {
	Symbol string `form:"symbol"`
}

type PriceResp struct {
	Symbol          string   `json:"symbol"`
	Class           string   `json:"class"`
	Price           float64  `json:"price"`
	PercentChange24 *float64 `json:"percentChange24h,omitempty"`
	UpdatedAt       string   `json:"updatedAt"`
	Source          string   `json:"source"`
}

type BatchPricesReq struct {
	Symbols []string `json:"symbols"`
}

type BatchPricesResp struct {
	Prices  map[string]PriceResp `json:"prices"`
	Cached  int                  `json:"cached"`
	Fetched int                  `json:"fetched"`
	Skipped []string             `json:"skipped,omitempty"`
}

type HistoryReq struct {
	Symbol string `form:"symbol"`
	Range  string `form:"range"`
}

type HistoryPoint struct {
	Date   string   `json:"date"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume,omitempty"`
}

type HistoryResp struct {
	Symbol      string         `json:"symbol"`
	Range       string         `json:"range"`
	Granularity string         `json:"granularity"`
	Points      []HistoryPoint `json:"points"`
}

type HealthResp struct {
	Status string `json:"status"`
	Env    string `json:"env"`
}
