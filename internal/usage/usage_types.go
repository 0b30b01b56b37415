package usage

// Ledger is the root structure persisted to usage.json.
type Ledger struct {
	Version    string            `json:"version"`
	Total      Counts            `json:"total"`
	ByDay      map[string]Counts `json:"by_day"`
	ByProvider map[string]Counts `json:"by_provider"`
	ByModel    map[string]Counts `json:"by_model"`
	ByPlan     map[string]Counts `json:"by_plan"`
}

// Counts holds call and token sums for one aggregation key.
type Counts struct {
	Calls  int64 `json:"calls"`
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

func (c *Counts) Add(input, output int) {
	c.Calls++
	c.Input += int64(input)
	c.Output += int64(output)
	c.Total += int64(input + output)
}
