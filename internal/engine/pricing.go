package engine

import "strings"

// modelPrice is USD per million tokens.
type modelPrice struct {
	input  float64
	output float64
}

// Prices by model-name prefix. Unknown models fall back to defaultPrice so
// cost tracking stays monotonic even for models we have no rate for.
var modelPrices = []struct {
	prefix string
	price  modelPrice
}{
	{"claude-opus", modelPrice{15.0, 75.0}},
	{"claude-sonnet", modelPrice{3.0, 15.0}},
	{"claude-haiku", modelPrice{0.80, 4.0}},
	{"gpt-4o-mini", modelPrice{0.15, 0.60}},
	{"gpt-4o", modelPrice{2.50, 10.0}},
	{"gpt-4.1-mini", modelPrice{0.40, 1.60}},
	{"gpt-4.1", modelPrice{2.0, 8.0}},
	{"o3", modelPrice{2.0, 8.0}},
	{"deepseek-chat", modelPrice{0.27, 1.10}},
	{"deepseek-reasoner", modelPrice{0.55, 2.19}},
	{"glm-4", modelPrice{0.60, 2.20}},
}

var defaultPrice = modelPrice{1.0, 3.0}

// costOf estimates the USD cost of a token count for a model.
func costOf(model string, tokensIn, tokensOut int) float64 {
	price := defaultPrice
	for _, mp := range modelPrices {
		if strings.HasPrefix(model, mp.prefix) {
			price = mp.price
			break
		}
	}
	return float64(tokensIn)/1e6*price.input + float64(tokensOut)/1e6*price.output
}
