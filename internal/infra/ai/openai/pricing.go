package openai

import "strings"

// Per-1k-token USD prices. Matched by substring so dated model ids
// ("gpt-4o-2024-08-06") still resolve.
var pricing = []struct {
	match       string
	inputPer1K  float64
	outputPer1K float64
}{
	{"gpt-4o-mini", 0.00015, 0.0006},
	{"gpt-4o", 0.0025, 0.01},
	{"gpt-4.1-mini", 0.0004, 0.0016},
	{"gpt-4.1", 0.002, 0.008},
	{"gpt-5-mini", 0.00025, 0.002},
	{"gpt-5", 0.00125, 0.01},
	{"o3", 0.002, 0.008},
	{"o4-mini", 0.0011, 0.0044},
}

// CalculateCost returns the USD cost of one call. Unknown models fall back
// to gpt-4o pricing.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	in, out := 0.0025, 0.01
	for _, p := range pricing {
		if strings.Contains(model, p.match) {
			in, out = p.inputPer1K, p.outputPer1K
			break
		}
	}
	return float64(inputTokens)*in/1000 + float64(outputTokens)*out/1000
}
