package prompt

import (
	"fmt"
	"strings"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `Your task is to decide whether the submitted photo collection contains evidence matching the given criterion. Each criterion should have at least one primary image that is evidence of the criterion being satisfied.
Ensure you include a reasoning.
Ensure you take timing into account, i.e. if the image is an "after" photo then ensure the time of the image is indeed after the "before" photo.
The photos are sent as composite grids: each cell carries an "ID: n" label in its top-left corner. Refer to images by those cell IDs only. When providing the reasoning, include the position of the image itself in the reasoning.

You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- image_found is true only when at least one image clearly matches the criterion. Be extremely honest and critical of this result.
- confidence is a score between 0.0 and 1.0. 0 is not confident at all. 0.5 is mildly confident. Anything greater than 0.8 is absolutely confident.
- matched_ids lists the cell IDs of matching images. Be extremely honest and critical of the chosen results.
- reasoning is a complete image description, in the most verbose manner possible, matched against the criterion.

Schema (example with empty values):
{
  "image_found": false,
  "confidence": 0.0,
  "reasoning": "<string>",
  "matched_ids": ["<cell id>"]
}`
}

// GetSecondPassPrompt adds the verification framing on top of the base
// schema directions.
func GetSecondPassPrompt() string {
	return `You are re-verifying a borderline decision made by a previous reviewer. Examine the images again from scratch and form your own independent judgment of whether the criterion is satisfied. Do not anchor on the previous outcome.
` + GetSystemPrompt()
}

// GetRuleUserPrompt builds the user message for one description rule.
// Agent lookups and web-search results are appended as supporting context.
func GetRuleUserPrompt(itemName, ruleDescription string, contexts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item: %s\nCriterion: %s\n", itemName, ruleDescription)
	for _, c := range contexts {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		b.WriteString("\nSupporting context:\n")
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with the JSON per schema.")
	return b.String()
}

// GetAugmentQuery is the natural-language query sent to a context agent.
func GetAugmentQuery(agentPrompt, itemName, ruleDescription string) string {
	if strings.TrimSpace(agentPrompt) != "" {
		return fmt.Sprintf("%s\n\nItem: %s\nCriterion: %s", agentPrompt, itemName, ruleDescription)
	}
	return fmt.Sprintf("Item: %s\nCriterion: %s", itemName, ruleDescription)
}
