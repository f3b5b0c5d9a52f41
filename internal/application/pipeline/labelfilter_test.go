package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriscope/veriscope/internal/domain/catalog"
	"github.com/veriscope/veriscope/internal/domain/jobs"
	"github.com/veriscope/veriscope/internal/domain/vision"
)

func candidateWith(fileID string, labels ...vision.Label) candidate {
	return candidate{
		file:   &jobs.CollectionFileInstance{CollectionFile: catalog.CollectionFile{ID: fileID}},
		labels: labels,
	}
}

func itemWithLabelRules(rules ...catalog.LabelFilteringRule) *jobs.ItemInstance {
	return &jobs.ItemInstance{ID: "it-1", Name: "item", LabelRulesApplied: rules}
}

func TestFilterByLabelsNoRulesKeepsAll(t *testing.T) {
	cands := []candidate{candidateWith("f1"), candidateWith("f2")}
	kept, excluded := FilterByLabels(itemWithLabelRules(), cands)
	assert.Len(t, kept, 2)
	assert.Empty(t, excluded)
}

func TestFilterByLabelsAllConditionsMustHold(t *testing.T) {
	rule := catalog.LabelFilteringRule{
		ID: "r1", ImageLabels: []string{"screenshot"}, MinConfidence: 0.8, MinImageSizePercent: 0.3,
	}

	cases := []struct {
		name    string
		label   vision.Label
		dropped bool
	}{
		{"all thresholds met", vision.Label{Name: "Screenshot", Confidence: 0.9, AreaFraction: 0.5}, true},
		{"confidence below threshold", vision.Label{Name: "Screenshot", Confidence: 0.7, AreaFraction: 0.5}, false},
		{"area below threshold", vision.Label{Name: "Screenshot", Confidence: 0.9, AreaFraction: 0.1}, false},
		{"label not in set", vision.Label{Name: "Photo", Confidence: 0.9, AreaFraction: 0.5}, false},
		{"exact threshold values count", vision.Label{Name: "screenshot", Confidence: 0.8, AreaFraction: 0.3}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kept, excluded := FilterByLabels(itemWithLabelRules(rule), []candidate{candidateWith("f1", tc.label)})
			if tc.dropped {
				assert.Empty(t, kept)
				require.Len(t, excluded, 1)
				assert.Equal(t, "f1", excluded[0].FileID)
				assert.Equal(t, "r1", excluded[0].RuleID)
			} else {
				assert.Len(t, kept, 1)
				assert.Empty(t, excluded)
			}
		})
	}
}

func TestFilterByLabelsAnyRuleExcludes(t *testing.T) {
	rules := []catalog.LabelFilteringRule{
		{ID: "r1", ImageLabels: []string{"blurry"}, MinConfidence: 0.9, MinImageSizePercent: 0.5},
		{ID: "r2", ImageLabels: []string{"screenshot"}, MinConfidence: 0.5, MinImageSizePercent: 0.1},
	}
	cands := []candidate{
		candidateWith("f1", vision.Label{Name: "Screenshot", Confidence: 0.6, AreaFraction: 0.2}),
		candidateWith("f2", vision.Label{Name: "Blurry", Confidence: 0.6, AreaFraction: 0.2}),
	}

	kept, excluded := FilterByLabels(itemWithLabelRules(rules...), cands)

	// f1 falls to r2; f2 misses r1's thresholds and r2's label set.
	require.Len(t, kept, 1)
	assert.Equal(t, "f2", kept[0].file.ID)
	require.Len(t, excluded, 1)
	assert.Equal(t, "r2", excluded[0].RuleID)
}

func TestFilterByLabelsPreservesOrder(t *testing.T) {
	rule := catalog.LabelFilteringRule{
		ID: "r1", ImageLabels: []string{"blurry"}, MinConfidence: 0.8, MinImageSizePercent: 0.3,
	}
	cands := []candidate{
		candidateWith("f1"),
		candidateWith("f2", vision.Label{Name: "Blurry", Confidence: 0.9, AreaFraction: 0.4}),
		candidateWith("f3"),
		candidateWith("f4"),
	}

	kept, _ := FilterByLabels(itemWithLabelRules(rule), cands)
	ids := make([]string, 0, len(kept))
	for _, c := range kept {
		ids = append(ids, c.file.ID)
	}
	assert.Equal(t, []string{"f1", "f3", "f4"}, ids)
}
