package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriscope/veriscope/internal/domain/catalog"
	"github.com/veriscope/veriscope/internal/domain/jobs"
)

func intPtr(n int) *int { return &n }

func itemWith(cluster *int, outcomes ...jobs.RuleOutcome) jobs.ItemInstance {
	it := jobs.ItemInstance{
		ID:            "item-" + outcomesKey(outcomes),
		Name:          "item",
		ClusterNumber: cluster,
		RuleOutcomes:  outcomes,
	}
	for _, o := range outcomes {
		it.DescriptionRulesApplied = append(it.DescriptionRulesApplied, catalog.DescriptionFilteringRule{
			ID:            o.RuleID,
			MinConfidence: o.MinConfidence,
			Mandatory:     o.Mandatory,
		})
	}
	return it
}

func outcomesKey(outcomes []jobs.RuleOutcome) string {
	if len(outcomes) == 0 {
		return "empty"
	}
	return outcomes[0].RuleID
}

func satisfied(id string, conf float64, mandatory bool) jobs.RuleOutcome {
	return jobs.RuleOutcome{RuleID: id, Mandatory: mandatory, MinConfidence: 0.7, Satisfied: true, ImageFound: true, Confidence: conf}
}

func failed(id string, conf float64, mandatory bool) jobs.RuleOutcome {
	return jobs.RuleOutcome{RuleID: id, Mandatory: mandatory, MinConfidence: 0.7, ImageFound: true, Confidence: conf}
}

func review(id string, mandatory bool) jobs.RuleOutcome {
	return jobs.RuleOutcome{RuleID: id, Mandatory: mandatory, MinConfidence: 0.7, NeedsReview: true}
}

func TestItemStatusFromOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		outcomes []jobs.RuleOutcome
		want     jobs.AssessmentStatus
	}{
		{"no rules approves", nil, jobs.StatusApproved},
		{"all satisfied approves", []jobs.RuleOutcome{satisfied("r1", 0.85, true), satisfied("r2", 0.9, false)}, jobs.StatusApproved},
		{"mandatory failure rejects", []jobs.RuleOutcome{failed("r1", 0.5, true)}, jobs.StatusRejected},
		{"optional failure needs review", []jobs.RuleOutcome{satisfied("r1", 0.9, true), failed("r2", 0.4, false)}, jobs.StatusNeedsReview},
		{"degraded mandatory needs review", []jobs.RuleOutcome{review("r1", true)}, jobs.StatusNeedsReview},
		{"rejection wins over review", []jobs.RuleOutcome{review("r1", true), failed("r2", 0.3, true)}, jobs.StatusRejected},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			items := []jobs.ItemInstance{itemWith(nil, c.outcomes...)}
			ResolveClusters(items)
			assert.Equal(t, c.want, items[0].Status)
		})
	}
}

func TestItemConfidenceFromOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		outcomes []jobs.RuleOutcome
		want     *float64
	}{
		{"no rules has no confidence", nil, nil},
		{"approved takes mean of satisfied mandatory",
			[]jobs.RuleOutcome{satisfied("r1", 0.8, true), satisfied("r2", 0.9, true), satisfied("r3", 0.99, false)},
			floatPtr(0.85)},
		{"approved with only optional rules means them all",
			[]jobs.RuleOutcome{satisfied("r1", 0.7, false), satisfied("r2", 0.9, false)},
			floatPtr(0.8)},
		{"rejected takes worst failing confidence",
			[]jobs.RuleOutcome{satisfied("r1", 0.95, true), failed("r2", 0.3, true), failed("r3", 0.6, false)},
			floatPtr(0.3)},
		{"review outcome contributes its confidence",
			[]jobs.RuleOutcome{review("r1", true)},
			floatPtr(0)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			items := []jobs.ItemInstance{itemWith(nil, c.outcomes...)}
			ResolveClusters(items)
			if c.want == nil {
				assert.Nil(t, items[0].Confidence)
				return
			}
			require.NotNil(t, items[0].Confidence)
			assert.InDelta(t, *c.want, *items[0].Confidence, 1e-9)
		})
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestClusterCompliance(t *testing.T) {
	items := []jobs.ItemInstance{
		itemWith(intPtr(1), satisfied("a1", 0.9, true)),
		itemWith(intPtr(1), failed("b1", 0.4, true)),
		itemWith(intPtr(2), satisfied("c1", 0.8, false)),
	}
	clusters := ResolveClusters(items)

	require.Contains(t, clusters, 1)
	require.Contains(t, clusters, 2)
	assert.False(t, clusters[1].Compliant)
	assert.True(t, clusters[1].HasRejected)
	assert.True(t, clusters[1].HasMandatory)
	assert.True(t, clusters[2].Compliant)
}

// Flipping a single member to a failing outcome flips the whole cluster.
func TestClusterMonotonicity(t *testing.T) {
	items := []jobs.ItemInstance{
		itemWith(intPtr(7), satisfied("a1", 0.9, true)),
		itemWith(intPtr(7), satisfied("b1", 0.95, true)),
	}
	clusters := ResolveClusters(items)
	require.True(t, clusters[7].Compliant)

	items[1].RuleOutcomes = []jobs.RuleOutcome{failed("b1", 0.2, true)}
	clusters = ResolveClusters(items)
	assert.False(t, clusters[7].Compliant)
}

func TestSingletonItemsFormNoCluster(t *testing.T) {
	items := []jobs.ItemInstance{
		itemWith(nil, satisfied("a1", 0.9, true)),
		itemWith(nil, failed("b1", 0.3, true)),
	}
	clusters := ResolveClusters(items)
	assert.Empty(t, clusters)
	assert.Equal(t, jobs.StatusApproved, items[0].Status)
	assert.Equal(t, jobs.StatusRejected, items[1].Status)
}
