package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriscope/veriscope/internal/domain/jobs"
)

func resolveAndAggregate(items []jobs.ItemInstance) (jobs.AssessmentStatus, *float64) {
	clusters := ResolveClusters(items)
	return Aggregate(items, clusters)
}

func TestAggregateApproved(t *testing.T) {
	items := []jobs.ItemInstance{
		itemWith(nil, satisfied("r1", 0.8, true), satisfied("r2", 0.9, true)),
	}
	status, conf := resolveAndAggregate(items)

	assert.Equal(t, jobs.StatusApproved, status)
	require.NotNil(t, conf)
	assert.InDelta(t, 0.85, *conf, 1e-9, "mean over satisfied mandatory rules")
}

func TestAggregateApprovedIgnoresOptionalWhenMandatoryExists(t *testing.T) {
	items := []jobs.ItemInstance{
		itemWith(nil, satisfied("r1", 0.8, true), satisfied("r2", 0.2, false)),
	}
	status, conf := resolveAndAggregate(items)

	assert.Equal(t, jobs.StatusApproved, status)
	require.NotNil(t, conf)
	assert.InDelta(t, 0.8, *conf, 1e-9)
}

func TestAggregateRejectedUsesWorstFailingConfidence(t *testing.T) {
	items := []jobs.ItemInstance{
		itemWith(nil, failed("r1", 0.5, true)),
		itemWith(nil, failed("r2", 0.3, true)),
	}
	status, conf := resolveAndAggregate(items)

	assert.Equal(t, jobs.StatusRejected, status)
	require.NotNil(t, conf)
	assert.InDelta(t, 0.3, *conf, 1e-9)
}

func TestAggregateClusterFailure(t *testing.T) {
	t.Run("rejects when a mandatory item shares the broken cluster", func(t *testing.T) {
		items := []jobs.ItemInstance{
			itemWith(intPtr(1), satisfied("a1", 0.9, true)),
			itemWith(intPtr(1), failed("b1", 0.4, true)),
		}
		status, _ := resolveAndAggregate(items)
		assert.Equal(t, jobs.StatusRejected, status)
	})

	t.Run("needs review when the broken cluster has no mandatory member", func(t *testing.T) {
		items := []jobs.ItemInstance{
			itemWith(intPtr(1), satisfied("a1", 0.9, false)),
			itemWith(intPtr(1), failed("b1", 0.4, false)),
		}
		status, _ := resolveAndAggregate(items)
		assert.Equal(t, jobs.StatusNeedsReview, status)
	})
}

func TestAggregateReviewOnDegradedRule(t *testing.T) {
	items := []jobs.ItemInstance{
		itemWith(nil, satisfied("r1", 0.9, true)),
		itemWith(nil, review("r2", true)),
	}
	status, _ := resolveAndAggregate(items)
	assert.Equal(t, jobs.StatusNeedsReview, status)
}

func TestAggregateNoRules(t *testing.T) {
	items := []jobs.ItemInstance{itemWith(nil)}
	status, conf := resolveAndAggregate(items)

	assert.Equal(t, jobs.StatusApproved, status)
	assert.Nil(t, conf, "no rule confidences to aggregate")
}
