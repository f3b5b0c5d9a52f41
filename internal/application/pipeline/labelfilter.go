package pipeline

import (
	"strings"

	"github.com/veriscope/veriscope/internal/domain/catalog"
	"github.com/veriscope/veriscope/internal/domain/jobs"
	"github.com/veriscope/veriscope/internal/domain/vision"
)

// candidate is one collection file carried through the stages, with its
// fetched bytes and cached detection result.
type candidate struct {
	file   *jobs.CollectionFileInstance
	data   []byte
	labels []vision.Label
}

// labelExclusion records why a file was dropped for an item.
type labelExclusion struct {
	FileID string
	RuleID string
	Label  vision.Label
}

// FilterByLabels applies an item's label exclusion rules to the candidate
// set, preserving order. A file is excluded when any rule matches; the
// first matching rule wins.
func FilterByLabels(item *jobs.ItemInstance, candidates []candidate) ([]candidate, []labelExclusion) {
	if len(item.LabelRulesApplied) == 0 {
		return candidates, nil
	}

	var kept []candidate
	var excluded []labelExclusion
	for _, c := range candidates {
		matched := false
		for _, rule := range item.LabelRulesApplied {
			if label, ok := ruleMatch(rule, c.labels); ok {
				excluded = append(excluded, labelExclusion{
					FileID: c.file.ID,
					RuleID: rule.ID,
					Label:  label,
				})
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, c)
		}
	}
	return kept, excluded
}

// ruleMatch checks one rule against the detections: label in the rule's
// set, confidence at or above the rule threshold, and area fraction at or
// above the rule minimum.
func ruleMatch(rule catalog.LabelFilteringRule, labels []vision.Label) (vision.Label, bool) {
	for _, l := range labels {
		if !containsFold(rule.ImageLabels, l.Name) {
			continue
		}
		if l.Confidence < rule.MinConfidence {
			continue
		}
		if l.AreaFraction < rule.MinImageSizePercent {
			continue
		}
		return l, true
	}
	return vision.Label{}, false
}

func containsFold(set []string, name string) bool {
	for _, s := range set {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
