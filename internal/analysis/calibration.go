package analysis

import "github.com/ZanzyTHEbar/repo-analyzer/internal/types"

// EngagementCap limits the score of repositories with little community traction
type EngagementCap struct {
	Enabled          bool
	LowStarThreshold int
	MaxScore         float64
}

// Apply returns the capped score and whether the cap changed it.
// Without metadata there is no star count, so the score passes through.
func (c EngagementCap) Apply(score float64, meta *types.RepoMetadata) (float64, bool) {
	if !c.Enabled || meta == nil {
		return score, false
	}
	if meta.Stars < c.LowStarThreshold && score > c.MaxScore {
		return c.MaxScore, true
	}
	return score, false
}
