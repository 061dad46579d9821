// Package scoring computes moderation task priorities. Everything here is
// pure: no I/O and no error cases. Unknown reasons and item types fall back
// to the configured defaults.
package scoring

// Config weights report reasons and reported item types.
type Config struct {
	ReasonScores              map[string]float64 `yaml:"reason_scores" json:"reason_scores"`
	ItemTypeMultipliers       map[string]float64 `yaml:"item_type_multipliers" json:"item_type_multipliers"`
	AdditionalReportBonus     float64            `yaml:"additional_report_bonus" json:"additional_report_bonus"`
	DefaultReasonScore        float64            `yaml:"default_reason_score" json:"default_reason_score"`
	DefaultItemTypeMultiplier float64            `yaml:"default_item_type_multiplier" json:"default_item_type_multiplier"`
}

// ReasonScore returns the configured score for reason, or DefaultReasonScore.
func (c Config) ReasonScore(reason string) float64 {
	if s, ok := c.ReasonScores[reason]; ok {
		return s
	}
	return c.DefaultReasonScore
}

// ItemTypeMultiplier returns the configured multiplier for itemType, or
// DefaultItemTypeMultiplier.
func (c Config) ItemTypeMultiplier(itemType string) float64 {
	if m, ok := c.ItemTypeMultipliers[itemType]; ok {
		return m
	}
	return c.DefaultItemTypeMultiplier
}

// Score computes reasonScore * itemMultiplier + bonus * (reportCount - 1).
func Score(cfg Config, reason, itemType string, reportCount int) float64 {
	return ScoreFromReasonScore(cfg, cfg.ReasonScore(reason), itemType, reportCount)
}

// ScoreFromReasonScore is Score for callers that already hold a reason score,
// such as a report group that stores its highest score rather than the reason.
func ScoreFromReasonScore(cfg Config, reasonScore float64, itemType string, reportCount int) float64 {
	extra := reportCount - 1
	if extra < 0 {
		extra = 0
	}
	return reasonScore*cfg.ItemTypeMultiplier(itemType) + float64(extra)*cfg.AdditionalReportBonus
}

// HighestScoringReason returns the reason with the maximum score. Ties go to
// the first occurrence. Returns "" for an empty slice.
func HighestScoringReason(cfg Config, reasons []string) string {
	best := ""
	bestScore := 0.0
	for i, r := range reasons {
		s := cfg.ReasonScore(r)
		if i == 0 || s > bestScore {
			best, bestScore = r, s
		}
	}
	return best
}
