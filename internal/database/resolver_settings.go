package database

import "time"

// ResolverSettings controls matching thresholds and background behavior.
// Singleton row. The numeric floors are tunable defaults, not a contract;
// operators adjust them against labeled data.
type ResolverSettings struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	FuzzyFloor             float64   `gorm:"type:decimal(3,2);default:0.55" json:"fuzzy_floor"`
	AutoAttachThreshold    float64   `gorm:"type:decimal(3,2);default:0.85" json:"auto_attach_threshold"`
	AmbiguityMargin        float64   `gorm:"type:decimal(3,2);default:0.10" json:"ambiguity_margin"`
	MaxCandidates          int       `gorm:"default:5" json:"max_candidates"`
	SweeperEnabled         bool      `gorm:"default:true" json:"sweeper_enabled"`
	SweeperIntervalMinutes int       `gorm:"default:15" json:"sweeper_interval_minutes"`
	NotifyReviewQueue      bool      `gorm:"default:false" json:"notify_review_queue"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (ResolverSettings) TableName() string {
	return "resolver_settings"
}

// NewDefaultResolverSettings returns settings with default values
func NewDefaultResolverSettings() *ResolverSettings {
	return &ResolverSettings{
		FuzzyFloor:             0.55,
		AutoAttachThreshold:    0.85,
		AmbiguityMargin:        0.10,
		MaxCandidates:          5,
		SweeperEnabled:         true,
		SweeperIntervalMinutes: 15,
		NotifyReviewQueue:      false,
	}
}
