package jobs

import (
	"log"
	"time"

	"github.com/rollcall/rollcall/internal/database"
	"github.com/rollcall/rollcall/internal/match"
	"github.com/rollcall/rollcall/internal/normalize"
	"github.com/rollcall/rollcall/internal/services"
)

// ReviewSweeperJob periodically re-scores open review items against the
// current identity index. Items queued while the index was thin often become
// unambiguous later, once the identity they belong to has accumulated aliases;
// the sweeper attaches those automatically so the queue holds only genuinely
// ambiguous cases.
type ReviewSweeperJob struct {
	ids      *services.IdentityService
	resolver *services.ResolverService
	reviews  *services.ReviewService
}

// NewReviewSweeperJob creates a review sweeper.
func NewReviewSweeperJob(ids *services.IdentityService, resolver *services.ResolverService, reviews *services.ReviewService) *ReviewSweeperJob {
	return &ReviewSweeperJob{
		ids:      ids,
		resolver: resolver,
		reviews:  reviews,
	}
}

// Run executes one sweep. Returns the number of items auto-attached.
func (j *ReviewSweeperJob) Run() (int, error) {
	settings, err := j.resolver.GetSettings()
	if err != nil {
		return 0, err
	}
	if !settings.SweeperEnabled {
		log.Println("Review sweeper is disabled, skipping")
		return 0, nil
	}

	items, err := j.reviews.OpenItems()
	if err != nil {
		return 0, err
	}

	attached := 0
	for _, item := range items {
		ok, err := j.sweepItem(&item, settings)
		if err != nil {
			log.Printf("Review sweeper: failed to re-score item %d (%q): %v",
				item.ID, item.RawName, err)
			continue
		}
		if ok {
			attached++
		}
	}
	return attached, nil
}

// sweepItem re-scores one open item and attaches it when the verdict is now
// unambiguous. Only exact hits and clear fuzzy winners qualify; the sweeper
// never creates identities and never widens the thresholds a human would get.
func (j *ReviewSweeperJob) sweepItem(item *database.PendingReviewItem, settings *database.ResolverSettings) (bool, error) {
	// Alias-conflict items record two identities both claiming the name; the
	// score will read as a clean exact hit, but only an operator can arbitrate.
	if item.QueueReason == "alias_conflict" {
		return false, nil
	}

	normalized := item.NormalizedName
	if normalized == "" {
		normalized = normalize.Name(item.RawName)
	}
	if normalized == "" {
		return false, nil
	}

	candidates := j.ids.Index().Lookup(normalized, match.Params{
		Floor: settings.FuzzyFloor,
		TopK:  settings.MaxCandidates,
	})
	if len(candidates) == 0 {
		return false, nil
	}

	top := candidates[0]
	if top.Score < settings.AutoAttachThreshold {
		return false, nil
	}
	if len(candidates) > 1 && top.Score-candidates[1].Score < settings.AmbiguityMargin {
		return false, nil
	}

	// The verdict is unambiguous now; close the item through the reviewer
	// path so the audit fields read like any other resolution.
	_, resolution, err := j.reviews.AutoAttach(item.ID, top.IdentityUUID, top.Score)
	if err != nil {
		return false, err
	}

	log.Printf("Review sweeper: item %d (%q) attached to %s (score %.2f)",
		item.ID, item.RawName, resolution.IdentityUUID, top.Score)
	return true, nil
}

// Start begins periodic sweeps until stop is closed. The interval follows the
// settings row and picks up changes between sweeps.
func (j *ReviewSweeperJob) Start(stop <-chan struct{}) {
	settings, err := j.resolver.GetSettings()
	if err != nil {
		log.Printf("Failed to get sweeper settings, using defaults: %v", err)
		settings = database.NewDefaultResolverSettings()
	}

	interval := time.Duration(settings.SweeperIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			attached, err := j.Run()
			if err != nil {
				log.Printf("Review sweeper error: %v", err)
			} else if attached > 0 {
				log.Printf("Review sweeper: auto-attached %d items", attached)
			}

			newSettings, err := j.resolver.GetSettings()
			if err == nil && newSettings.SweeperIntervalMinutes != settings.SweeperIntervalMinutes {
				settings = newSettings
				interval = time.Duration(settings.SweeperIntervalMinutes) * time.Minute
				ticker.Reset(interval)
				log.Printf("Review sweeper interval updated to %d minutes", settings.SweeperIntervalMinutes)
			}

		case <-stop:
			log.Println("Review sweeper stopped")
			return
		}
	}
}
