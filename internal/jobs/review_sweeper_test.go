package jobs

import (
	"testing"
	"time"

	"github.com/rollcall/rollcall/internal/database"
	"github.com/rollcall/rollcall/internal/services"
	"github.com/rollcall/rollcall/internal/testhelpers"
)

func newTestSweeper(t *testing.T) (*services.IdentityService, *services.ResolverService, *services.ReviewService, *ReviewSweeperJob) {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	ids := services.NewIdentityService(db)
	if err := ids.RebuildIndex(); err != nil {
		t.Fatalf("failed to build index: %v", err)
	}
	resolver := services.NewResolverService(ids)
	reviews := services.NewReviewService(ids)
	return ids, resolver, reviews, NewReviewSweeperJob(ids, resolver, reviews)
}

func sweeperObs(meeting, rawName string) services.Observation {
	return services.Observation{
		MeetingInstanceID: meeting,
		RawName:           rawName,
		JoinedAt:          testhelpers.ObservationTime(),
		DurationSeconds:   1800,
	}
}

func TestRunAttachesNowUnambiguousItems(t *testing.T) {
	ids, resolver, reviews, sweeper := newTestSweeper(t)

	sam, err := resolver.Resolve(sweeperObs("meet-0", "Sam Ghanem"))
	testhelpers.AssertNoError(t, err, "seed sam")

	// Two sightings of the same odd variant queue two items.
	first, err := resolver.Resolve(sweeperObs("meet-1", "Sam The Ghanem"))
	testhelpers.AssertNoError(t, err, "queue first")
	testhelpers.AssertEqual(t, services.ResolutionQueued, first.State, "first queued")
	second, err := resolver.Resolve(sweeperObs("meet-2", "Sam The Ghanem"))
	testhelpers.AssertNoError(t, err, "queue second")
	testhelpers.AssertEqual(t, services.ResolutionQueued, second.State, "second queued")

	// An operator attaches the first item, teaching the index the alias.
	_, _, err = reviews.Resolve(first.ReviewItemID, services.DecisionAttachTo, sam.IdentityUUID, "alice")
	testhelpers.AssertNoError(t, err, "operator attach")

	// The second item is now an exact match; the sweeper closes it.
	attached, err := sweeper.Run()
	testhelpers.AssertNoError(t, err, "sweep")
	testhelpers.AssertEqual(t, 1, attached, "items attached")

	open, err := reviews.OpenItems()
	testhelpers.AssertNoError(t, err, "open items")
	testhelpers.AssertEqual(t, 0, len(open), "queue drained")

	item, err := reviews.GetItem(second.ReviewItemID)
	testhelpers.AssertNoError(t, err, "reload item")
	testhelpers.AssertEqual(t, database.ReviewStatusResolved, item.Status, "status")
	testhelpers.AssertEqual(t, "sweeper", item.ResolvedBy, "resolved by")

	var record database.AttendanceRecord
	err = ids.DB().Where("meeting_instance_id = ? AND raw_name_observed = ?",
		"meet-2", "Sam The Ghanem").First(&record).Error
	testhelpers.AssertNoError(t, err, "attendance record")
	testhelpers.AssertEqual(t, "sweeper:1.00", record.MatchReason, "match reason")

	identity, _ := ids.GetIdentityByUUID(sam.IdentityUUID)
	testhelpers.AssertEqual(t, 3, identity.TotalAppearances, "appearances")
}

func TestRunLeavesStillAmbiguousItems(t *testing.T) {
	_, resolver, reviews, sweeper := newTestSweeper(t)

	resolver.Resolve(sweeperObs("meet-0", "Sam Ghanem"))
	res, err := resolver.Resolve(sweeperObs("meet-1", "Sam The Ghanem"))
	testhelpers.AssertNoError(t, err, "queue item")
	testhelpers.AssertEqual(t, services.ResolutionQueued, res.State, "queued")

	// Nothing changed since the item was queued; the score is still below
	// the auto-attach threshold.
	attached, err := sweeper.Run()
	testhelpers.AssertNoError(t, err, "sweep")
	testhelpers.AssertEqual(t, 0, attached, "items attached")

	open, _ := reviews.OpenItems()
	testhelpers.AssertEqual(t, 1, len(open), "item stays open")
}

func TestRunSkipsWhenDisabled(t *testing.T) {
	_, resolver, reviews, sweeper := newTestSweeper(t)

	sam, _ := resolver.Resolve(sweeperObs("meet-0", "Sam Ghanem"))
	first, _ := resolver.Resolve(sweeperObs("meet-1", "Sam The Ghanem"))
	resolver.Resolve(sweeperObs("meet-2", "Sam The Ghanem"))
	reviews.Resolve(first.ReviewItemID, services.DecisionAttachTo, sam.IdentityUUID, "alice")

	settings, err := resolver.GetSettings()
	testhelpers.AssertNoError(t, err, "get settings")
	settings.SweeperEnabled = false
	testhelpers.AssertNoError(t, resolver.UpdateSettings(settings), "update settings")

	attached, err := sweeper.Run()
	testhelpers.AssertNoError(t, err, "sweep")
	testhelpers.AssertEqual(t, 0, attached, "nothing attached while disabled")
}

// An alias-conflict item scores as a clean exact hit against the name's
// current owner, but closing it is an arbitration call, not a re-score.
func TestRunLeavesAliasConflictItems(t *testing.T) {
	_, resolver, reviews, sweeper := newTestSweeper(t)

	resolver.Resolve(sweeperObs("meet-0", "Sam Ghanem"))

	authenticated := sweeperObs("meet-0", "Ada Lovelace")
	authenticated.PlatformUserID = "zoom-777"
	resolver.Resolve(authenticated)

	claimed := sweeperObs("meet-1", "Sam Ghanem")
	claimed.PlatformUserID = "zoom-777"
	res, err := resolver.Resolve(claimed)
	testhelpers.AssertNoError(t, err, "queue conflict item")
	testhelpers.AssertEqual(t, services.ResolutionQueued, res.State, "queued")

	attached, err := sweeper.Run()
	testhelpers.AssertNoError(t, err, "sweep")
	testhelpers.AssertEqual(t, 0, attached, "conflicts never auto-attach")

	open, _ := reviews.OpenItems()
	testhelpers.AssertEqual(t, 1, len(open), "item stays open")
}

func TestRunSkipsEmptyNameItems(t *testing.T) {
	_, resolver, reviews, sweeper := newTestSweeper(t)

	res, err := resolver.Resolve(sweeperObs("meet-1", "💻🎉"))
	testhelpers.AssertNoError(t, err, "queue empty-name item")
	testhelpers.AssertEqual(t, services.ResolutionQueued, res.State, "queued")

	attached, err := sweeper.Run()
	testhelpers.AssertNoError(t, err, "sweep")
	testhelpers.AssertEqual(t, 0, attached, "empty names never auto-attach")

	open, _ := reviews.OpenItems()
	testhelpers.AssertEqual(t, 1, len(open), "item stays open")
}

func TestStartStops(t *testing.T) {
	_, _, _, sweeper := newTestSweeper(t)

	stop := make(chan struct{})
	close(stop)
	testhelpers.MustCompleteWithin(t, 2*time.Second, func() {
		sweeper.Start(stop)
	})
}
