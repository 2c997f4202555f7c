package handlers

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/rollcall/rollcall/internal/api"
	"github.com/rollcall/rollcall/internal/services"
	"github.com/rollcall/rollcall/internal/testhelpers"
)

// testStack wires real services over an in-memory database behind the full
// route table, so these tests exercise the same paths production traffic does.
type testStack struct {
	mux      *http.ServeMux
	ids      *services.IdentityService
	resolver *services.ResolverService
	ingest   *services.IngestService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db := testhelpers.NewTestDB(t)

	ids := services.NewIdentityService(db)
	if err := ids.RebuildIndex(); err != nil {
		t.Fatalf("failed to build index: %v", err)
	}
	resolver := services.NewResolverService(ids)
	merges := services.NewMergeService(ids)
	reviews := services.NewReviewService(ids)
	attendance := services.NewAttendanceService(ids)
	ingest := services.NewIngestService(resolver, 2)
	t.Cleanup(ingest.Stop)

	mux := http.NewServeMux()
	NewHTTPHandler().SetupRoutes(mux)
	NewAPIHandler(ids, resolver, merges, reviews, attendance, ingest).SetupRoutes(mux)

	return &testStack{mux: mux, ids: ids, resolver: resolver, ingest: ingest}
}

func observationBody(rawName string) map[string]interface{} {
	return map[string]interface{}{
		"raw_name":         rawName,
		"joined_at":        testhelpers.ObservationTime().Format(time.RFC3339),
		"duration_seconds": 1800,
	}
}

func ingestBody(meeting string, names ...string) map[string]interface{} {
	observations := make([]map[string]interface{}, len(names))
	for i, name := range names {
		observations[i] = observationBody(name)
	}
	return map[string]interface{}{
		"batches": []map[string]interface{}{
			{"meeting_instance_id": meeting, "observations": observations},
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	stack := newTestStack(t)

	testhelpers.NewHTTPTestContext(t, "GET", "/health", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"status":"ok"`)
}

func TestIngestThenListIdentities(t *testing.T) {
	stack := newTestStack(t)

	testhelpers.NewHTTPTestContext(t, "POST", "/api/ingest", nil).
		WithJSONBody(ingestBody("meet-1", "Sam Ghanem", "Josh Cougler")).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"attached":2`).
		AssertBodyContains(`"new_identities":2`)

	var listResp struct {
		Data       []api.IdentityListItem `json:"data"`
		Pagination api.PaginationMeta     `json:"pagination"`
	}
	testhelpers.NewHTTPTestContext(t, "GET", "/api/identities", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&listResp)

	testhelpers.AssertEqual(t, int64(2), listResp.Pagination.Total, "total identities")
	testhelpers.AssertEqual(t, 2, len(listResp.Data), "identities returned")
}

func TestIngestValidation(t *testing.T) {
	stack := newTestStack(t)

	testhelpers.NewHTTPTestContext(t, "POST", "/api/ingest", nil).
		WithJSONBody(map[string]interface{}{"batches": []map[string]interface{}{}}).
		Execute(stack.mux).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("validation_error")
}

func TestGetIdentityDetail(t *testing.T) {
	stack := newTestStack(t)
	res, err := stack.resolver.Resolve(services.Observation{
		MeetingInstanceID: "meet-1",
		RawName:           "Sam Ghanem",
		JoinedAt:          testhelpers.ObservationTime(),
	})
	testhelpers.AssertNoError(t, err, "seed identity")

	var detail api.IdentityDetail
	testhelpers.NewHTTPTestContext(t, "GET", "/api/identities/"+res.IdentityUUID, nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&detail)

	testhelpers.AssertEqual(t, "Sam Ghanem", detail.CanonicalName, "canonical name")
	testhelpers.AssertEqual(t, 1, len(detail.Aliases), "aliases")
}

func TestGetIdentityNotFound(t *testing.T) {
	stack := newTestStack(t)

	testhelpers.NewHTTPTestContext(t, "GET", "/api/identities/00000000-0000-4000-8000-00000000dead", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusNotFound).
		AssertBodyContains("identity_not_found")
}

func TestMergeEndpoint(t *testing.T) {
	stack := newTestStack(t)
	sam, _ := stack.resolver.Resolve(services.Observation{
		MeetingInstanceID: "meet-1", RawName: "Sam Ghanem", JoinedAt: testhelpers.ObservationTime(),
	})
	josh, _ := stack.resolver.Resolve(services.Observation{
		MeetingInstanceID: "meet-1", RawName: "Josh Cougler", JoinedAt: testhelpers.ObservationTime(),
	})

	testhelpers.NewHTTPTestContext(t, "POST", "/api/merge", nil).
		WithJSONBody(map[string]interface{}{
			"source_uuid": josh.IdentityUUID,
			"target_uuid": sam.IdentityUUID,
			"reason":      "same person",
		}).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"operation":"merge"`)

	// Merging the tombstoned source again conflicts.
	testhelpers.NewHTTPTestContext(t, "POST", "/api/merge", nil).
		WithJSONBody(map[string]interface{}{
			"source_uuid": josh.IdentityUUID,
			"target_uuid": sam.IdentityUUID,
		}).
		Execute(stack.mux).
		AssertStatus(http.StatusConflict).
		AssertBodyContains("identity_tombstoned")
}

func TestMergeSelfRejected(t *testing.T) {
	stack := newTestStack(t)
	sam, _ := stack.resolver.Resolve(services.Observation{
		MeetingInstanceID: "meet-1", RawName: "Sam Ghanem", JoinedAt: testhelpers.ObservationTime(),
	})

	testhelpers.NewHTTPTestContext(t, "POST", "/api/merge", nil).
		WithJSONBody(map[string]interface{}{
			"source_uuid": sam.IdentityUUID,
			"target_uuid": sam.IdentityUUID,
		}).
		Execute(stack.mux).
		AssertStatus(http.StatusBadRequest).
		AssertBodyContains("self_merge")
}

func TestMergeValidation(t *testing.T) {
	stack := newTestStack(t)

	testhelpers.NewHTTPTestContext(t, "POST", "/api/merge", nil).
		WithJSONBody(map[string]interface{}{"source_uuid": "not-a-uuid"}).
		Execute(stack.mux).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("source_uuid")
}

func TestReviewResolveEndpoint(t *testing.T) {
	stack := newTestStack(t)
	sam, _ := stack.resolver.Resolve(services.Observation{
		MeetingInstanceID: "meet-1", RawName: "Sam Ghanem", JoinedAt: testhelpers.ObservationTime(),
	})
	queued, _ := stack.resolver.Resolve(services.Observation{
		MeetingInstanceID: "meet-2", RawName: "Sam The Ghanem", JoinedAt: testhelpers.ObservationTime(),
	})
	testhelpers.AssertEqual(t, services.ResolutionQueued, queued.State, "item queued")

	testhelpers.NewHTTPTestContext(t, "GET", "/api/review", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"queue_reason":"low_confidence"`)

	itemPath := "/api/review/" + itoa(queued.ReviewItemID) + "/resolve"
	testhelpers.NewHTTPTestContext(t, "POST", itemPath, nil).
		WithJSONBody(map[string]interface{}{
			"decision":      "attach_to",
			"identity_uuid": sam.IdentityUUID,
		}).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"resolved_by":"api"`)

	// A second decision on the same item conflicts.
	testhelpers.NewHTTPTestContext(t, "POST", itemPath, nil).
		WithJSONBody(map[string]interface{}{"decision": "dismiss"}).
		Execute(stack.mux).
		AssertStatus(http.StatusConflict).
		AssertBodyContains("review_item_closed")
}

func TestReviewAttachRequiresIdentity(t *testing.T) {
	stack := newTestStack(t)
	stack.resolver.Resolve(services.Observation{
		MeetingInstanceID: "meet-1", RawName: "Sam Ghanem", JoinedAt: testhelpers.ObservationTime(),
	})
	queued, _ := stack.resolver.Resolve(services.Observation{
		MeetingInstanceID: "meet-2", RawName: "Sam The Ghanem", JoinedAt: testhelpers.ObservationTime(),
	})

	testhelpers.NewHTTPTestContext(t, "POST", "/api/review/"+itoa(queued.ReviewItemID)+"/resolve", nil).
		WithJSONBody(map[string]interface{}{"decision": "attach_to"}).
		Execute(stack.mux).
		AssertStatus(http.StatusBadRequest).
		AssertBodyContains("identity_uuid is required")
}

func TestSettingsEndpoints(t *testing.T) {
	stack := newTestStack(t)

	testhelpers.NewHTTPTestContext(t, "GET", "/api/settings/resolver", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"auto_attach_threshold":0.85`)

	testhelpers.NewHTTPTestContext(t, "PUT", "/api/settings/resolver", nil).
		WithJSONBody(map[string]interface{}{"auto_attach_threshold": 0.9}).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"auto_attach_threshold":0.9`)

	// A floor above the threshold would erase the review band.
	testhelpers.NewHTTPTestContext(t, "PUT", "/api/settings/resolver", nil).
		WithJSONBody(map[string]interface{}{"fuzzy_floor": 0.95}).
		Execute(stack.mux).
		AssertStatus(http.StatusBadRequest).
		AssertBodyContains("fuzzy_floor must be below auto_attach_threshold")
}

func TestAttendanceEndpoint(t *testing.T) {
	stack := newTestStack(t)
	stack.resolver.Resolve(services.Observation{
		MeetingInstanceID: "meet-1", RawName: "Sam Ghanem",
		JoinedAt: testhelpers.ObservationTime(), DurationSeconds: 1800,
	})

	from := testhelpers.ObservationTime().Add(-time.Hour).Format(time.RFC3339)
	to := testhelpers.ObservationTime().Add(time.Hour).Format(time.RFC3339)

	testhelpers.NewHTTPTestContext(t, "GET", "/api/attendance?from="+from+"&to="+to, nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"meeting_instance_id":"meet-1"`)
}

func TestAttendanceRejectsInvertedWindow(t *testing.T) {
	stack := newTestStack(t)

	from := testhelpers.ObservationTime().Format(time.RFC3339)
	to := testhelpers.ObservationTime().Add(-time.Hour).Format(time.RFC3339)

	testhelpers.NewHTTPTestContext(t, "GET", "/api/attendance?from="+from+"&to="+to, nil).
		Execute(stack.mux).
		AssertStatus(http.StatusBadRequest)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
