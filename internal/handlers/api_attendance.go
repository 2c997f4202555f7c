package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rollcall/rollcall/internal/api"
)

// handleAttendance handles GET /api/attendance.
// Query params: from, to (RFC 3339 or unix seconds), identity (UUID).
func (h *APIHandler) handleAttendance(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := now.AddDate(0, 0, -7)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "Invalid 'from' parameter")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "Invalid 'to' parameter")
			return
		}
		to = t
	}
	if !to.After(from) {
		api.RespondError(w, http.StatusBadRequest, "'to' must be after 'from'")
		return
	}

	identityUUID := r.URL.Query().Get("identity")

	entries, err := h.attendanceService.AttendanceFor(from, to, identityUUID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load attendance")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"from":    from,
		"to":      to,
		"entries": entries,
	})
}

// parseTimeParam accepts RFC 3339 timestamps and unix epoch seconds.
func parseTimeParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	epoch, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(epoch, 0), nil
}
