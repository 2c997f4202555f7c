package services

import (
	"time"

	"github.com/rollcall/rollcall/internal/database"
)

// AttendanceService reads the attendance ledger for reporting. Attendance is
// counted per (identity, meeting instance): two raw variants of one person in
// one meeting are one appearance in the output even though both rows exist.
type AttendanceService struct {
	ids *IdentityService
}

// NewAttendanceService creates an attendance reader.
func NewAttendanceService(ids *IdentityService) *AttendanceService {
	return &AttendanceService{ids: ids}
}

// AttendanceEntry is one distinct (identity, meeting instance) appearance.
type AttendanceEntry struct {
	IdentityUUID      string    `json:"identity_uuid"`
	CanonicalName     string    `json:"canonical_name"`
	MeetingInstanceID string    `json:"meeting_instance_id"`
	JoinedAt          time.Time `json:"joined_at"`
	DurationSeconds   int       `json:"duration_seconds"`
}

// AttendanceFor returns distinct appearances in [from, to), optionally scoped
// to one identity. The earliest join and the summed duration represent rows
// collapsed by the distinct key.
func (s *AttendanceService) AttendanceFor(from, to time.Time, identityUUID string) ([]AttendanceEntry, error) {
	query := s.ids.db.Model(&database.AttendanceRecord{}).
		Select(`identities.uuid AS identity_uuid,
			identities.canonical_name AS canonical_name,
			attendance_records.meeting_instance_id AS meeting_instance_id,
			MIN(attendance_records.joined_at) AS joined_at,
			SUM(attendance_records.duration_seconds) AS duration_seconds`).
		Joins("JOIN identities ON identities.id = attendance_records.identity_id").
		Where("attendance_records.joined_at >= ? AND attendance_records.joined_at < ?", from, to).
		Group("identities.uuid, identities.canonical_name, attendance_records.meeting_instance_id").
		Order("MIN(attendance_records.joined_at) ASC")

	if identityUUID != "" {
		query = query.Where("identities.uuid = ?", identityUUID)
	}

	var entries []AttendanceEntry
	err := query.Scan(&entries).Error
	return entries, err
}

// RecordsForIdentity returns the raw ledger rows of one identity, newest
// first, for the identity history view.
func (s *AttendanceService) RecordsForIdentity(identityID uint, offset, limit int) ([]database.AttendanceRecord, int64, error) {
	query := s.ids.db.Model(&database.AttendanceRecord{}).Where("identity_id = ?", identityID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []database.AttendanceRecord
	err := query.Order("joined_at DESC").Offset(offset).Limit(limit).Find(&records).Error
	return records, total, err
}
