package api

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParsePaginationDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/identities", nil)
	p := ParsePagination(r)
	if p.Page != 1 || p.PerPage != 50 {
		t.Errorf("unexpected defaults: %+v", p)
	}
	if p.Offset() != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset())
	}
}

func TestParsePaginationExplicit(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/identities?page=3&per_page=20", nil)
	p := ParsePagination(r)
	if p.Page != 3 || p.PerPage != 20 {
		t.Errorf("unexpected params: %+v", p)
	}
	if p.Offset() != 40 {
		t.Errorf("expected offset 40, got %d", p.Offset())
	}
}

func TestParsePaginationClampsAndIgnoresGarbage(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/identities?page=-2&per_page=5000", nil)
	p := ParsePagination(r)
	if p.Page != 1 {
		t.Errorf("negative page should fall back to 1, got %d", p.Page)
	}
	if p.PerPage != 200 {
		t.Errorf("per_page should clamp to 200, got %d", p.PerPage)
	}

	r = httptest.NewRequest("GET", "/api/identities?page=abc", nil)
	if got := ParsePagination(r).Page; got != 1 {
		t.Errorf("non-numeric page should fall back to 1, got %d", got)
	}
}

func TestTotalPages(t *testing.T) {
	p := PaginationParams{Page: 1, PerPage: 50}
	tests := []struct {
		total int64
		want  int
	}{
		{0, 0},
		{1, 1},
		{50, 1},
		{51, 2},
		{150, 3},
	}
	for _, tt := range tests {
		if got := p.TotalPages(tt.total); got != tt.want {
			t.Errorf("TotalPages(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestValidateMergeRequest(t *testing.T) {
	valid := MergeRequest{
		SourceUUID: "1b4e28ba-2fa1-41d2-883f-0016d3cca427",
		TargetUUID: "6ba7b810-9dad-41d1-80b4-00c04fd430c8",
	}
	if errs := Validate(valid); errs != nil {
		t.Errorf("expected valid request, got %v", errs)
	}

	invalid := MergeRequest{SourceUUID: "not-a-uuid"}
	errs := Validate(invalid)
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if _, ok := errs["source_uuid"]; !ok {
		t.Errorf("expected source_uuid error, got %v", errs)
	}
	if _, ok := errs["target_uuid"]; !ok {
		t.Errorf("expected target_uuid error, got %v", errs)
	}
}

func TestValidateResolveReviewRequest(t *testing.T) {
	errs := Validate(ResolveReviewRequest{Decision: "escalate"})
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if msg, ok := errs["decision"]; !ok || !strings.Contains(msg, "must be one of") {
		t.Errorf("unexpected decision error: %v", errs)
	}
}

func TestValidateSettingsBounds(t *testing.T) {
	bad := 1.5
	errs := Validate(UpdateResolverSettingsRequest{AutoAttachThreshold: &bad})
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if _, ok := errs["auto_attach_threshold"]; !ok {
		t.Errorf("expected auto_attach_threshold error, got %v", errs)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"RawName", "raw_name"},
		{"MeetingInstanceID", "meeting_instance_i_d"},
		{"Decision", "decision"},
	}
	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst MergeRequest

	r := httptest.NewRequest("POST", "/api/merge",
		strings.NewReader(`{"source_uuid":"a","target_uuid":"b"}`))
	if err := DecodeJSON(r, &dst); err != nil {
		t.Errorf("valid body should decode: %v", err)
	}
	if dst.SourceUUID != "a" || dst.TargetUUID != "b" {
		t.Errorf("unexpected decode result: %+v", dst)
	}
}

func TestDecodeJSONUnknownField(t *testing.T) {
	var dst MergeRequest
	r := httptest.NewRequest("POST", "/api/merge", strings.NewReader(`{"bogus":true}`))
	err := DecodeJSON(r, &dst)
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Errorf("expected unknown field error, got %v", err)
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	var dst MergeRequest
	r := httptest.NewRequest("POST", "/api/merge", strings.NewReader(`{"source_uuid":`))
	err := DecodeJSON(r, &dst)
	if err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestDecodeJSONEmptyBody(t *testing.T) {
	var dst MergeRequest
	r := httptest.NewRequest("POST", "/api/merge", strings.NewReader(""))
	err := DecodeJSON(r, &dst)
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("expected empty body error, got %v", err)
	}
}
