package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
}

func TestParsePageSizeBounds(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}

	params, err := Parse(url.Values{"pageSize": {"90"}}, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 40 {
		t.Fatalf("expected clamp to 40, got %d", params.PageSize)
	}

	for _, raw := range []string{"0", "-1", "ten"} {
		if _, err := Parse(url.Values{"pageSize": {raw}}, opts); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("expected invalid page size for %q, got %v", raw, err)
		}
	}
}

func TestCursorRoundTripThroughRequest(t *testing.T) {
	created := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	token, err := EncodeCursor(Cursor{CreatedAt: created, ID: "ord_1"})
	if err != nil {
		t.Fatalf("EncodeCursor: %v", err)
	}

	req := httptest.NewRequest("GET", "/orders?pageToken="+token, nil)
	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	cursor, err := DecodeCursor(params.PageToken)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if cursor.ID != "ord_1" || !cursor.CreatedAt.Equal(created) {
		t.Fatalf("unexpected cursor %+v", cursor)
	}
}

func TestParseRejectsBadToken(t *testing.T) {
	if _, err := Parse(url.Values{"pageToken": {"%%%"}}, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if token, _ := EncodeCursor(Cursor{}); token != "" {
		t.Fatalf("expected empty token for empty cursor")
	}
}
