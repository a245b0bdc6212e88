package model

import (
	"net/url"
	"testing"
)

func TestParseFilterSet_RoundTrip(t *testing.T) {
	q := url.Values{}
	q.Set("startDate", "2024-07-01")
	q.Set("endDate", "2024-07-15")
	q.Set("parishId", "p-03")
	q.Set("communityId", "c-118")
	q.Set("layers", "people,assets")
	q.Set("subTypeFilters", `{"assets":["vehicle","boat"]}`)

	f, warn, err := ParseFilterSet(q)
	if err != nil {
		t.Fatalf("ParseFilterSet: %v", err)
	}
	if warn != "" {
		t.Fatalf("unexpected warning: %q", warn)
	}
	if f.ParishID != "p-03" || f.CommunityID != "c-118" {
		t.Fatalf("location filters not parsed: %+v", f)
	}
	if len(f.Layers) != 2 || f.Layers[0] != "people" {
		t.Fatalf("layers not parsed: %v", f.Layers)
	}
	if got := f.SubTypeFilters["assets"]; len(got) != 2 {
		t.Fatalf("subTypeFilters not parsed: %v", f.SubTypeFilters)
	}

	back, _, err := ParseFilterSet(f.Values())
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if back.CanonicalString() != f.CanonicalString() {
		t.Fatalf("round trip changed canonical form:\n a=%s\n b=%s",
			f.CanonicalString(), back.CanonicalString())
	}
}

func TestParseFilterSet_BadDates(t *testing.T) {
	q := url.Values{}
	q.Set("startDate", "July 1st")
	if _, _, err := ParseFilterSet(q); err == nil {
		t.Fatalf("expected error for unparseable startDate")
	}

	q = url.Values{}
	q.Set("startDate", "2024-07-15")
	q.Set("endDate", "2024-07-01")
	if _, _, err := ParseFilterSet(q); err == nil {
		t.Fatalf("expected error for endDate before startDate")
	}
}

func TestParseFilterSet_BadSubTypeJSONIsWarningOnly(t *testing.T) {
	q := url.Values{}
	q.Set("subTypeFilters", "{not json")

	f, warn, err := ParseFilterSet(q)
	if err != nil {
		t.Fatalf("bad subTypeFilters must not fail the request: %v", err)
	}
	if warn == "" {
		t.Fatalf("expected a warning for invalid subTypeFilters")
	}
	if f.SubTypeFilters != nil {
		t.Fatalf("invalid subTypeFilters should be dropped, got %v", f.SubTypeFilters)
	}
}

func TestCanonicalString_OrderIndependent(t *testing.T) {
	a := FilterSet{SubTypeFilters: map[string][]string{
		"assets": {"boat", "vehicle"},
		"places": {"shelter"},
	}}
	b := FilterSet{SubTypeFilters: map[string][]string{
		"places": {"shelter"},
		"assets": {"vehicle", "boat"},
	}}
	if a.CanonicalString() != b.CanonicalString() {
		t.Fatalf("canonical form should be order independent:\n a=%s\n b=%s",
			a.CanonicalString(), b.CanonicalString())
	}
}
