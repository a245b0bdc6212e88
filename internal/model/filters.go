package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// FilterSet is the user-selected constraint snapshot applied to every
// visible layer's data fetch. Immutable once parsed; a new filter state is a
// new value.
type FilterSet struct {
	StartDate      string              `json:"startDate,omitempty"`
	EndDate        string              `json:"endDate,omitempty"`
	ParishID       string              `json:"parishId,omitempty"`
	CommunityID    string              `json:"communityId,omitempty"`
	Layers         []string            `json:"layers,omitempty"`
	SubTypeFilters map[string][]string `json:"subTypeFilters,omitempty"`
}

var dateFormats = []string{"2006-01-02", time.RFC3339}

func parseDate(s string) (time.Time, error) {
	for _, f := range dateFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC3339)", s)
}

// ParseFilterSet decodes the flat query-string form. The second return value
// is a non-fatal warning in the teacher-request style.
func ParseFilterSet(q url.Values) (FilterSet, string, error) {
	var warn string

	f := FilterSet{
		StartDate:   strings.TrimSpace(q.Get("startDate")),
		EndDate:     strings.TrimSpace(q.Get("endDate")),
		ParishID:    strings.TrimSpace(q.Get("parishId")),
		CommunityID: strings.TrimSpace(q.Get("communityId")),
	}

	var start, end time.Time
	var err error
	if f.StartDate != "" {
		if start, err = parseDate(f.StartDate); err != nil {
			return FilterSet{}, "", fmt.Errorf("startDate: %w", err)
		}
	}
	if f.EndDate != "" {
		if end, err = parseDate(f.EndDate); err != nil {
			return FilterSet{}, "", fmt.Errorf("endDate: %w", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return FilterSet{}, "", fmt.Errorf("endDate %q precedes startDate %q", f.EndDate, f.StartDate)
	}

	if raw := strings.TrimSpace(q.Get("layers")); raw != "" {
		for p := range strings.SplitSeq(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				f.Layers = append(f.Layers, p)
			}
		}
	}

	if raw := strings.TrimSpace(q.Get("subTypeFilters")); raw != "" {
		var m map[string][]string
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			// a bad subtype filter should not reject the whole request
			warn = "invalid subTypeFilters JSON; ignoring"
		} else {
			f.SubTypeFilters = m
		}
	}

	return f, warn, nil
}

// Values serializes back to the flat query-string form consumed by the
// upstream endpoints.
func (f FilterSet) Values() url.Values {
	v := url.Values{}
	if f.StartDate != "" {
		v.Set("startDate", f.StartDate)
	}
	if f.EndDate != "" {
		v.Set("endDate", f.EndDate)
	}
	if f.ParishID != "" {
		v.Set("parishId", f.ParishID)
	}
	if f.CommunityID != "" {
		v.Set("communityId", f.CommunityID)
	}
	if len(f.Layers) > 0 {
		v.Set("layers", strings.Join(f.Layers, ","))
	}
	if len(f.SubTypeFilters) > 0 {
		if b, err := json.Marshal(f.SubTypeFilters); err == nil {
			v.Set("subTypeFilters", string(b))
		}
	}
	return v
}

func (f FilterSet) Encode() string {
	return f.Values().Encode()
}

func (f FilterSet) IsZero() bool {
	return f.StartDate == "" && f.EndDate == "" &&
		f.ParishID == "" && f.CommunityID == "" &&
		len(f.Layers) == 0 && len(f.SubTypeFilters) == 0
}

// CanonicalString is a deterministic representation used for cache keying.
// Map iteration order is normalized by sorting keys and values.
func (f FilterSet) CanonicalString() string {
	var b strings.Builder
	b.WriteString("start=")
	b.WriteString(f.StartDate)
	b.WriteString("|end=")
	b.WriteString(f.EndDate)
	b.WriteString("|parish=")
	b.WriteString(f.ParishID)
	b.WriteString("|community=")
	b.WriteString(f.CommunityID)

	if len(f.SubTypeFilters) > 0 {
		keys := make([]string, 0, len(f.SubTypeFilters))
		for k := range f.SubTypeFilters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			vals := append([]string(nil), f.SubTypeFilters[k]...)
			sort.Strings(vals)
			b.WriteString("|sub:")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(strings.Join(vals, ","))
		}
	}
	return b.String()
}
