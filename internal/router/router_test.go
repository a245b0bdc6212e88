package router

import (
	"strings"
	"testing"
)

func TestParseBBox(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantErr string
	}{
		{"plain", "-77.0,17.9,-76.5,18.1", ""},
		{"with srid", "-77.0,17.9,-76.5,18.1,EPSG:4326", ""},
		{"wrong srid", "-77.0,17.9,-76.5,18.1,EPSG:3857", "EPSG:4326"},
		{"too few", "-77.0,17.9,-76.5", "comma-separated"},
		{"bad float", "-77.0,abc,-76.5,18.1", "y1"},
		{"inverted", "-76.5,17.9,-77.0,18.1", "x2>x1"},
		{"lon out of range", "-190,17.9,-76.5,18.1", "longitude"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bb, err := ParseBBox(tc.in)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ParseBBox: %v", err)
				}
				if bb.X1 != -77.0 || bb.Y2 != 18.1 {
					t.Fatalf("bbox=%+v", bb)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%v want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseZoom(t *testing.T) {
	if _, err := ParseZoom(""); err == nil {
		t.Fatalf("empty zoom must error")
	}
	if _, err := ParseZoom("x"); err == nil {
		t.Fatalf("non-numeric zoom must error")
	}
	if _, err := ParseZoom("25"); err == nil {
		t.Fatalf("out-of-range zoom must error")
	}
	z, err := ParseZoom("12.5")
	if err != nil || z != 12.5 {
		t.Fatalf("z=%v err=%v", z, err)
	}
}

func TestParseOpacity(t *testing.T) {
	if err := ParseOpacity(0.5); err != nil {
		t.Fatalf("ParseOpacity: %v", err)
	}
	if err := ParseOpacity(-0.1); err == nil {
		t.Fatalf("negative opacity must error")
	}
	if err := ParseOpacity(1.1); err == nil {
		t.Fatalf("opacity > 1 must error")
	}
}
