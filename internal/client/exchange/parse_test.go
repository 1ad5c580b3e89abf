package exchange

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 12, 17, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{
		"17-Dec-2025",
		"17-DEC-2025",
		"17 Dec 2025",
		"Dec 17, 2025",
		"December 17, 2025",
		"17/12/2025",
		"2025-12-17",
		"2025-12-17T00:00:00",
		"  17-Dec-2025 ",
	} {
		got := ParseDate(raw)
		if got == nil {
			t.Fatalf("ParseDate(%q) = nil", raw)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseDate(%q) = %s, want %s", raw, got, want)
		}
	}
	for _, raw := range []string{"", "-", "NA", "soon"} {
		if got := ParseDate(raw); got != nil {
			t.Fatalf("ParseDate(%q) = %s, want nil", raw, got)
		}
	}
}

func TestParseMoneyAndBand(t *testing.T) {
	if v := ParseMoney("Rs. 1,234.50 per share"); v == nil || v.String() != "1234.5" {
		t.Fatalf("ParseMoney: %v", v)
	}
	if v := ParseMoney("not disclosed"); v != nil {
		t.Fatalf("expected nil, got %s", v)
	}

	low, high := ParsePriceBand("Rs.95 to Rs.100")
	if low == nil || high == nil || low.String() != "95" || high.String() != "100" {
		t.Fatalf("band: %v %v", low, high)
	}
	low, high = ParsePriceBand("100-95")
	if low.String() != "95" || high.String() != "100" {
		t.Fatalf("reversed band: %s %s", low, high)
	}
	low, high = ParsePriceBand("120")
	if low.String() != "120" || high.String() != "120" {
		t.Fatalf("single band: %s %s", low, high)
	}
}

func TestParseInt(t *testing.T) {
	if v := ParseInt("1,200 Equity Shares"); v == nil || *v != 1200 {
		t.Fatalf("ParseInt: %v", v)
	}
	if v := ParseInt("150.00"); v == nil || *v != 150 {
		t.Fatalf("ParseInt decimal: %v", v)
	}
	if v := ParseInt("n/a"); v != nil {
		t.Fatalf("expected nil, got %d", *v)
	}
}

func TestSplitNames(t *testing.T) {
	got := SplitNames("Axis Capital Ltd, ICICI Securities Ltd; axis capital ltd\n- ")
	if len(got) != 2 || got[0] != "Axis Capital Ltd" || got[1] != "ICICI Securities Ltd" {
		t.Fatalf("SplitNames = %#v", got)
	}
	if SplitNames("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}

func TestIsPlaceholder(t *testing.T) {
	for _, v := range []string{"", " - ", "na", "N/A", "tba"} {
		if !IsPlaceholder(v) {
			t.Fatalf("%q should be a placeholder", v)
		}
	}
	if IsPlaceholder("ACME") {
		t.Fatalf("ACME is a real symbol")
	}
}
