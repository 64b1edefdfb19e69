package cli

import (
	"testing"
	"time"
)

func TestFormatPower(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0 W"},
		{950, "950 W"},
		{3049.6, "3,050 W"},
		{12500, "12.5 kW"},
	}
	for _, c := range cases {
		if got := FormatPower(c.in); got != c.want {
			t.Fatalf("FormatPower(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}
	for _, c := range cases {
		if got := FormatNumber(c.in); got != c.want {
			t.Fatalf("FormatNumber(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatTemp(t *testing.T) {
	if got := FormatTemp(1.5); got != "1.5 °C" {
		t.Fatalf("FormatTemp(1.5) = %q", got)
	}
	if got := FormatTemp(-1.57); got != "-1.6 °C" {
		t.Fatalf("FormatTemp(-1.57) = %q", got)
	}
}

func TestFormatCount(t *testing.T) {
	if got := FormatCount(1, "day"); got != "1 day" {
		t.Fatalf("FormatCount(1) = %q", got)
	}
	if got := FormatCount(1250, "sample"); got != "1,250 samples" {
		t.Fatalf("FormatCount(1250) = %q", got)
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(0.333); got != "33.3%" {
		t.Fatalf("FormatPercent(0.333) = %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	if got := FormatDate(d); got != "2026-02-07" {
		t.Fatalf("FormatDate = %q", got)
	}
}
