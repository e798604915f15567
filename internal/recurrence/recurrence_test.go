package recurrence

import (
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", None, false},
		{"no_repeat", None, false},
		{"daily", Daily, false},
		{"weekly", Weekly, false},
		{"monthly", Monthly, false},
		{"yearly", Yearly, false},
		{"hourly", None, true},
		{"Daily", None, true},
	}
	for _, c := range cases {
		got, err := ParseKind(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseKind(%q) err = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if err == nil && got != c.want {
			t.Errorf("ParseKind(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNextPeriods(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		k    Kind
		want time.Time
	}{
		{Daily, base.Add(24 * time.Hour)},
		{Weekly, base.Add(7 * 24 * time.Hour)},
		{Monthly, base.Add(30 * 24 * time.Hour)},
		{Yearly, base.Add(365 * 24 * time.Hour)},
		{None, base},
		{Kind("bogus"), base},
	}
	for _, c := range cases {
		if got := Next(base, c.k); !got.Equal(c.want) {
			t.Errorf("Next(%q) = %v, want %v", c.k, got, c.want)
		}
	}
}

func TestRepeats(t *testing.T) {
	t.Parallel()
	if None.Repeats() {
		t.Fatal("None must not repeat")
	}
	if Kind("bogus").Repeats() {
		t.Fatal("invalid kind must not repeat")
	}
	for _, k := range []Kind{Daily, Weekly, Monthly, Yearly} {
		if !k.Repeats() {
			t.Fatalf("%q must repeat", k)
		}
	}
}
