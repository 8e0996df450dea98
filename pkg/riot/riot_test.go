package riot

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseRegion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Region
		wantErr bool
	}{
		{name: "lowercase", input: "europe", want: RegionEurope},
		{name: "mixed case with spaces", input: "  Americas ", want: RegionAmericas},
		{name: "sea", input: "SEA", want: RegionSEA},
		{name: "unknown", input: "mars", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRegion(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownRegion) {
					t.Fatalf("ParseRegion(%q) error = %v, want ErrUnknownRegion", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRegion(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseRegion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRegionPlatforms(t *testing.T) {
	got := RegionEurope.Platforms()
	want := []Platform{PlatformEUN1, PlatformEUW1, PlatformTR1, PlatformRU}
	if len(got) != len(want) {
		t.Fatalf("Platforms() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Platforms()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Mutating the copy must not affect the table.
	got[0] = "xx"
	if RegionEurope.Platforms()[0] != PlatformEUN1 {
		t.Error("Platforms() returned the internal slice")
	}
}

func TestPlatformRegion(t *testing.T) {
	for _, r := range Regions() {
		for _, p := range r.Platforms() {
			if p.Region() != r {
				t.Errorf("%s.Region() = %q, want %q", p, p.Region(), r)
			}
		}
	}
	if Platform("nope").Region() != "" {
		t.Error("unknown platform should have no region")
	}
}

func TestCredentialMasked(t *testing.T) {
	c := Credential("RGAPI-1234-5678")
	if got := c.Masked(); got != "RGAPI..." {
		t.Errorf("Masked() = %q", got)
	}
	if got := fmt.Sprintf("%v", c); got != "RGAPI..." {
		t.Errorf("%%v formatting leaked credential: %q", got)
	}
	if got := Credential("abc").Masked(); got != "*****" {
		t.Errorf("short credential Masked() = %q", got)
	}
}

func TestDecodeMatchRecord(t *testing.T) {
	payload := []byte(`{"metadata":{"matchId":"EUW1_1","participants":["p1"]},` +
		`"info":{"gameId":1,"queueId":420,"participants":[{"puuid":"p1","championName":"Ahri","win":true,"kills":7}]}}`)

	rec, err := DecodeMatchRecord(payload)
	if err != nil {
		t.Fatalf("DecodeMatchRecord() error = %v", err)
	}
	if rec.Metadata.MatchID != "EUW1_1" {
		t.Errorf("MatchID = %q", rec.Metadata.MatchID)
	}
	if rec.Info.QueueID != 420 || len(rec.Info.Participants) != 1 {
		t.Errorf("Info = %+v", rec.Info)
	}
	if p := rec.Info.Participants[0]; p.ChampionName != "Ahri" || !p.Win || p.Kills != 7 {
		t.Errorf("participant = %+v", p)
	}
	if string(rec.Raw) != string(payload) {
		t.Error("Raw payload not retained")
	}

	if _, err := DecodeMatchRecord([]byte(`{"metadata":`)); err == nil {
		t.Error("expected error for truncated payload")
	}
}
