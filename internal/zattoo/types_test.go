// SPDX-License-Identifier: MIT
package zattoo

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFlexStringDecoding(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want FlexString
	}{
		{"string", `"16"`, "16"},
		{"integer", `16`, "16"},
		{"float", `12.5`, "12.5"},
		{"null", `null`, ""},
		{"empty string", `""`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexString
			if err := json.Unmarshal([]byte(tt.raw), &f); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.raw, err)
			}
			if f != tt.want {
				t.Errorf("got %q, want %q", f, tt.want)
			}
		})
	}

	var f FlexString
	if err := json.Unmarshal([]byte(`{"nope":1}`), &f); err == nil {
		t.Error("expected error for object payload")
	}
}

func TestProgramDecodesGuidePayload(t *testing.T) {
	raw := `{
		"id": 123456789,
		"t": "Tatort",
		"s": 1700000000,
		"e": 1700005400,
		"et": "Die Nacht der Kommissare",
		"g": ["Krimi", "Drama"],
		"yp_r": 16
	}`
	var p Program
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ID != 123456789 || p.Title != "Tatort" {
		t.Errorf("identity fields wrong: %+v", p)
	}
	if p.Start != 1700000000 || p.End != 1700005400 {
		t.Errorf("time fields wrong: %+v", p)
	}
	if p.EpisodeTitle != "Die Nacht der Kommissare" {
		t.Errorf("episode title = %q", p.EpisodeTitle)
	}
	if !reflect.DeepEqual(p.Genres, []string{"Krimi", "Drama"}) {
		t.Errorf("genres = %v", p.Genres)
	}
	if p.Rating != "16" {
		t.Errorf("rating = %q, want 16", p.Rating)
	}
}

func TestProgramDetailDecodesCredits(t *testing.T) {
	raw := `{
		"t": "Tatort",
		"d": "Beschreibung",
		"i_t": "abc123token",
		"cr": {"director": ["R. Jemand"], "actor": ["A", "B"]},
		"s_no": 3,
		"e_no": 7,
		"year": 2023,
		"country": "DE|AT",
		"yp_r": "12"
	}`
	var d ProgramDetail
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Season != 3 || d.Episode != 7 || d.Year != 2023 {
		t.Errorf("numbering wrong: %+v", d)
	}
	if !reflect.DeepEqual(d.Credits.Directors, []string{"R. Jemand"}) {
		t.Errorf("directors = %v", d.Credits.Directors)
	}
	if !reflect.DeepEqual(d.Credits.Actors, []string{"A", "B"}) {
		t.Errorf("actors = %v", d.Credits.Actors)
	}
	if d.ImageToken != "abc123token" {
		t.Errorf("image token = %q", d.ImageToken)
	}
}

func TestGuideResponseChannelIDFallback(t *testing.T) {
	raw := `{
		"success": true,
		"channels": [
			{"cid": "ard", "programs": [{"id": 1, "t": "A", "s": 1, "e": 2}]},
			{"id": "zdf", "programs": [{"id": 2, "t": "B", "s": 1, "e": 2}]}
		]
	}`
	var resp guideResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Channels) != 2 {
		t.Fatalf("len = %d, want 2", len(resp.Channels))
	}
	if resp.Channels[0].CID != "ard" {
		t.Errorf("first cid = %q", resp.Channels[0].CID)
	}
	if resp.Channels[1].CID != "" || resp.Channels[1].ID != "zdf" {
		t.Errorf("second entry should only carry id: %+v", resp.Channels[1])
	}
}
