// SPDX-License-Identifier: MIT

package zattoo

import (
	"encoding/json"
	"time"
)

// Session holds the authenticated state of one run. It is replaced at most
// once, when an expired session triggers the single re-login attempt.
type Session struct {
	Token          string // beaker session cookie value
	Country        string // service region reported by the account
	PowerGuideHash string // key for the cached guide endpoints
	CreatedAt      time.Time
}

// Channel is one catalog entry in upstream group order.
type Channel struct {
	ID      string
	Title   string
	LogoURL string // empty when the channel ships no logo
}

const imageCDNBase = "https://images.zattic.com"

// ImageURL resolves a programme image token against the image CDN.
func ImageURL(token string) string {
	if token == "" {
		return ""
	}
	return imageCDNBase + "/cms/" + token + "/original.jpg"
}

// Program is a guide slot as served by the power-guide endpoint, plus the
// detail fields when they have been merged in.
type Program struct {
	ID           int64      `json:"id"`
	Title        string     `json:"t"`
	Start        int64      `json:"s"` // unix seconds
	End          int64      `json:"e"` // unix seconds
	EpisodeTitle string     `json:"et"`
	Description  string     `json:"d"`
	ImageToken   string     `json:"i_t"`
	Genres       []string   `json:"g"`
	Credits      Credits    `json:"cr"`
	Season       int        `json:"s_no"`
	Episode      int        `json:"e_no"`
	Year         int        `json:"year"`
	Country      string     `json:"country"`
	Rating       FlexString `json:"yp_r"`
}

// ProgramDetail is the enrichment payload of the power-details endpoint.
type ProgramDetail struct {
	Title        string     `json:"t"`
	EpisodeTitle string     `json:"et"`
	Description  string     `json:"d"`
	ImageToken   string     `json:"i_t"`
	Genres       []string   `json:"g"`
	Credits      Credits    `json:"cr"`
	Season       int        `json:"s_no"`
	Episode      int        `json:"e_no"`
	Year         int        `json:"year"`
	Country      string     `json:"country"`
	Rating       FlexString `json:"yp_r"`
}

// Credits carries cast and crew lists.
type Credits struct {
	Directors []string `json:"director"`
	Actors    []string `json:"actor"`
}

// ChannelPrograms groups the slots of one channel within a guide window.
type ChannelPrograms struct {
	ChannelID string
	Programs  []Program
}

// FlexString tolerates upstream fields that arrive as bare numbers in one
// market and strings in another (the youth-protection rating does).
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// wire payloads

type appTokenResponse struct {
	SessionToken string `json:"session_token"`
}

type loginResponse struct {
	Success bool `json:"success"`
	Session struct {
		ServiceRegionCountry string `json:"service_region_country"`
		PowerGuideHash       string `json:"power_guide_hash"`
	} `json:"session"`
}

type wireQuality struct {
	LogoBlack84 string `json:"logo_black_84"`
}

type wireChannel struct {
	CID       string        `json:"cid"`
	Title     string        `json:"title"`
	Qualities []wireQuality `json:"qualities"`
}

type channelsResponse struct {
	Success       bool `json:"success"`
	ChannelGroups []struct {
		Name     string        `json:"name"`
		Channels []wireChannel `json:"channels"`
	} `json:"channel_groups"`
}

type guideResponse struct {
	Success  bool `json:"success"`
	Channels []struct {
		CID      string    `json:"cid"`
		ID       string    `json:"id"`
		Programs []Program `json:"programs"`
	} `json:"channels"`
}

type detailsResponse struct {
	Success  bool                     `json:"success"`
	Programs map[string]ProgramDetail `json:"programs"`
}
