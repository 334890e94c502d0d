// SPDX-License-Identifier: MIT
package epg

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	unorm "golang.org/x/text/unicode/norm"

	"github.com/domevanzy/Zattoo-EPG/internal/guide"
)

// Options controls how a guide document is rendered.
type Options struct {
	// Language tags title, sub-title, desc, display-name and category.
	Language string
	// Location is the timezone the start/stop attributes are rendered in.
	// Nil falls back to the process-local zone.
	Location *time.Location
	// Generator overrides the generator-info-name attribute.
	Generator string
}

const (
	defaultGenerator = "zattoo-epg"
	sourceInfoURL    = "https://zattoo.com/"

	// timeLayout is the XMLTV timestamp form: YYYYMMDDHHMMSS +ZZZZ.
	timeLayout = "20060102150405 -0700"
)

var htmlTags = regexp.MustCompile(`<[^>]*>`)

// CleanText prepares upstream strings for XML character data: NFC
// normalization, embedded markup stripped, surrounding whitespace trimmed.
// The XML encoder handles entity escaping.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = unorm.NFC.String(s)
	s = htmlTags.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// FromDocument converts a guide document to the XMLTV element tree.
// Channels keep their catalog order; slots keep their per-channel order.
func FromDocument(doc guide.Document, opts Options) *TV {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	gen := opts.Generator
	if gen == "" {
		gen = defaultGenerator
	}

	tv := &TV{
		SourceInfoURL: sourceInfoURL,
		SourceDataURL: sourceInfoURL,
		Generator:     gen,
		Channels:      make([]Channel, 0, len(doc.Channels)),
	}

	for _, ch := range doc.Channels {
		entry := Channel{
			ID:          ch.ID,
			DisplayName: Text{Lang: opts.Language, Value: CleanText(ch.Name)},
		}
		if ch.LogoURL != "" {
			entry.Icon = &Icon{Src: ch.LogoURL}
		}
		tv.Channels = append(tv.Channels, entry)
	}

	for _, ch := range doc.Channels {
		for _, slot := range doc.Programs[ch.ID] {
			tv.Programmes = append(tv.Programmes, programme(slot, opts.Language, loc))
		}
	}
	return tv
}

func programme(slot guide.ProgramSlot, lang string, loc *time.Location) Programme {
	p := Programme{
		Start:   slot.Start.In(loc).Format(timeLayout),
		Stop:    slot.Stop.In(loc).Format(timeLayout),
		Channel: slot.ChannelID,
		Title:   Text{Lang: lang, Value: CleanText(slot.Title)},
		Country: slot.Country,
	}
	if s := CleanText(slot.Subtitle); s != "" {
		p.SubTitle = &Text{Lang: lang, Value: s}
	}
	if d := CleanText(slot.Description); d != "" {
		p.Desc = &Text{Lang: lang, Value: d}
	}
	p.Credits = creditsElement(slot.Credits)
	if slot.Year > 0 {
		p.Date = strconv.Itoa(slot.Year)
	}
	for _, genre := range slot.Categories {
		if g := CleanText(genre); g != "" {
			p.Categories = append(p.Categories, Text{Lang: lang, Value: g})
		}
	}
	for _, src := range slot.ImageURLs {
		if src != "" {
			p.Icons = append(p.Icons, Icon{Src: src})
		}
	}
	p.EpisodeNum = episodeNumber(slot.Season, slot.Episode)
	if slot.Rating != "" {
		p.Rating = &Rating{System: "FSK", Value: slot.Rating}
	}
	return p
}

func creditsElement(credits []guide.Credit) *Credits {
	if len(credits) == 0 {
		return nil
	}
	var out Credits
	for _, c := range credits {
		name := CleanText(c.Name)
		if name == "" {
			continue
		}
		switch c.Role {
		case guide.RoleDirector:
			out.Directors = append(out.Directors, name)
		case guide.RoleActor:
			out.Actors = append(out.Actors, name)
		}
	}
	if len(out.Directors) == 0 && len(out.Actors) == 0 {
		return nil
	}
	return &out
}

// episodeNumber renders the xmltv_ns form: zero-based season and episode,
// either side empty when unknown ("2.." is season 3 with unknown episode).
func episodeNumber(season, episode int) *EpisodeNum {
	if season <= 0 && episode <= 0 {
		return nil
	}
	var s, e string
	if season > 0 {
		s = strconv.Itoa(season - 1)
	}
	if episode > 0 {
		e = strconv.Itoa(episode - 1)
	}
	return &EpisodeNum{System: "xmltv_ns", Value: s + "." + e + "."}
}
