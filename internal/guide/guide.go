// SPDX-License-Identifier: MIT

// Package guide holds the in-memory guide model for one run: the channel
// lineup and the programme slots accumulated by the fetch stages, assembled
// into a document the XMLTV writer renders.
package guide

import "time"

// Credit roles as they appear in the rendered guide.
const (
	RoleDirector = "director"
	RoleActor    = "actor"
)

// Channel is one lineup entry. Number is the 1-based catalog position; the
// lineup is fixed for the run once fetched.
type Channel struct {
	ID      string
	Name    string
	LogoURL string
	Number  int
}

// Credit is one cast or crew entry.
type Credit struct {
	Role string
	Name string
}

// ProgramSlot is one broadcast. The schedule stage fills the identity
// fields; the enricher adds the rest in place. A slot that never got
// enriched is valid as is.
type ProgramSlot struct {
	ChannelID   string
	ProgramID   int64
	Start       time.Time // UTC
	Stop        time.Time // UTC, after Start
	Title       string
	Description string

	// Enrichment-only fields.
	Subtitle   string
	Year       int
	Country    string
	Categories []string
	Credits    []Credit
	Season     int // 1-based, 0 = unknown
	Episode    int // 1-based, 0 = unknown
	Rating     string
	ImageURLs  []string
}

// Document is the assembled guide: channels in catalog order, slots
// partitioned by channel, sorted by start and free of overlaps.
type Document struct {
	Channels []Channel
	Programs map[string][]ProgramSlot
}

// ProgramCount returns the total number of slots across all channels.
func (d Document) ProgramCount() int {
	n := 0
	for _, slots := range d.Programs {
		n += len(slots)
	}
	return n
}
