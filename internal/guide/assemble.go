// SPDX-License-Identifier: MIT
package guide

import (
	"sort"
	"time"

	"github.com/domevanzy/Zattoo-EPG/internal/log"
	"github.com/domevanzy/Zattoo-EPG/internal/metrics"
)

// Assemble builds the document from the fetched lineup and slots. Slots
// whose channel is not in the lineup are dropped, as is the later-starting
// slot of every residual overlap (equal starts keep the first one appended,
// which also swallows the duplicates that window boundaries produce). The
// result depends only on the inputs.
func Assemble(channels []Channel, slots []ProgramSlot) Document {
	known := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		known[ch.ID] = struct{}{}
	}

	byChannel := make(map[string][]ProgramSlot, len(channels))
	orphans := 0
	for _, slot := range slots {
		if _, ok := known[slot.ChannelID]; !ok {
			orphans++
			continue
		}
		byChannel[slot.ChannelID] = append(byChannel[slot.ChannelID], slot)
	}

	overlaps := 0
	for cid, list := range byChannel {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Start.Before(list[j].Start)
		})
		kept := list[:0]
		var lastStop time.Time
		for _, slot := range list {
			if !lastStop.IsZero() && slot.Start.Before(lastStop) {
				overlaps++
				continue
			}
			kept = append(kept, slot)
			lastStop = slot.Stop
		}
		byChannel[cid] = kept
	}

	logger := log.WithComponent("guide")
	if orphans > 0 {
		logger.Warn().
			Str("event", "assemble.orphans_dropped").
			Int("count", orphans).
			Msg("dropped slots referencing unknown channels")
		metrics.AddDroppedSlots("orphan", orphans)
	}
	if overlaps > 0 {
		logger.Warn().
			Str("event", "assemble.overlaps_dropped").
			Int("count", overlaps).
			Msg("dropped overlapping slots")
		metrics.AddDroppedSlots("overlap", overlaps)
	}

	return Document{Channels: channels, Programs: byChannel}
}
