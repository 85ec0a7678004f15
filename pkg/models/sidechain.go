package models

import (
	"sort"
	"time"
)

// Sidechain summarizes one branched message sequence within a session: the
// messages sharing a branch_id, rooted at the main-lineage message their
// branch_parent_uuid points to.
type Sidechain struct {
	// BranchID is the branch these messages share.
	BranchID string `json:"branch_id"`

	// RootParentUUID is the main-lineage message the sidechain forked from.
	RootParentUUID string `json:"root_parent_uuid,omitempty"`

	// MessageCount is the number of messages on the sidechain.
	MessageCount int `json:"message_count"`

	// FirstTimestamp and LastTimestamp bound the sidechain's activity.
	FirstTimestamp time.Time `json:"first_timestamp"`
	LastTimestamp  time.Time `json:"last_timestamp"`
}

// SidechainSummaries derives the per-branch summaries from a session's
// message log, ordered by each sidechain's first appearance.
func SidechainSummaries(messages []*Message) []Sidechain {
	byBranch := make(map[string]*Sidechain)
	order := make([]string, 0)

	for _, msg := range messages {
		if msg == nil || !msg.IsSidechain || msg.BranchID == "" {
			continue
		}
		sc, ok := byBranch[msg.BranchID]
		if !ok {
			sc = &Sidechain{
				BranchID:       msg.BranchID,
				RootParentUUID: msg.BranchParentUUID,
				FirstTimestamp: msg.Timestamp,
				LastTimestamp:  msg.Timestamp,
			}
			byBranch[msg.BranchID] = sc
			order = append(order, msg.BranchID)
		}
		sc.MessageCount++
		if msg.Timestamp.Before(sc.FirstTimestamp) {
			sc.FirstTimestamp = msg.Timestamp
		}
		if msg.Timestamp.After(sc.LastTimestamp) {
			sc.LastTimestamp = msg.Timestamp
		}
	}

	out := make([]Sidechain, 0, len(byBranch))
	for _, id := range order {
		out = append(out, *byBranch[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FirstTimestamp.Before(out[j].FirstTimestamp)
	})
	return out
}
