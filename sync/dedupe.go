// ABOUTME: Engagement event deduplication by logical touch signature
// ABOUTME: Keeps the newest record of each touch in first-seen order
package sync

import "github.com/jpchacon09/APOLLO/models"

// Dedupe collapses events that describe the same touch. For each signature the
// event with the latest CreatedAt wins; on ties the first seen is kept. Output
// order follows the first appearance of each signature.
func Dedupe(events []models.EngagementEvent) []models.EngagementEvent {
	if len(events) == 0 {
		return nil
	}

	index := make(map[models.Signature]int, len(events))
	out := make([]models.EngagementEvent, 0, len(events))

	for _, e := range events {
		sig := e.Signature()
		pos, seen := index[sig]
		if !seen {
			index[sig] = len(out)
			out = append(out, e)
			continue
		}
		if e.CreatedAt.After(out[pos].CreatedAt) {
			out[pos] = e
		}
	}
	return out
}
