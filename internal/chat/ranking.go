package chat

import (
	"sort"

	"github.com/jason25840/nrg-server/internal/store"
)

// TopMediaLimit caps the number of messages returned by TopMedia.
const TopMediaLimit = 4

var reactionWeights = map[string]int{
	"❤️": 2,
	"👍":  1,
	"😂":  1,
	"🔥":  1,
	"👎":  -1,
}

// Score weighs a message's reactions. Unlisted emoji do not count.
func Score(r store.Reactions) int {
	score := 0
	for _, emoji := range r.Emojis() {
		score += reactionWeights[emoji] * r.Count(emoji)
	}
	return score
}

// RankMedia orders messages by descending score and keeps at most limit.
// Equal scores keep their input order, so callers passing oldest-first
// history favour the earlier message.
func RankMedia(messages []store.Message, limit int) []store.Message {
	ranked := append([]store.Message(nil), messages...)
	scores := make(map[string]int, len(ranked))
	for _, m := range ranked {
		scores[m.ID] = Score(m.Reactions)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].ID] > scores[ranked[j].ID]
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
