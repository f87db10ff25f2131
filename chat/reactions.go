package chat

// A ReactionSummary groups all reactions with the same emoji on one
// message. IsMe is true when the viewer authored one of them.
type ReactionSummary struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	IsMe  bool   `json:"is_me"`
}

// SummarizeReactions folds raw reaction rows into per-emoji summaries
// for a given viewer. Groups appear in first-seen order so a message's
// summary is stable across renders.
func SummarizeReactions(reactions []Reaction, viewerID int64) []ReactionSummary {
	summaries := make([]ReactionSummary, 0, len(reactions))
	index := make(map[string]int, len(reactions))
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			index[r.Emoji] = len(summaries)
			summaries = append(summaries, ReactionSummary{Emoji: r.Emoji})
			i = len(summaries) - 1
		}
		summaries[i].Count++
		if r.UserID == viewerID {
			summaries[i].IsMe = true
		}
	}
	return summaries
}
