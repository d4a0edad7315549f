package security

import (
	"strings"
	"time"
)

// Suspicion score weights and thresholds.
const (
	scorePerPatternMatch = 10
	scoreRepetition      = 5
	scoreBurst           = 15

	// repetitionMinWords is the word count a message must exceed before repetition counts.
	repetitionMinWords = 10
	// repetitionShare is the share of the message one word must exceed.
	repetitionShare = 0.3

	// suspiciousThreshold marks the origin suspicious when exceeded.
	suspiciousThreshold = 5
	// blockThreshold blocks the origin when exceeded.
	blockThreshold = 20
)

// ScoreSuspicion scores text and the user's recent activity. A score above 5
// is added to the origin's record; above 20 the origin is blocked and true is
// returned.
func (g *RateGate) ScoreSuspicion(text string, userID int32, origin string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scoreLocked(text, userID, origin, g.now())
}

func (g *RateGate) scoreLocked(text string, userID int32, origin string, now time.Time) bool {
	score := scorePerPatternMatch * countDenylistMatches(text)

	if isRepetitive(text) {
		score += scoreRepetition
	}

	if g.burstCountLocked(userID, now) > g.config.BurstLimit {
		score += scoreBurst
	}

	if score > suspiciousThreshold && origin != "" {
		rec, ok := g.suspicion[origin]
		if !ok {
			rec = &suspicionRecord{}
			g.suspicion[origin] = rec
		}
		rec.score += score
		rec.lastSeen = now
		if score > blockThreshold {
			rec.blocked = true
		}
	}

	return score > blockThreshold
}

// burstCountLocked counts the user's admitted requests in the trailing burst window.
func (g *RateGate) burstCountLocked(userID int32, now time.Time) int {
	cutoff := now.Add(-g.config.BurstWindow)
	count := 0
	for _, stamp := range g.windows[userKey(userID)] {
		if stamp.After(cutoff) {
			count++
		}
	}
	return count
}

func isRepetitive(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) <= repetitionMinWords {
		return false
	}
	freq := make(map[string]int, len(words))
	maxFreq := 0
	for _, w := range words {
		freq[w]++
		if freq[w] > maxFreq {
			maxFreq = freq[w]
		}
	}
	return float64(maxFreq) > float64(len(words))*repetitionShare
}
