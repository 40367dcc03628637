// internal/rank/tier.go
package rank

// Tier is a display band derived from a player's points.
type Tier struct {
	Name  string
	Emoji string
	Color string
	Min   int
	Max   int // exclusive upper bound; the top tier is open-ended
	// Progress is the 0-100 position inside the band.
	Progress int
}

var bands = []struct {
	min   int
	name  string
	emoji string
	color string
}{
	{0, "Rookie", "🎮", "#bbb"},
	{50, "Bronze", "🥉", "#c08752"},
	{150, "Silver", "🥈", "#c9ced6"},
	{300, "Gold", "🥇", "#f7c948"},
	{500, "Platinum", "🔷", "#6fd3ff"},
	{800, "Diamond", "💎", "#9df3ff"},
	{1200, "Mythic", "🔥", "#ff3b3b"},
}

// TierFor maps points onto its tier band. Negative points clamp to zero.
func TierFor(points int) Tier {
	if points < 0 {
		points = 0
	}
	idx := 0
	for i, b := range bands {
		if points >= b.min {
			idx = i
		}
	}
	b := bands[idx]
	max := points + 100 // open-ended top tier
	if idx+1 < len(bands) {
		max = bands[idx+1].min
	}
	span := max - b.min
	if span < 1 {
		span = 1
	}
	progress := (points - b.min) * 100 / span
	if progress > 100 {
		progress = 100
	}
	return Tier{
		Name:     b.name,
		Emoji:    b.emoji,
		Color:    b.color,
		Min:      b.min,
		Max:      max,
		Progress: progress,
	}
}
