package aura

import "github.com/huenest/relay/internal/models"

// Point values applied by the relay.
const (
	MessagePoints            = 5 // awarded to the author per posted message
	MemberReactionWeight     = 1
	PrivilegedReactionWeight = 5 // moderator, admin, super_admin
)

// ReactionDelta is the point effect a reaction of the given type, cast by a
// user with the given role, has on the message author's balance.
func ReactionDelta(role models.Role, t models.ReactionType) int {
	weight := MemberReactionWeight
	if role.Privileged() {
		weight = PrivilegedReactionWeight
	}
	if t == models.ReactionDownvote {
		return -weight
	}
	return weight
}

// LevelForPoints maps cumulative points to a discrete aura level. Thresholds
// grow roughly geometrically; beyond 2000 points a level is earned per 1000.
func LevelForPoints(points int) int {
	switch {
	case points < 50:
		return 1
	case points < 200:
		return 2
	case points < 500:
		return 3
	case points < 1000:
		return 4
	case points < 2000:
		return 5
	default:
		return points/1000 + 5
	}
}

var levelNames = []string{
	"Seedling", "Sprout", "Bloom", "Garden", "Grove",
	"Forest", "Sanctuary", "Oracle", "Sage", "Master",
}

// LevelName returns the display name for an aura level.
func LevelName(level int) string {
	if level < 1 {
		return levelNames[0]
	}
	if level > len(levelNames) {
		return "Transcendent"
	}
	return levelNames[level-1]
}
