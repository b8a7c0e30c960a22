package aura

import (
	"fmt"
	"math/rand"
)

var adjectives = []string{
	"Zen", "Calm", "Peaceful", "Serene", "Mindful", "Bright", "Gentle", "Kind",
	"Wise", "Cool", "Chill", "Vibing", "Happy", "Cozy", "Warm", "Fresh",
	"Magic", "Dreamy", "Cosmic", "Stellar", "Luna", "Solar", "Ocean", "Forest",
}

var nouns = []string{
	"Student", "Leaf", "Wave", "Star", "Moon", "Sun", "Cloud", "Breeze",
	"Sage", "Spirit", "Soul", "Heart", "Mind", "Dream", "Vibe", "Energy",
	"Phoenix", "Dragon", "Tiger", "Wolf", "Fox", "Butterfly", "Eagle", "Lion",
}

// AnonymousName generates a throwaway display alias like "ZenPhoenix42".
// It is pure per call: the alias is not a persisted identity, just whatever
// name the message is broadcast and stored under.
func AnonymousName() string {
	adjective := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	return fmt.Sprintf("%s%s%d", adjective, noun, rand.Intn(999)+1)
}
