package utils

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Word lists for generating display names
var adjectives = []string{
	"Swift", "Brave", "Clever", "Noble", "Mighty", "Silent", "Golden", "Silver",
	"Crimson", "Azure", "Cosmic", "Mystic", "Fierce", "Gentle", "Wild", "Calm",
	"Bold", "Wise", "Quick", "Keen", "Storm", "Frost", "Iron", "Lunar",
}

var nouns = []string{
	"Rock", "Paper", "Scissors", "Boulder", "Scroll", "Shears", "Pebble", "Parchment",
	"Blade", "Stone", "Quill", "Fist", "Palm", "Claw", "Hammer", "Origami",
}

// DisplayName returns name when it is set and otherwise derives a stable
// "AdjectiveNoun123" name from the player id, so anonymous players stay
// recognisable in queue listings without exposing their id.
func DisplayName(name, playerID string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}

	h := fnv.New32a()
	h.Write([]byte(playerID))
	sum := h.Sum32()

	adjective := adjectives[sum%uint32(len(adjectives))]
	noun := nouns[(sum/uint32(len(adjectives)))%uint32(len(nouns))]
	number := (sum / uint32(len(adjectives)*len(nouns))) % 1000
	return fmt.Sprintf("%s%s%d", adjective, noun, number)
}
