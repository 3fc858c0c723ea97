package cards

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Variant lists the attribute values dealt into a deck. Attributes limited
// to a single value are constant across the deck and never break a set.
type Variant struct {
	Name     string
	Shapes   []Shape
	Colors   []Color
	Numbers  []Number
	Shadings []Shading
}

var (
	// Standard is the full 81 card deck.
	Standard = Variant{
		Name:     "standard",
		Shapes:   []Shape{Diamond, Oval, Squiggle},
		Colors:   []Color{Red, Green, Purple},
		Numbers:  []Number{1, 2, 3},
		Shadings: []Shading{Solid, Striped, Open},
	}

	// Beginner drops shading for a 27 card deck.
	Beginner = Variant{
		Name:     "beginner",
		Shapes:   []Shape{Diamond, Oval, Squiggle},
		Colors:   []Color{Red, Green, Purple},
		Numbers:  []Number{1, 2, 3},
		Shadings: []Shading{Solid},
	}
)

// ParseVariant resolves a variant by name. An empty name means Standard.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Standard.Name:
		return Standard, nil
	case Beginner.Name:
		return Beginner, nil
	default:
		return Variant{}, fmt.Errorf("unknown deck variant %q", name)
	}
}

// Size is the number of cards BuildDeck produces for v.
func (v Variant) Size() int {
	return len(v.Shapes) * len(v.Colors) * len(v.Numbers) * len(v.Shadings)
}

// NewRand returns a deterministic source for BuildDeck.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// BuildDeck returns every card of the variant in shuffled order. A nil rng
// uses the runtime's random source.
func BuildDeck(v Variant, rng *rand.Rand) []Card {
	deck := make([]Card, 0, v.Size())

	for _, shape := range v.Shapes {
		for _, color := range v.Colors {
			for _, number := range v.Numbers {
				for _, shading := range v.Shadings {
					deck = append(deck, Card{
						Shape:   shape,
						Color:   color,
						Number:  number,
						Shading: shading,
					})
				}
			}
		}
	}

	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	return deck
}
