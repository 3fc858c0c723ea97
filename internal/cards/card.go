/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package cards holds the SET card model, the set-matching rules, and the
// deck builder. Nothing in here knows about rooms or connections.
package cards

import (
	"encoding/json"
	"fmt"
)

type Shape uint8

const (
	Diamond Shape = iota
	Oval
	Squiggle
)

type Color uint8

const (
	Red Color = iota
	Green
	Purple
)

type Shading uint8

const (
	Solid Shading = iota
	Striped
	Open
)

// Number is the count of symbols printed on a card (1-3).
type Number uint8

var (
	shapeNames   = [...]string{"diamond", "oval", "squiggle"}
	colorNames   = [...]string{"red", "green", "purple"}
	shadingNames = [...]string{"solid", "striped", "open"}
)

func (s Shape) String() string   { return enumName(shapeNames[:], int(s)) }
func (c Color) String() string   { return enumName(colorNames[:], int(c)) }
func (s Shading) String() string { return enumName(shadingNames[:], int(s)) }

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("invalid(%d)", i)
	}
	return names[i]
}

func enumValue(names []string, kind, s string) (uint8, error) {
	for i, n := range names {
		if n == s {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}

func (s Shape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
func (s Shading) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Shape) UnmarshalText(b []byte) error {
	v, err := enumValue(shapeNames[:], "shape", string(b))
	*s = Shape(v)
	return err
}

func (c *Color) UnmarshalText(b []byte) error {
	v, err := enumValue(colorNames[:], "color", string(b))
	*c = Color(v)
	return err
}

func (s *Shading) UnmarshalText(b []byte) error {
	v, err := enumValue(shadingNames[:], "shading", string(b))
	*s = Shading(v)
	return err
}

func (n *Number) UnmarshalJSON(b []byte) error {
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v < 1 || v > 3 {
		return fmt.Errorf("number out of range: %d", v)
	}
	*n = Number(v)
	return nil
}

// Card is one face of the deck. Cards are plain comparable values.
type Card struct {
	Shape   Shape   `json:"shape"`
	Color   Color   `json:"color"`
	Number  Number  `json:"number"`
	Shading Shading `json:"shading"`
}

func (c Card) String() string {
	return fmt.Sprintf("%d %s %s %s", c.Number, c.Shading, c.Color, c.Shape)
}

// attributes returns the card's values in a fixed attribute order, so the
// set rules can treat every attribute the same way.
func (c Card) attributes() [4]uint8 {
	return [4]uint8{uint8(c.Shape), uint8(c.Color), uint8(c.Number), uint8(c.Shading)}
}
