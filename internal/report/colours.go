// SPDX-License-Identifier: MIT

package report

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/tallsorts/tallsorts/internal/model"
)

// DefaultColours are the colours of the subtypes of the bundled T-ALL model.
var DefaultColours = map[string]string{
	"BCL11B":      "#222222",
	"HOXA_KMT2A":  "#F9DA49",
	"HOXA_MLLT10": "#91D44B",
	"NKX2":        "#8E3CCE",
	"TAL/LMO":     "#DF3524",
	"TLX1":        "#367BD8",
	"TLX3":        "#57BFE0",
	"Diverse":     "#ED75B2",
	"TAL2":        "#E88E8E",

	model.Unclassified: "#808080",
}

// Colours assigns a hex colour to each label. Labels without a default
// colour are spread evenly around the HSV hue circle in the order given.
func Colours(labels []string) map[string]string {
	out := make(map[string]string, len(labels))
	var rest []string
	for _, l := range labels {
		if c, ok := DefaultColours[l]; ok {
			out[l] = c
		} else {
			rest = append(rest, l)
		}
	}
	for i, l := range rest {
		out[l] = hueHex(360 * float64(i) / float64(len(rest)))
	}
	return out
}

// hueHex renders a fully saturated colour, truncating channels to 8 bits.
func hueHex(h float64) string {
	c := colorful.Hsv(h, 1, 1)
	return fmt.Sprintf("#%02X%02X%02X", channel(c.R), channel(c.G), channel(c.B))
}

func channel(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v * 255)
}
