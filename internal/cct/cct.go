// Package cct converts correlated colour temperatures to RGB light colours
// for the downstream renderer.
package cct

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Supported temperature range in kelvin; values outside are clamped.
const (
	MinKelvin = 1000.0
	MaxKelvin = 25000.0
)

// Default is the colour temperature used when none is configured.
const Default = "4000K"

// Parse reads a temperature such as "4000K", "4000 k" or "4000".
func Parse(temp string) (float64, error) {
	s := strings.TrimSpace(strings.ToUpper(temp))
	s = strings.TrimSpace(strings.TrimSuffix(s, "K"))
	k, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid colour temperature %q: %w", temp, err)
	}
	return k, nil
}

// ToRGB parses temp and returns its light colour.
func ToRGB(temp string) (colorful.Color, error) {
	k, err := Parse(temp)
	if err != nil {
		return colorful.Color{}, err
	}
	return Kelvin(k), nil
}

// Kelvin approximates the blackbody colour at k kelvin. Each channel is
// quantised to 1/255 and clamped to [0, 1].
func Kelvin(k float64) colorful.Color {
	k = math.Min(math.Max(k, MinKelvin), MaxKelvin) / 100

	var r, g, b float64
	if k <= 66 {
		r = 1
		g = quantize(99.470825861*math.Log(k) - 161.1195681661)
	} else {
		r = quantize(329.698727446 * math.Pow(k-60, -0.1332047592))
		g = quantize(288.1221695283 * math.Pow(k-60, -0.0755148492))
	}

	switch {
	case k >= 66:
		b = 1
	case k <= 19:
		b = 0
	default:
		b = quantize(138.5177312231*math.Log(k-10) - 305.0447927307)
	}

	return colorful.Color{R: clamp(r), G: clamp(g), B: clamp(b)}
}

// Radiance formats c as the "r g b" triple used in light definitions.
func Radiance(c colorful.Color) string {
	return fmt.Sprintf("%.3f %.3f %.3f", c.R, c.G, c.B)
}

func quantize(v float64) float64 {
	return math.RoundToEven(v) / 255
}

func clamp(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
