// Package models contains domain types for the IES sculpting backend.
package models

import "math"

// Units of the luminous opening dimensions.
const (
	UnitsFeet   = 1
	UnitsMeters = 2
)

// Photometric types defined by LM-63.
const (
	PhotometricTypeC = 1
	PhotometricTypeB = 2
	PhotometricTypeA = 3
)

// PhotometricProfile is one IESNA LM-63 luminaire description.
//
// Angles are stored in radians. Candela holds one row per horizontal angle,
// each row carrying one value per vertical angle.
type PhotometricProfile struct {
	FileSpec string
	Keywords *Keywords
	Tilt     string

	LampCount            int
	LumensPerLamp        float64
	Multiplier           float64
	VerticalAngleCount   int
	HorizontalAngleCount int
	PhotometricType      int
	Units                int
	Width                float64
	Length               float64
	Height               float64
	BallastFactor        float64
	FutureUse            int
	InputWatts           float64

	VerticalAngles   []float64
	HorizontalAngles []float64
	Candela          [][]float64

	MaxCandela float64
}

// NewPhotometricProfile returns an empty profile with unset scalars.
func NewPhotometricProfile() *PhotometricProfile {
	return &PhotometricProfile{
		FileSpec:             "Undefined",
		Keywords:             NewKeywords(),
		LampCount:            -1,
		LumensPerLamp:        math.NaN(),
		Multiplier:           math.NaN(),
		VerticalAngleCount:   -1,
		HorizontalAngleCount: -1,
		FutureUse:            -1,
		Width:                math.NaN(),
		Length:               math.NaN(),
		Height:               math.NaN(),
		BallastFactor:        math.NaN(),
		InputWatts:           math.NaN(),
		VerticalAngles:       make([]float64, 0),
		HorizontalAngles:     make([]float64, 0),
		Candela:              make([][]float64, 0),
	}
}

// Copy duplicates the profile. Angle slices and the candela grid are deep
// copied; the keyword map is shared with the original. Callers that intend
// to edit the copy's keywords must assign Keywords.Clone() first.
func (p *PhotometricProfile) Copy() *PhotometricProfile {
	dup := *p

	dup.VerticalAngles = append([]float64(nil), p.VerticalAngles...)
	dup.HorizontalAngles = append([]float64(nil), p.HorizontalAngles...)

	dup.Candela = make([][]float64, len(p.Candela))
	for i, row := range p.Candela {
		dup.Candela[i] = append([]float64(nil), row...)
	}

	return &dup
}

// Scale multiplies every candela value by factor in place.
func (p *PhotometricProfile) Scale(factor float64) {
	for i := range p.Candela {
		for j := range p.Candela[i] {
			p.Candela[i][j] *= factor
		}
	}
}

// CalculateLumenOutput estimates total lumens from the candela grid and
// stores it as LumensPerLamp. The angular step is the mean of the first
// horizontal and vertical angle deltas. Returns 0 without touching the
// profile when either axis has fewer than two angles.
func (p *PhotometricProfile) CalculateLumenOutput() float64 {
	if p.HorizontalAngleCount < 2 || p.VerticalAngleCount < 2 ||
		len(p.HorizontalAngles) < 2 || len(p.VerticalAngles) < 2 {
		return 0
	}

	hStep := p.HorizontalAngles[1] - p.HorizontalAngles[0]
	vStep := p.VerticalAngles[1] - p.VerticalAngles[0]
	step := (hStep + vStep) / 2.0
	solid := 2 * math.Pi * (1 - math.Cos(step*0.5))

	total := 0.0
	for _, row := range p.Candela {
		for _, c := range row {
			total += c * solid
		}
	}

	p.LumensPerLamp = total
	return total
}

// RecomputeMaxCandela rescans the grid for its largest value.
func (p *PhotometricProfile) RecomputeMaxCandela() float64 {
	maxVal := 0.0
	for _, row := range p.Candela {
		for _, c := range row {
			if c > maxVal {
				maxVal = c
			}
		}
	}
	p.MaxCandela = maxVal
	return maxVal
}
