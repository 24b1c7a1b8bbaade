package sculpt

import (
	"fmt"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ies-sculpt/backend/internal/cct"
	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/solver"
)

// SummaryFileName is written next to the sculpted profiles.
const SummaryFileName = "summary.yaml"

// LightColor is one configured light colour.
type LightColor struct {
	Temperature string  `json:"temperature" yaml:"temperature"`
	Hex         string  `json:"hex" yaml:"hex"`
	R           float64 `json:"r" yaml:"r"`
	G           float64 `json:"g" yaml:"g"`
	B           float64 `json:"b" yaml:"b"`
	Radiance    string  `json:"radiance" yaml:"radiance"`
}

// Summary records the outcome of one sculpt run.
type Summary struct {
	Scene        string                   `json:"scene" yaml:"scene"`
	Cost         float64                  `json:"cost" yaml:"cost"`
	Converged    bool                     `json:"converged" yaml:"converged"`
	Status       string                   `json:"status" yaml:"status"`
	Iterations   int                      `json:"iterations" yaml:"iterations"`
	Elements     []string                 `json:"elements,omitempty" yaml:"elements,omitempty"`
	ScaleFactors []float64                `json:"scaleFactors" yaml:"scale_factors,flow"`
	LGPColor     LightColor               `json:"lgpColor" yaml:"lgp_color"`
	SpotColor    LightColor               `json:"spotColor" yaml:"spot_color"`
	Luminaires   []models.LuminaireReport `json:"luminaires" yaml:"luminaires"`
	ElapsedMs    int64                    `json:"elapsedMs" yaml:"elapsed_ms"`
}

// NewSummary assembles a summary from a solve result and luminaire reports.
func NewSummary(scene string, res *solver.Result, reports []models.LuminaireReport, lighting Lighting) (*Summary, error) {
	lgp, err := lightColor(lighting.LGPTemperature)
	if err != nil {
		return nil, err
	}
	spot, err := lightColor(lighting.SpotTemperature)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Scene:        scene,
		Cost:         res.Cost,
		Converged:    res.Converged,
		Status:       res.Status.String(),
		Iterations:   res.Iterations,
		ScaleFactors: res.X,
		LGPColor:     lgp,
		SpotColor:    spot,
		Luminaires:   reports,
	}, nil
}

// OutputFiles lists every profile written during the run.
func (s *Summary) OutputFiles() []string {
	files := make([]string, 0, len(s.Luminaires)*3)
	for _, l := range s.Luminaires {
		files = append(files, l.Files...)
	}
	return files
}

// JSON renders the summary as indented JSON.
func (s *Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// WriteSummary writes summary.yaml to sink.
func WriteSummary(sink Sink, s *Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return sink.WriteFile(SummaryFileName, data)
}

// ReadSummary decodes a summary.yaml document.
func ReadSummary(data []byte) (*Summary, error) {
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid summary: %w", err)
	}
	return &s, nil
}

func lightColor(temperature string) (LightColor, error) {
	if temperature == "" {
		temperature = cct.Default
	}
	c, err := cct.ToRGB(temperature)
	if err != nil {
		return LightColor{}, err
	}
	return LightColor{
		Temperature: temperature,
		Hex:         c.Hex(),
		R:           c.R,
		G:           c.G,
		B:           c.B,
		Radiance:    cct.Radiance(c),
	}, nil
}
