// Package sculpt turns solved scale factors into sculpted photometric files:
// one combined profile per luminaire plus its edge-light and spot subsets.
package sculpt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/ies-sculpt/backend/internal/logging"
	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/parser"
)

// LGPElementCount is the number of edge-light (light guide plate) elements
// at the start of every luminaire; the rest are spots. It is fixed by the
// physical fixture.
const LGPElementCount = 4

// Bucket names one of the three outputs written per luminaire.
type Bucket string

const (
	BucketAll  Bucket = "LUM"
	BucketLGP  Bucket = "LGP"
	BucketSpot Bucket = "Spot"
)

var (
	ErrNoBaseProfiles = errors.New("no base profiles")
	ErrNoScaleFactors = errors.New("no scale factors")
)

// OutputName returns the file name for a bucket of the luminaire with the
// given 1-based ordinal.
func OutputName(scene string, bucket Bucket, ordinal int) string {
	return fmt.Sprintf("%s_%s_%d.ies", scene, bucket, ordinal)
}

// bucketLabel is the MANUFAC value stamped on a bucket's combined profile.
func bucketLabel(scene string, bucket Bucket) string {
	switch bucket {
	case BucketLGP:
		return scene + "LGP Only"
	case BucketSpot:
		return scene + "Spot Only"
	default:
		return scene
	}
}

// Sink receives every output file as one whole buffer.
type Sink interface {
	WriteFile(name string, data []byte) error
}

// DirSink writes outputs into a directory.
type DirSink struct {
	Dir string
}

func (d DirSink) WriteFile(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(d.Dir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// LuminaireCallback is called after each luminaire is flushed.
type LuminaireCallback func(report models.LuminaireReport, done, total int)

// Synthesizer applies scale factors to base element profiles.
type Synthesizer struct {
	Sink Sink
	// Now stamps ISSUEDATE on combined profiles. Defaults to time.Now.
	Now         func() time.Time
	OnLuminaire LuminaireCallback
}

// luminaireGroup accumulates one luminaire's scaled elements.
type luminaireGroup struct {
	ordinal   int
	all       []*models.PhotometricProfile
	lgp       []*models.PhotometricProfile
	spot      []*models.PhotometricProfile
	lgpScales []float64
	spotScale []float64
	started   time.Time
}

// Run walks scales in [luminaire][element] order. Scale i applies to base
// profile i mod E of luminaire i / E, where E is len(base). Each luminaire
// is flushed to the sink when the element index wraps, and the last one
// after the scan. A trailing partial luminaire is flushed with what it has.
func (s *Synthesizer) Run(ctx context.Context, scales []float64, base []*models.PhotometricProfile, scene string) ([]models.LuminaireReport, error) {
	if len(base) == 0 {
		return nil, ErrNoBaseProfiles
	}
	if len(scales) == 0 {
		return nil, ErrNoScaleFactors
	}
	if s.Sink == nil {
		return nil, errors.New("synthesizer has no sink")
	}

	log := logging.Component("sculpt")
	e := len(base)
	total := (len(scales) + e - 1) / e
	if len(scales)%e != 0 {
		log.Warn().
			Int("scales", len(scales)).
			Int("elements", e).
			Msg("Scale factor count is not a multiple of the element count")
	}

	reports := make([]models.LuminaireReport, 0, total)
	group := newGroup(1)

	for i, factor := range scales {
		lum := i / e
		elem := i % e

		if elem == 0 && lum != 0 {
			report, err := s.flush(scene, group)
			if err != nil {
				return reports, err
			}
			reports = append(reports, report)
			s.progress(log, report, len(reports), total)

			if err := ctx.Err(); err != nil {
				return reports, err
			}
			group = newGroup(lum + 1)
		}

		scaled := base[elem].Copy()
		scaled.Scale(factor)
		group.all = append(group.all, scaled)
		if elem < LGPElementCount {
			group.lgp = append(group.lgp, scaled.Copy())
			group.lgpScales = append(group.lgpScales, factor)
		} else {
			group.spot = append(group.spot, scaled.Copy())
			group.spotScale = append(group.spotScale, factor)
		}
	}

	report, err := s.flush(scene, group)
	if err != nil {
		return reports, err
	}
	reports = append(reports, report)
	s.progress(log, report, len(reports), total)

	return reports, nil
}

func newGroup(ordinal int) *luminaireGroup {
	return &luminaireGroup{ordinal: ordinal, started: time.Now()}
}

func (s *Synthesizer) progress(log zerolog.Logger, report models.LuminaireReport, done, total int) {
	log.Info().
		Int("luminaire", report.Ordinal).
		Float64("lgpAverage", report.LGPAverage).
		Float64("spotAverage", report.SpotAverage).
		Float64("average", report.Average).
		Int64("elapsedMs", report.ElapsedMs).
		Msg("Luminaire sculpted")
	if s.OnLuminaire != nil {
		s.OnLuminaire(report, done, total)
	}
}

// flush combines and writes the group's three buckets. Empty buckets are
// not written and average to 0.
func (s *Synthesizer) flush(scene string, g *luminaireGroup) (models.LuminaireReport, error) {
	opts := parser.DefaultCombineOptions()
	if s.Now != nil {
		opts.Now = s.Now
	}

	report := models.LuminaireReport{
		Ordinal:      g.ordinal,
		Files:        make([]string, 0, 3),
		ElementCount: len(g.all),
	}

	buckets := []struct {
		bucket   Bucket
		profiles []*models.PhotometricProfile
	}{
		{BucketAll, g.all},
		{BucketLGP, g.lgp},
		{BucketSpot, g.spot},
	}
	for _, b := range buckets {
		if len(b.profiles) == 0 {
			continue
		}
		combined, _, err := parser.CombineProfilesWithOptions(b.profiles, bucketLabel(scene, b.bucket), opts)
		if err != nil {
			return report, fmt.Errorf("luminaire %d %s: %w", g.ordinal, b.bucket, err)
		}
		name := OutputName(scene, b.bucket, g.ordinal)
		if err := s.Sink.WriteFile(name, []byte(parser.SerializeIES(combined))); err != nil {
			return report, err
		}
		report.Files = append(report.Files, name)
	}

	report.LGPAverage = mean(g.lgpScales)
	report.SpotAverage = mean(g.spotScale)
	report.Average = WeightedAverage(report.LGPAverage, len(g.lgpScales), report.SpotAverage, len(g.spotScale))
	report.ElapsedMs = time.Since(g.started).Milliseconds()

	return report, nil
}

// WeightedAverage weights each category average by its share of the
// luminaire's elements: avgA·nA/n + avgB·nB/n.
func WeightedAverage(avgA float64, nA int, avgB float64, nB int) float64 {
	n := nA + nB
	if n == 0 {
		return 0
	}
	return avgA*float64(nA)/float64(n) + avgB*float64(nB)/float64(n)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Sum(xs) / float64(len(xs))
}
