package parser

import (
	"errors"
	"time"

	"github.com/ies-sculpt/backend/internal/models"
)

// Keywords stamped on every combined profile.
const (
	KeywordTestLab   = "TESTLAB"
	KeywordIssueDate = "ISSUEDATE"
	KeywordManufac   = "MANUFAC"

	CombinedTestLab = "HKS Sculpt Output"
)

// ErrNoProfiles is returned when combining an empty profile list.
var ErrNoProfiles = errors.New("no profiles to combine")

// CombineOptions configures CombineProfilesWithOptions.
type CombineOptions struct {
	// Now supplies the issue date. Defaults to time.Now.
	Now func() time.Time
}

// DefaultCombineOptions returns the default combine configuration.
func DefaultCombineOptions() CombineOptions {
	return CombineOptions{Now: time.Now}
}

// SkippedProfile records a profile whose grid did not line up with the
// accumulation target.
type SkippedProfile struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// CombineReport lists what CombineProfilesWithOptions left out.
type CombineReport struct {
	Skipped      []SkippedProfile `json:"skipped,omitempty"`
	SkippedCells int              `json:"skippedCells"`
}

// CombineProfiles sums the candela grids of profiles into profiles[0] and
// returns it. See CombineProfilesWithOptions.
func CombineProfiles(profiles []*models.PhotometricProfile, label string) (*models.PhotometricProfile, error) {
	combined, _, err := CombineProfilesWithOptions(profiles, label, DefaultCombineOptions())
	return combined, err
}

// CombineProfilesWithOptions takes ownership of profiles: the first element
// is the accumulation target and is mutated, the rest are only read.
//
// The target receives its own keyword map before stamping TESTLAB, ISSUEDATE
// and MANUFAC, so base profiles sharing the map are left untouched. Each later
// profile is summed cell by cell when its horizontal angle count matches the
// target's; cells outside either grid are skipped. Lumen output and max
// candela are recomputed afterwards.
func CombineProfilesWithOptions(profiles []*models.PhotometricProfile, label string, opts CombineOptions) (*models.PhotometricProfile, *CombineReport, error) {
	if len(profiles) == 0 {
		return nil, nil, ErrNoProfiles
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	report := &CombineReport{}
	joined := profiles[0]

	joined.Keywords = joined.Keywords.Clone()
	joined.Keywords.Set(KeywordTestLab, CombinedTestLab)
	joined.Keywords.Set(KeywordIssueDate, opts.Now().Format("2006-01-02"))
	joined.Keywords.Set(KeywordManufac, label)

	for i := 1; i < len(profiles); i++ {
		other := profiles[i]
		if other.HorizontalAngleCount != joined.HorizontalAngleCount {
			report.Skipped = append(report.Skipped, SkippedProfile{
				Index:  i,
				Reason: "horizontal angle count mismatch",
			})
			continue
		}

		for j := range joined.Candela {
			for k := range joined.Candela[j] {
				if j >= len(other.Candela) || k >= len(other.Candela[j]) {
					report.SkippedCells++
					continue
				}
				joined.Candela[j][k] += other.Candela[j][k]
			}
		}
	}

	joined.CalculateLumenOutput()
	joined.RecomputeMaxCandela()

	return joined, report, nil
}
