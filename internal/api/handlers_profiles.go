// handlers_profiles.go - Photometric profile handlers
package api

import (
	"bytes"
	"math"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/floats"

	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/parser"
	"github.com/ies-sculpt/backend/internal/storage"
)

// MIMEMsgpack is the content type for MessagePack responses.
const MIMEMsgpack = "application/msgpack"

// ProfileHandlerImpl implements the ProfileHandler interface
type ProfileHandlerImpl struct {
	store storage.Store
}

// NewProfileHandler creates a new profile handler instance
func NewProfileHandler(store storage.Store) ProfileHandler {
	return &ProfileHandlerImpl{store: store}
}

// HandleInspectProfile returns a parsed profile as JSON, or MessagePack when
// the client accepts it.
func (h *ProfileHandlerImpl) HandleInspectProfile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	p, parseErrors, err := h.load(id)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, newProfileResponse(id, p, parseErrors))
}

// HandleScaleProfile stores a copy of a profile with every candela value
// multiplied by factor.
func (h *ProfileHandlerImpl) HandleScaleProfile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req scaleProfileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Factor == nil || math.IsNaN(*req.Factor) || math.IsInf(*req.Factor, 0) {
		return NewValidationError("factor")
	}

	p, _, err := h.load(id)
	if err != nil {
		return err
	}
	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	scaled := p.Copy()
	scaled.Scale(*req.Factor)
	scaled.RecomputeMaxCandela()

	name := req.Name
	if name == "" {
		name = "scaled_" + info.Name
	}
	out, err := h.store.SaveBytes(name, models.FileKindProfile, []byte(parser.SerializeIES(scaled)))
	if err != nil {
		return NewInternalError("failed to save scaled profile", err)
	}

	return c.JSON(http.StatusCreated, out)
}

// HandleCombineProfiles sums stored profiles into a new stored profile.
func (h *ProfileHandlerImpl) HandleCombineProfiles(c echo.Context) error {
	var req combineProfilesRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if len(req.FileIDs) == 0 {
		return NewValidationError("fileIds")
	}
	if req.Label == "" {
		return NewValidationError("label")
	}

	profiles := make([]*models.PhotometricProfile, 0, len(req.FileIDs))
	for _, id := range req.FileIDs {
		p, _, err := h.load(id)
		if err != nil {
			return err
		}
		profiles = append(profiles, p)
	}

	combined, report, err := parser.CombineProfilesWithOptions(profiles, req.Label, parser.DefaultCombineOptions())
	if err != nil {
		return FromError("failed to combine profiles", err)
	}

	name := req.Name
	if name == "" {
		name = req.Label + ".ies"
	}
	out, err := h.store.SaveBytes(name, models.FileKindProfile, []byte(parser.SerializeIES(combined)))
	if err != nil {
		return NewInternalError("failed to save combined profile", err)
	}

	return c.JSON(http.StatusCreated, combineProfilesResponse{File: out, Report: report})
}

func (h *ProfileHandlerImpl) load(id string) (*models.PhotometricProfile, []*models.ParseError, error) {
	data, err := h.store.ReadFile(id)
	if err != nil {
		return nil, nil, NewNotFoundError("file", id)
	}
	p, parseErrors, err := parser.ParseIESString(string(data))
	if err != nil {
		return nil, nil, FromError("not a photometric profile", err)
	}
	return p, parseErrors, nil
}

// Request/Response types

type scaleProfileRequest struct {
	Factor *float64 `json:"factor"`
	Name   string   `json:"name,omitempty"`
}

type combineProfilesRequest struct {
	FileIDs []string `json:"fileIds"`
	Label   string   `json:"label"`
	Name    string   `json:"name,omitempty"`
}

type combineProfilesResponse struct {
	File   *models.FileInfo      `json:"file"`
	Report *parser.CombineReport `json:"report"`
}

// profileResponse is the wire form of a profile. Angles are in degrees and
// unset scalars are omitted.
type profileResponse struct {
	FileID               string               `json:"fileId" msgpack:"fileId"`
	Keywords             []models.KeywordPair `json:"keywords" msgpack:"keywords"`
	Tilt                 string               `json:"tilt" msgpack:"tilt"`
	LampCount            int                  `json:"lampCount" msgpack:"lampCount"`
	LumensPerLamp        *float64             `json:"lumensPerLamp,omitempty" msgpack:"lumensPerLamp,omitempty"`
	Multiplier           *float64             `json:"multiplier,omitempty" msgpack:"multiplier,omitempty"`
	VerticalAngleCount   int                  `json:"verticalAngleCount" msgpack:"verticalAngleCount"`
	HorizontalAngleCount int                  `json:"horizontalAngleCount" msgpack:"horizontalAngleCount"`
	PhotometricType      int                  `json:"photometricType" msgpack:"photometricType"`
	Units                int                  `json:"units" msgpack:"units"`
	Width                *float64             `json:"width,omitempty" msgpack:"width,omitempty"`
	Length               *float64             `json:"length,omitempty" msgpack:"length,omitempty"`
	Height               *float64             `json:"height,omitempty" msgpack:"height,omitempty"`
	BallastFactor        *float64             `json:"ballastFactor,omitempty" msgpack:"ballastFactor,omitempty"`
	InputWatts           *float64             `json:"inputWatts,omitempty" msgpack:"inputWatts,omitempty"`
	VerticalAngles       []float64            `json:"verticalAngles" msgpack:"verticalAngles"`
	HorizontalAngles     []float64            `json:"horizontalAngles" msgpack:"horizontalAngles"`
	Candela              [][]float64          `json:"candela" msgpack:"candela"`
	MaxCandela           float64              `json:"maxCandela" msgpack:"maxCandela"`
	LumenOutput          float64              `json:"lumenOutput" msgpack:"lumenOutput"`
	Errors               []*models.ParseError `json:"errors,omitempty" msgpack:"errors,omitempty"`
}

func newProfileResponse(id string, p *models.PhotometricProfile, parseErrors []*models.ParseError) *profileResponse {
	// Lumen output is computed on a copy; it overwrites LumensPerLamp.
	lumens := p.Copy().CalculateLumenOutput()

	return &profileResponse{
		FileID:               id,
		Keywords:             p.Keywords.Pairs(),
		Tilt:                 p.Tilt,
		LampCount:            p.LampCount,
		LumensPerLamp:        finite(p.LumensPerLamp),
		Multiplier:           finite(p.Multiplier),
		VerticalAngleCount:   p.VerticalAngleCount,
		HorizontalAngleCount: p.HorizontalAngleCount,
		PhotometricType:      p.PhotometricType,
		Units:                p.Units,
		Width:                finite(p.Width),
		Length:               finite(p.Length),
		Height:               finite(p.Height),
		BallastFactor:        finite(p.BallastFactor),
		InputWatts:           finite(p.InputWatts),
		VerticalAngles:       degrees(p.VerticalAngles),
		HorizontalAngles:     degrees(p.HorizontalAngles),
		Candela:              p.Candela,
		MaxCandela:           p.RecomputeMaxCandela(),
		LumenOutput:          lumens,
		Errors:               parseErrors,
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func degrees(rad []float64) []float64 {
	out := make([]float64, len(rad))
	floats.ScaleTo(out, 180/math.Pi, rad)
	return out
}

// wantsMsgpack reports whether the client asked for MessagePack.
func wantsMsgpack(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, MIMEMsgpack) || strings.Contains(accept, "application/x-msgpack")
}

// respond writes v as MessagePack or JSON depending on the Accept header.
// MessagePack falls back to json tags so both encodings share field names.
func respond(c echo.Context, status int, v interface{}) error {
	if !wantsMsgpack(c) {
		return c.JSON(status, v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(status, MIMEMsgpack, buf.Bytes())
}
