package models

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	dErrors "gridreg/pkg/domain-errors"
	"gridreg/pkg/platform/validation"
)

// RegisterRequest is the registration payload. GridID and CellID are accepted
// as aliases of CellRef.
type RegisterRequest struct {
	CellRef        string `json:"cellRef"        validate:"required,max=64"`
	GridID         string `json:"gridId,omitempty"`
	CellID         string `json:"cellId,omitempty"`
	MemberName     string `json:"memberName"     validate:"required,max=200"`
	MemberWallet   string `json:"memberWallet"   validate:"omitempty,max=64,printascii"`
	MemberPhone    string `json:"memberPhone"    validate:"omitempty,max=20"`
	PhotoRef       string `json:"photoRef"       validate:"omitempty,max=128,printascii"`
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,max=128,printascii"`
}

// Normalize trims fields and resolves the cell reference aliases.
func (r *RegisterRequest) Normalize() {
	r.CellRef = strings.TrimSpace(r.CellRef)
	if r.CellRef == "" {
		r.CellRef = strings.TrimSpace(r.CellID)
	}
	if r.CellRef == "" {
		r.CellRef = strings.TrimSpace(r.GridID)
	}
	r.MemberName = strings.TrimSpace(r.MemberName)
	r.MemberWallet = strings.TrimSpace(r.MemberWallet)
	r.MemberPhone = strings.TrimSpace(r.MemberPhone)
	r.PhotoRef = strings.TrimSpace(r.PhotoRef)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
}

func (r *RegisterRequest) Validate(ctx context.Context) error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request is required")
	}
	return validation.Struct(ctx, r)
}

// RegistrationResult is returned by a successful or replayed registration.
// For a fresh registration MemberCount and IsFull describe the cell right
// after this member was admitted. A replay reports the cell's occupancy at
// replay time, which may be higher than what the original call returned.
type RegistrationResult struct {
	MemberID    string `json:"memberId"`
	CellID      string `json:"cellId"`
	GridID      string `json:"gridId"`
	MemberCount int    `json:"memberCount"`
	IsFull      bool   `json:"isFull"`
	Replayed    bool   `json:"replayed,omitempty"`
}

// CellDetail is a cell with its members in registration order.
type CellDetail struct {
	Cell    Cell     `json:"cell"`
	Members []Member `json:"members"`
}

// LoadCellsRequest accepts either a GeoJSON FeatureCollection whose features
// carry properties.gridID, or an explicit cells list.
type LoadCellsRequest struct {
	Type     string        `json:"type,omitempty"`
	Features []Feature     `json:"features,omitempty"`
	Cells    []CellPayload `json:"cells,omitempty"`
}

type Feature struct {
	Type       string          `json:"type,omitempty"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type CellPayload struct {
	GridID   string          `json:"gridId"`
	Geometry json.RawMessage `json:"geometry"`
}

// Seeds flattens the request into cell seeds. Every seed must name a grid ID.
func (r LoadCellsRequest) Seeds() ([]CellSeed, error) {
	seeds := make([]CellSeed, 0, len(r.Features)+len(r.Cells))
	for i, f := range r.Features {
		gridID := featureGridID(f.Properties)
		if gridID == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "features["+strconv.Itoa(i)+"].properties.gridID is required")
		}
		seeds = append(seeds, CellSeed{GridID: gridID, Geometry: geometryOrEmpty(f.Geometry)})
	}
	for i, c := range r.Cells {
		gridID := strings.TrimSpace(c.GridID)
		if gridID == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "cells["+strconv.Itoa(i)+"].gridId is required")
		}
		seeds = append(seeds, CellSeed{GridID: gridID, Geometry: geometryOrEmpty(c.Geometry)})
	}
	if len(seeds) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one cell is required")
	}
	for _, s := range seeds {
		if len(s.GridID) > maxGridIDLength {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "gridId "+s.GridID+" exceeds 20 characters")
		}
	}
	return seeds, nil
}

func featureGridID(props map[string]any) string {
	for _, key := range []string{"gridID", "gridId", "grid_id"} {
		if v, ok := props[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func geometryOrEmpty(g json.RawMessage) json.RawMessage {
	if len(g) == 0 || string(g) == "null" {
		return json.RawMessage(`{}`)
	}
	return g
}
