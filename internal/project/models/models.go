package models

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	dErrors "gridreg/pkg/domain-errors"
	"gridreg/pkg/platform/validation"
)

// Project is a registered restoration project. Its cells and their members
// are deleted with it.
type Project struct {
	ID              string    `json:"projectId"`
	Name            string    `json:"projectName"`
	Location        Location  `json:"location"`
	OfficerName     string    `json:"officerName,omitempty"`
	AreaHectares    float64   `json:"areaInHectares"`
	RegistrationRef string    `json:"registrationRef"`
	GridsRef        string    `json:"gridsRef,omitempty"`
	LedgerTx        string    `json:"ledgerTx,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Location struct {
	State    string `json:"state"`
	District string `json:"district,omitempty"`
	Block    string `json:"block,omitempty"`
	Village  string `json:"village,omitempty"`
}

// RegisterRequest is the project registration payload.
type RegisterRequest struct {
	ProjectID      string          `json:"projectID"      validate:"required,max=50"`
	ProjectName    string          `json:"projectName"    validate:"required,max=200"`
	State          string          `json:"state"          validate:"required,max=100"`
	District       string          `json:"district"       validate:"max=100"`
	Block          string          `json:"block"          validate:"max=100"`
	Village        string          `json:"village"        validate:"max=100"`
	GeoJSON        json.RawMessage `json:"geojson,omitempty"`
	AreaInHectares float64         `json:"areaInHectares" validate:"gte=0"`
	OfficerName    string          `json:"officerName"    validate:"max=200"`
}

func (r *RegisterRequest) Normalize() {
	r.ProjectID = strings.TrimSpace(r.ProjectID)
	r.ProjectName = strings.TrimSpace(r.ProjectName)
	r.State = strings.TrimSpace(r.State)
	r.District = strings.TrimSpace(r.District)
	r.Block = strings.TrimSpace(r.Block)
	r.Village = strings.TrimSpace(r.Village)
	r.OfficerName = strings.TrimSpace(r.OfficerName)
}

func (r *RegisterRequest) Validate(ctx context.Context) error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request is required")
	}
	return validation.Struct(ctx, r)
}

// RegistrationDocument is the JSON stored in the content store and anchored on the ledger.
type RegistrationDocument struct {
	ProjectID        string          `json:"projectID"`
	ProjectName      string          `json:"projectName"`
	Location         Location        `json:"location"`
	GeoBoundary      json.RawMessage `json:"geoBoundary"`
	AreaInHectares   float64         `json:"areaInHectares,omitempty"`
	OfficerName      string          `json:"officerName,omitempty"`
	VerificationDate time.Time       `json:"verificationDate"`
}

func NewRegistrationDocument(r RegisterRequest, now time.Time) RegistrationDocument {
	boundary := r.GeoJSON
	if len(boundary) == 0 {
		boundary = json.RawMessage("null")
	}
	return RegistrationDocument{
		ProjectID:        r.ProjectID,
		ProjectName:      r.ProjectName,
		Location:         r.Location(),
		GeoBoundary:      boundary,
		AreaInHectares:   r.AreaInHectares,
		OfficerName:      r.OfficerName,
		VerificationDate: now.UTC(),
	}
}

func (r RegisterRequest) Location() Location {
	return Location{State: r.State, District: r.District, Block: r.Block, Village: r.Village}
}

// RegistrationResult reports where the registration document was stored and anchored.
type RegistrationResult struct {
	ProjectID string `json:"projectId"`
	CID       string `json:"cid"`
	TxHash    string `json:"txHash,omitempty"`
}

type GenerateIDRequest struct {
	StateCode string `json:"stateCode" validate:"required,statecode"`
}

type GeneratedID struct {
	ProjectID string `json:"projectId"`
	Counter   int64  `json:"counter"`
}

// PublishResult is returned after a grid is stored and its cells loaded.
type PublishResult struct {
	ProjectID     string `json:"projectId"`
	CID           string `json:"cid"`
	InsertedCount int    `json:"insertedCount"`
}
