package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	id "gridreg/pkg/domain"
	dErrors "gridreg/pkg/domain-errors"
)

// CellCapacity is the hard upper bound on members per cell.
const CellCapacity = 5

const maxGridIDLength = 20

// Cell is one capacity-bounded grid cell of a project.
//
// Invariants (after every committed transaction):
//   - MemberCount equals the number of members referencing the cell
//   - IsFull == (MemberCount >= CellCapacity)
//   - 0 <= MemberCount <= CellCapacity
//
// MemberCount and IsFull change only through Admit, under the cell's row lock.
type Cell struct {
	ID          id.CellID       `json:"cellId"`
	ProjectID   string          `json:"projectId"`
	GridID      string          `json:"gridId"`
	Geometry    json.RawMessage `json:"geometry"`
	MemberCount int             `json:"memberCount"`
	IsFull      bool            `json:"isFull"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (c *Cell) HasCapacity() bool {
	return c.MemberCount < CellCapacity
}

// Admit claims one slot. Callers must hold the cell lock and persist the new
// count in the same transaction as the member insert.
func (c *Cell) Admit() error {
	if !c.HasCapacity() {
		return dErrors.New(dErrors.CodeCellFull, "cell "+c.GridID+" is full")
	}
	c.MemberCount++
	c.IsFull = c.MemberCount >= CellCapacity
	return nil
}

// CellSeed is one cell of a bulk load.
type CellSeed struct {
	GridID   string
	Geometry json.RawMessage
}

// CellAggregate pairs a cell with the live count of its member rows.
type CellAggregate struct {
	Cell
	LiveCount int  `json:"liveCount"`
	Drift     bool `json:"drift"`
}

// AvailableCell is the projection served to registrants choosing a cell.
type AvailableCell struct {
	CellID      id.CellID       `json:"cellId"`
	GridID      string          `json:"gridId"`
	Geometry    json.RawMessage `json:"geometry"`
	MemberCount int             `json:"memberCount"`
}

func ToAvailable(c Cell) AvailableCell {
	return AvailableCell{
		CellID:      c.ID,
		GridID:      c.GridID,
		Geometry:    c.Geometry,
		MemberCount: c.MemberCount,
	}
}

// CellRef addresses a cell within a project by surrogate ID or by grid label.
// Exactly one of ID and GridID is set.
type CellRef struct {
	ID     id.CellID
	GridID string
}

// ParseCellRef treats any non-nil UUID as a cell ID and anything else as a grid label.
func ParseCellRef(s string) (CellRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CellRef{}, dErrors.New(dErrors.CodeInvalidInput, "cellRef is required")
	}
	if u, err := uuid.Parse(s); err == nil && u != uuid.Nil {
		return CellRef{ID: id.CellID(u)}, nil
	}
	if len(s) > maxGridIDLength {
		return CellRef{}, dErrors.New(dErrors.CodeInvalidInput, "gridId must be at most 20 characters")
	}
	return CellRef{GridID: s}, nil
}

func (r CellRef) IsID() bool { return !r.ID.IsNil() }

func (r CellRef) String() string {
	if r.IsID() {
		return r.ID.String()
	}
	return r.GridID
}
