// Package domain holds identifier types shared across modules.
//
// Cell and member IDs are distinct named UUID types so one cannot be passed
// where the other is expected.
package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"

	dErrors "gridreg/pkg/domain-errors"
)

type (
	CellID   uuid.UUID
	MemberID uuid.UUID
)

func NewCellID() CellID { return CellID(uuid.New()) }
func NewMemberID() MemberID { return MemberID(uuid.New()) }

// ParseCellID parses a non-empty, non-nil UUID.
func ParseCellID(s string) (CellID, error) {
	u, err := parseUUID(s, "cell")
	return CellID(u), err
}

// ParseMemberID parses a non-empty, non-nil UUID.
func ParseMemberID(s string) (MemberID, error) {
	u, err := parseUUID(s, "member")
	return MemberID(u), err
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("invalid %s ID", kind))
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID cannot be nil")
	}
	return u, nil
}

func (id CellID) String() string { return uuid.UUID(id).String() }
func (id CellID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id CellID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *CellID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id CellID) Value() (driver.Value, error) { return uuid.UUID(id).String(), nil }

func (id *CellID) Scan(src any) error { return (*uuid.UUID)(id).Scan(src) }

func (id MemberID) String() string { return uuid.UUID(id).String() }
func (id MemberID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id MemberID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *MemberID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id MemberID) Value() (driver.Value, error) { return uuid.UUID(id).String(), nil }

func (id *MemberID) Scan(src any) error { return (*uuid.UUID)(id).Scan(src) }
