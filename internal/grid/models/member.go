package models

import (
	"time"

	id "gridreg/pkg/domain"
)

type VerificationStatus string

const (
	StatusPending  VerificationStatus = "PENDING"
	StatusVerified VerificationStatus = "VERIFIED"
	StatusRejected VerificationStatus = "REJECTED"
)

func (s VerificationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// Member is one registration in a cell. CellID never changes after creation.
type Member struct {
	ID             id.MemberID        `json:"memberId"`
	CellID         id.CellID          `json:"cellId"`
	Name           string             `json:"memberName"`
	Wallet         string             `json:"memberWallet,omitempty"`
	Phone          string             `json:"memberPhone,omitempty"`
	PhotoRef       string             `json:"photoRef,omitempty"`
	Status         VerificationStatus `json:"verificationStatus"`
	IdempotencyKey string             `json:"-"`
	RegisteredAt   time.Time          `json:"registeredAt"`
}

// NewMember builds a PENDING member for cellID from a validated request.
func NewMember(cellID id.CellID, req RegisterRequest, now time.Time) Member {
	return Member{
		ID:             id.NewMemberID(),
		CellID:         cellID,
		Name:           req.MemberName,
		Wallet:         req.MemberWallet,
		Phone:          req.MemberPhone,
		PhotoRef:       req.PhotoRef,
		Status:         StatusPending,
		IdempotencyKey: req.IdempotencyKey,
		RegisteredAt:   now,
	}
}
