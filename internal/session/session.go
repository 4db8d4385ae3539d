// Package session models the support-session entity referenced by the
// access-control layer. The gates only read participant ids to decide access;
// session state is owned elsewhere.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("session: not found")
	ErrInvalidInput = errors.New("session: invalid input")
)

// Status values for a support session.
const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusClosed  = "closed"
)

// Session is a support conversation between a patient and an optional helper
// (peer or counselor).
type Session struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	HelperID  string    `json:"helperId,omitempty"`
	Status    string    `json:"status"`
	Severity  string    `json:"severity,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Participant reports whether the given principal id is a direct participant.
func (s *Session) Participant(principalID string) bool {
	if principalID == "" {
		return false
	}
	return s.PatientID == principalID || (s.HelperID != "" && s.HelperID == principalID)
}

// Directory is the external session store consulted by the participant gate.
type Directory interface {
	FindByID(ctx context.Context, id string) (*Session, error)
	Create(ctx context.Context, s *Session) error
}
