package domain

import (
	"gameroom-lab/errors"
)

// Participant is one member of a room. The connection id references the
// transport-owned link; the room never owns it.
type Participant struct {
	ConnectionID string
	UserID       string
	FirstName    string
	LastName     string
	Email        string
	Avatar       string
	Role         Role
}

// RosterEntry is the public shape of a participant, broadcast on every
// membership change.
type RosterEntry struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
	Role      Role   `json:"roomRole"`
}

// Room is the membership table of one game room. Participants keep their
// join order; the first slot after a facilitator departure inherits the
// role (FIFO succession).
type Room struct {
	Code            string
	FacilitatorConn string
	Participants    []Participant
}

func NewRoom(code string) *Room {
	return &Room{Code: code}
}

// Join adds the identity to the room. The first joiner becomes Facilitator.
// Re-joining with a known user id is idempotent except that the connection
// id is refreshed, so a reconnecting client takes over its old seat.
// Returns true when the room was created by this join.
func (r *Room) Join(connID string, id Identity) bool {
	for i := range r.Participants {
		if r.Participants[i].UserID == id.UserID {
			if r.Participants[i].Role == RoleFacilitator {
				r.FacilitatorConn = connID
			}
			r.Participants[i].ConnectionID = connID
			return false
		}
	}

	p := Participant{
		ConnectionID: connID,
		UserID:       id.UserID,
		FirstName:    id.FirstName,
		LastName:     id.LastName,
		Email:        id.Email,
		Avatar:       id.Avatar,
		Role:         RoleParticipant,
	}

	created := len(r.Participants) == 0
	if created {
		p.Role = RoleFacilitator
		r.FacilitatorConn = connID
	}
	r.Participants = append(r.Participants, p)
	return created
}

// LeaveResult describes what happened when a participant left.
type LeaveResult struct {
	Removed        bool
	UserID         string
	Empty          bool
	NewFacilitator *Participant
}

// Leave removes the participant bound to connID. When the Facilitator
// leaves a non-empty room, the earliest-joined remaining participant is
// promoted.
func (r *Room) Leave(connID string) LeaveResult {
	idx := -1
	for i := range r.Participants {
		if r.Participants[i].ConnectionID == connID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return LeaveResult{}
	}

	leaving := r.Participants[idx]
	wasFacilitator := r.FacilitatorConn == connID
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)

	res := LeaveResult{Removed: true, UserID: leaving.UserID}
	if len(r.Participants) == 0 {
		res.Empty = true
		return res
	}

	if wasFacilitator {
		next := &r.Participants[0]
		next.Role = RoleFacilitator
		r.FacilitatorConn = next.ConnectionID
		res.NewFacilitator = next
	}
	return res
}

// TransferFacilitator swaps the role from the requesting connection to the
// participant owning targetUserID. Only the current Facilitator may call
// it, and not onto themselves.
func (r *Room) TransferFacilitator(requesterConn, targetUserID string) (*Participant, error) {
	if r.FacilitatorConn != requesterConn {
		return nil, errors.ErrPermissionDenied
	}

	var oldMaster, newMaster *Participant
	for i := range r.Participants {
		if r.Participants[i].ConnectionID == requesterConn {
			oldMaster = &r.Participants[i]
		}
		if r.Participants[i].UserID == targetUserID {
			newMaster = &r.Participants[i]
		}
	}
	if oldMaster == nil || newMaster == nil || oldMaster == newMaster {
		return nil, errors.ErrNotFound
	}

	oldMaster.Role = RoleParticipant
	newMaster.Role = RoleFacilitator
	r.FacilitatorConn = newMaster.ConnectionID
	return newMaster, nil
}

// IsFacilitator reports whether connID currently holds the role.
func (r *Room) IsFacilitator(connID string) bool {
	return connID != "" && r.FacilitatorConn == connID
}

// Member returns the participant bound to connID, nil when absent.
func (r *Room) Member(connID string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].ConnectionID == connID {
			return &r.Participants[i]
		}
	}
	return nil
}

// Roster returns the broadcastable membership list in join order.
func (r *Room) Roster() []RosterEntry {
	roster := make([]RosterEntry, 0, len(r.Participants))
	for _, p := range r.Participants {
		roster = append(roster, RosterEntry{
			ID:        p.UserID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Email:     p.Email,
			Avatar:    p.Avatar,
			Role:      p.Role,
		})
	}
	return roster
}
