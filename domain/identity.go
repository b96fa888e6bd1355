// Package domain contains core concepts of the game room system: rooms,
// participants, selection pools, and encounters. No runtime, network, or
// storage logic should be added here.
package domain

import "regexp"

// Role of a member inside a room. Exactly one Facilitator per room.
type Role string

const (
	RoleFacilitator Role = "Facilitator"
	RoleParticipant Role = "Participant"
)

// Identity is the authenticated user attached to a connection by the
// transport layer. The coordinator never issues identities.
type Identity struct {
	UserID    string
	FirstName string
	LastName  string
	Email     string
	Avatar    string
}

// roomCodePattern matches codes like "Camp-KOD:12345-000001".
var roomCodePattern = regexp.MustCompile(`^.+-KOD:\d{5}-\d{6}$`)

// ValidRoomCode reports whether code has the expected wire format.
func ValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}
