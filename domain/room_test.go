package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gameroom-lab/errors"
)

func identity(userID string) Identity {
	return Identity{
		UserID:    userID,
		FirstName: "First-" + userID,
		LastName:  "Last-" + userID,
		Email:     userID + "@example.com",
	}
}

func TestRoom_Join_FirstJoinerBecomesFacilitator(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")

	created := room.Join("conn-a", identity("alice"))

	req.True(created)
	req.Equal("conn-a", room.FacilitatorConn)
	req.Len(room.Participants, 1)
	req.Equal(RoleFacilitator, room.Participants[0].Role)
}

func TestRoom_Join_SecondJoinerIsParticipant(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")
	room.Join("conn-a", identity("alice"))

	created := room.Join("conn-b", identity("bob"))

	req.False(created)
	req.Equal("conn-a", room.FacilitatorConn)
	req.Equal(RoleParticipant, room.Participants[1].Role)
}

func TestRoom_Join_RejoinRefreshesConnection(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")
	room.Join("conn-a", identity("alice"))

	created := room.Join("conn-a2", identity("alice"))

	req.False(created)
	req.Len(room.Participants, 1)
	req.Equal("conn-a2", room.Participants[0].ConnectionID)
	// A reconnecting facilitator keeps the role on the new connection.
	req.Equal("conn-a2", room.FacilitatorConn)
}

func TestRoom_Leave_FacilitatorSuccessionIsFIFO(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")
	room.Join("conn-a", identity("alice"))
	room.Join("conn-b", identity("bob"))
	room.Join("conn-c", identity("carol"))

	res := room.Leave("conn-a")

	req.True(res.Removed)
	req.False(res.Empty)
	req.NotNil(res.NewFacilitator)
	req.Equal("bob", res.NewFacilitator.UserID)
	req.Equal("conn-b", room.FacilitatorConn)
	req.Equal(RoleFacilitator, room.Participants[0].Role)
}

func TestRoom_Leave_NonFacilitatorKeepsFacilitator(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")
	room.Join("conn-a", identity("alice"))
	room.Join("conn-b", identity("bob"))

	res := room.Leave("conn-b")

	req.True(res.Removed)
	req.Nil(res.NewFacilitator)
	req.Equal("conn-a", room.FacilitatorConn)
}

func TestRoom_Leave_LastParticipantEmptiesRoom(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")
	room.Join("conn-a", identity("alice"))

	res := room.Leave("conn-a")

	req.True(res.Removed)
	req.True(res.Empty)
	req.Nil(res.NewFacilitator)
}

func TestRoom_Leave_UnknownConnectionIsNoop(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")
	room.Join("conn-a", identity("alice"))

	res := room.Leave("conn-zzz")

	req.False(res.Removed)
	req.Len(room.Participants, 1)
}

func TestRoom_TransferFacilitator_MovesRole(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")
	room.Join("conn-a", identity("alice"))
	room.Join("conn-b", identity("bob"))

	newMaster, err := room.TransferFacilitator("conn-a", "bob")

	req.NoError(err)
	req.Equal("bob", newMaster.UserID)
	req.Equal("conn-b", room.FacilitatorConn)
	req.Equal(RoleParticipant, room.Participants[0].Role)
	req.Equal(RoleFacilitator, room.Participants[1].Role)
}

func TestRoom_TransferFacilitator_RequiresRole(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")
	room.Join("conn-a", identity("alice"))
	room.Join("conn-b", identity("bob"))

	_, err := room.TransferFacilitator("conn-b", "alice")

	req.ErrorIs(err, errors.ErrPermissionDenied)
}

func TestRoom_TransferFacilitator_RejectsSelfAndUnknown(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")
	room.Join("conn-a", identity("alice"))
	room.Join("conn-b", identity("bob"))

	_, err := room.TransferFacilitator("conn-a", "alice")
	req.ErrorIs(err, errors.ErrNotFound)

	_, err = room.TransferFacilitator("conn-a", "nobody")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestRoom_Roster_PreservesJoinOrder(t *testing.T) {
	req := require.New(t)
	room := NewRoom("Camp-KOD:12345-000001")
	room.Join("conn-a", identity("alice"))
	room.Join("conn-b", identity("bob"))

	roster := room.Roster()

	req.Len(roster, 2)
	req.Equal("alice", roster[0].ID)
	req.Equal(RoleFacilitator, roster[0].Role)
	req.Equal("bob", roster[1].ID)
	req.Equal(RoleParticipant, roster[1].Role)
}

func TestValidRoomCode(t *testing.T) {
	req := require.New(t)

	req.True(ValidRoomCode("Camp-KOD:12345-000001"))
	req.True(ValidRoomCode("Winter Journey-KOD:99999-123456"))
	req.False(ValidRoomCode("Camp-KOD:1234-000001"))
	req.False(ValidRoomCode("-KOD:12345-000001"))
	req.False(ValidRoomCode("Camp-KOD:12345-00001"))
	req.False(ValidRoomCode("no separator at all"))
}
