package chat

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"chatrooms/internal/account"
	"chatrooms/internal/metrics"
)

// Access denial is deliberately indistinguishable from nonexistence:
// every authorization failure surfaces as ErrNotFound so a room's
// existence never leaks to outsiders.
var (
	ErrNotFound = errors.New("chat: room not found")
	ErrSelfChat = errors.New("chat: cannot start a chat with yourself")
	ErrBlocked  = errors.New("chat: blocked")
)

// recentMessageLimit caps the initial render of a room's history.
const recentMessageLimit = 20

// Store is what the service needs from persistence.
type Store interface {
	RoomByName(ctx context.Context, roomName string) (*Room, error)
	Members(ctx context.Context, roomID string) ([]Member, error)
	IsMember(ctx context.Context, roomID, accountID string) (bool, error)
	AddMember(ctx context.Context, roomID, accountID string) (bool, error)
	FindPrivateRoom(ctx context.Context, accountA, accountB string) (*Room, error)
	CreatePrivateRoom(ctx context.Context, accountA, accountB string) (*Room, error)
	CreateGroupRoom(ctx context.Context, adminID, groupchatName string) (*Room, error)
	UpdateGroupRoom(ctx context.Context, roomID, groupchatName string, removeMemberIDs []string) error
	DeleteRoom(ctx context.Context, roomID string) error
	RemoveMember(ctx context.Context, roomID, accountID string) error
	RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
	CreateMessage(ctx context.Context, roomID, authorID, body string) (*Message, error)
	RoomSummaries(ctx context.Context, accountID string) ([]RoomSummary, error)
}

// AccountDirectory is what the service needs from the account package.
type AccountDirectory interface {
	ByUsername(ctx context.Context, username string) (*account.Account, error)
	BlockedEitherWay(ctx context.Context, a, b string) (bool, error)
}

type Service struct {
	store    Store
	accounts AccountDirectory
	logger   zerolog.Logger
}

func NewService(store Store, accounts AccountDirectory, logger zerolog.Logger) *Service {
	return &Service{store: store, accounts: accounts, logger: logger}
}

// Home returns the requester's conversation list.
func (s *Service) Home(ctx context.Context, accountID string) ([]RoomSummary, error) {
	return s.store.RoomSummaries(ctx, accountID)
}

// StartDirectChat resolves the private room between the requester and
// the target, creating it when the two have never chatted. Resolution
// is idempotent: a second call for the same pair returns the same room.
func (s *Service) StartDirectChat(ctx context.Context, requesterID, targetUsername string) (string, error) {
	target, err := s.accounts.ByUsername(ctx, targetUsername)
	if err != nil {
		return "", err
	}
	if target == nil {
		return "", ErrNotFound
	}
	if target.ID == requesterID {
		return "", ErrSelfChat
	}

	blocked, err := s.accounts.BlockedEitherWay(ctx, requesterID, target.ID)
	if err != nil {
		return "", err
	}
	if blocked {
		return "", ErrBlocked
	}

	room, err := s.store.FindPrivateRoom(ctx, requesterID, target.ID)
	if err != nil {
		return "", err
	}
	if room == nil {
		room, err = s.store.CreatePrivateRoom(ctx, requesterID, target.ID)
		if err != nil {
			return "", err
		}
		metrics.RoomsCreated.WithLabelValues("private").Inc()
	}

	return room.RoomName, nil
}

// OpenRoom resolves a room for viewing and enforces access: private
// rooms are members-only, group rooms auto-join the viewer.
func (s *Service) OpenRoom(ctx context.Context, requesterID, roomName string) (*RoomView, error) {
	room, err := s.authorizeView(ctx, requesterID, roomName)
	if err != nil {
		return nil, err
	}

	members, err := s.store.Members(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	var other *Member
	if room.IsPrivate {
		for i := range members {
			if members[i].ID != requesterID {
				other = &members[i]
				break
			}
		}
	}

	msgs, err := s.store.RecentMessages(ctx, room.ID, recentMessageLimit)
	if err != nil {
		return nil, err
	}
	// Query order is newest first; the page shows oldest at top.
	reverse(msgs)

	return &RoomView{
		Room:      room,
		Members:   members,
		OtherUser: other,
		Messages:  msgs,
		IsAdmin:   !room.IsPrivate && room.AdminID == requesterID,
	}, nil
}

// PostMessage appends a message to the room on behalf of the requester,
// under the same access rules as viewing.
func (s *Service) PostMessage(ctx context.Context, requesterID, roomName, body string) (*Message, error) {
	room, err := s.authorizeView(ctx, requesterID, roomName)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, room.ID, requesterID, body)
	if err != nil {
		return nil, err
	}
	metrics.MessagesPosted.Inc()
	return msg, nil
}

// CreateGroup creates a group room with the requester as admin and
// sole initial member.
func (s *Service) CreateGroup(ctx context.Context, adminID, groupchatName string) (*Room, error) {
	room, err := s.store.CreateGroupRoom(ctx, adminID, groupchatName)
	if err != nil {
		return nil, err
	}
	metrics.RoomsCreated.WithLabelValues("group").Inc()
	return room, nil
}

// AdminRoom resolves a room for an admin-only operation. Anyone who is
// not the admin gets ErrNotFound.
func (s *Service) AdminRoom(ctx context.Context, requesterID, roomName string) (*Room, error) {
	room, err := s.store.RoomByName(ctx, roomName)
	if err != nil {
		return nil, err
	}
	if room == nil || room.IsPrivate || room.AdminID != requesterID {
		return nil, ErrNotFound
	}
	return room, nil
}

// MemberRoom resolves a room for a member-only operation. Non-members
// get ErrNotFound.
func (s *Service) MemberRoom(ctx context.Context, requesterID, roomName string) (*Room, error) {
	room, err := s.store.RoomByName(ctx, roomName)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrNotFound
	}
	isMember, err := s.store.IsMember(ctx, room.ID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotFound
	}
	return room, nil
}

// EditRoom applies the admin's field edit and member removals in one
// atomic step.
func (s *Service) EditRoom(ctx context.Context, requesterID, roomName string, form EditRoomForm) (*Room, error) {
	room, err := s.AdminRoom(ctx, requesterID, roomName)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateGroupRoom(ctx, room.ID, form.GroupchatName, form.RemoveMembers); err != nil {
		return nil, err
	}
	room.GroupchatName = form.GroupchatName
	return room, nil
}

// DeleteRoom irreversibly deletes the room; messages and memberships
// cascade with it.
func (s *Service) DeleteRoom(ctx context.Context, requesterID, roomName string) error {
	room, err := s.AdminRoom(ctx, requesterID, roomName)
	if err != nil {
		return err
	}
	return s.store.DeleteRoom(ctx, room.ID)
}

// LeaveRoom removes the requester from the room's member set.
func (s *Service) LeaveRoom(ctx context.Context, requesterID, roomName string) error {
	room, err := s.MemberRoom(ctx, requesterID, roomName)
	if err != nil {
		return err
	}
	return s.store.RemoveMember(ctx, room.ID, requesterID)
}

// authorizeView enforces the room view policy: unknown rooms and
// private rooms the requester is not in read as not found; group rooms
// join the viewer as a side effect, exactly once.
func (s *Service) authorizeView(ctx context.Context, requesterID, roomName string) (*Room, error) {
	room, err := s.store.RoomByName(ctx, roomName)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrNotFound
	}

	if room.IsPrivate {
		isMember, err := s.store.IsMember(ctx, room.ID, requesterID)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, ErrNotFound
		}
		return room, nil
	}

	joined, err := s.store.AddMember(ctx, room.ID, requesterID)
	if err != nil {
		return nil, err
	}
	if joined {
		metrics.RoomJoins.Inc()
		s.logger.Info().Str("room", room.RoomName).Str("account", requesterID).Msg("joined group chat")
	}
	return room, nil
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
