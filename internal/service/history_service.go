package service

import (
	"context"
	"errors"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/rooms"
	"mindpalace/backend/internal/store"
	"mindpalace/backend/pkg/logger"
)

// ErrRoomNotListable is returned for room ids whose history is not served.
var ErrRoomNotListable = errors.New("room history is only available for institution, peer-support and global rooms")

// HistoryService replays the unexpired messages of a shared room to
// reconnecting clients.
type HistoryService struct {
	store store.Store
	log   *logger.Logger
}

// NewHistoryService creates the service.
func NewHistoryService(st store.Store, log *logger.Logger) *HistoryService {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &HistoryService{store: st, log: log}
}

// Recent returns up to limit unexpired messages of roomID, oldest first.
// Private rooms are never listed. A store failure yields an empty list.
func (s *HistoryService) Recent(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	scope, err := rooms.Parse(roomID)
	if err != nil || scope.Kind() == rooms.KindPrivate {
		return nil, ErrRoomNotListable
	}
	msgs, err := s.store.ListMessages(ctx, roomID, limit)
	if err != nil {
		s.log.LogError(err, "history replay fell back to empty", "room_id", roomID)
		return []models.Message{}, nil
	}
	return msgs, nil
}
