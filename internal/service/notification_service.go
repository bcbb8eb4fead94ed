package service

import (
	"context"
	"encoding/json"
	"mooc_exam_backend/internal/model"
	"mooc_exam_backend/internal/repository"
	"mooc_exam_backend/internal/util"
	"mooc_exam_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationService stores in-app notifications. Delivery (push, mail) reads from the table.
type NotificationService struct {
	Repo *repository.NotificationRepository
}

func NewNotificationService(repo *repository.NotificationRepository) *NotificationService {
	return &NotificationService{Repo: repo}
}

// Notify writes a notification, inside tx when one is given.
func (s *NotificationService) Notify(ctx context.Context, tx *gorm.DB, userID uint, kind, title string, payload map[string]interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	repo := s.Repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	n := &model.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Payload: datatypes.JSON(raw),
	}
	if err := repo.Create(ctx, n); err != nil {
		return err
	}
	logger.Log.Debug("notification queued",
		zap.Uint("user_id", userID),
		zap.String("type", kind),
	)
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool) ([]model.Notification, error) {
	return s.Repo.ListByUser(ctx, userID, unreadOnly, 50)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	ok, err := s.Repo.MarkRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return util.NotFound(util.ErrNotificationNotFound)
	}
	return nil
}
