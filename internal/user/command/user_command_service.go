package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/graphbank/backoffice/internal/cqrs"
	"github.com/graphbank/backoffice/internal/events"
	"github.com/graphbank/backoffice/internal/logging"
	"github.com/graphbank/backoffice/internal/models"
	"github.com/graphbank/backoffice/internal/user/repository"
	"github.com/graphbank/backoffice/internal/utils"
)

// Publisher is the slice of the events publisher this service needs.
type Publisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// UserCommandService writes user state to PostgreSQL and keeps the Redis
// read model up to date.
type UserCommandService struct {
	writeRepo *repository.UserWriteRepository
	readRepo  *repository.UserReadRepository
	publisher Publisher
	log       *logging.Logger
}

func NewUserCommandService(
	writeRepo *repository.UserWriteRepository,
	readRepo *repository.UserReadRepository,
	publisher Publisher,
	log *logging.Logger,
) *UserCommandService {
	return &UserCommandService{
		writeRepo: writeRepo,
		readRepo:  readRepo,
		publisher: publisher,
		log:       log,
	}
}

func (s *UserCommandService) CreateUser(ctx context.Context, cmd cqrs.CreateUserCommand) (*models.User, error) {
	if cmd.Name == "" {
		return nil, models.NewValidationError("name", "name is required")
	}
	if cmd.Email == "" {
		return nil, models.NewValidationError("email", "email is required")
	}
	if cmd.Password == "" {
		return nil, models.NewValidationError("password", "password is required")
	}
	passwordHash, err := utils.HashPassword(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := time.Now().UTC()
	user := &models.User{
		Name:         cmd.Name,
		Email:        cmd.Email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.writeRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	if s.readRepo != nil {
		s.readRepo.CacheUserView(ctx, repository.UserToView(user))
	}
	s.publish(ctx, events.UserCreated, events.UserCreatedEvent{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})
	s.log.WithUserID(user.ID).Info("user created")
	return user, nil
}

// UpdateUser applies any non-empty fields of the command.
func (s *UserCommandService) UpdateUser(ctx context.Context, cmd cqrs.UpdateUserCommand) (*models.UserView, error) {
	user, err := s.writeRepo.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if cmd.Name != "" {
		user.Name = cmd.Name
	}
	if cmd.Email != "" {
		user.Email = cmd.Email
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.writeRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	view := repository.UserToView(user)
	if s.readRepo != nil {
		s.readRepo.CacheUserView(ctx, view)
	}
	s.publish(ctx, events.UserUpdated, events.UserUpdatedEvent{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})
	return view, nil
}

func (s *UserCommandService) DeleteUser(ctx context.Context, cmd cqrs.DeleteUserCommand) error {
	if err := s.writeRepo.Delete(ctx, cmd.UserID); err != nil {
		return err
	}
	if s.readRepo != nil {
		s.readRepo.InvalidateUserView(ctx, cmd.UserID)
	}
	s.publish(ctx, events.UserDeleted, events.UserDeletedEvent{UserID: cmd.UserID})
	s.log.WithUserID(cmd.UserID).Info("user deleted")
	return nil
}

// HandleTransactionEvent is the Redis stream subscriber handler. It keeps
// the per-user transaction counter in step with the ledger.
func (s *UserCommandService) HandleTransactionEvent(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.TransactionCreated:
		var data events.TransactionCreatedEvent
		if err := decodeEventData(event.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal %s event: %w", event.Type, err)
		}
		s.readRepo.IncrTransactionCount(ctx, data.UserID)
	case events.TransactionDeleted:
		var data events.TransactionDeletedEvent
		if err := decodeEventData(event.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal %s event: %w", event.Type, err)
		}
		s.readRepo.DecrTransactionCount(ctx, data.UserID)
	}
	return nil
}

func (s *UserCommandService) publish(ctx context.Context, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.UserEventsStream, eventType, data); err != nil {
		s.log.WithService().WithField("event", eventType).Warnf("failed to publish event: %v", err)
	}
}

func decodeEventData(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
