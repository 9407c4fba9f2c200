package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/ids"
	"go.uber.org/zap"
)

var (
	// ErrEmptyMessage indicates a message with neither text nor image.
	ErrEmptyMessage = errors.New("messages: text or image required")
	// ErrInvalidParticipant indicates a missing sender or receiver, or a message addressed to its sender.
	ErrInvalidParticipant = errors.New("messages: invalid participant")
	// ErrReceiverNotFound indicates that the receiver has no account.
	ErrReceiverNotFound = errors.New("messages: receiver not found")

	errMissingRepository = errors.New("repository is required")
	errMissingUploader   = errors.New("image uploader is required")
	errMissingDirectory  = errors.New("user directory is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "messages.service.new"
	opSend             = "messages.send"
	opListConversation = "messages.list_conversation"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Repository is the persistence port for messages.
type Repository interface {
	CreateMessage(ctx context.Context, message Message) error
	ListConversation(ctx context.Context, userA, userB string) ([]Message, error)
}

// ImageUploader stores an image data URI and returns its durable URL.
type ImageUploader interface {
	Upload(ctx context.Context, dataURI string) (string, error)
}

// UserDirectory answers whether a receiver exists.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Notifier receives every message after it has been durably written.
type Notifier interface {
	Deliver(ctx context.Context, message Message)
}

type ServiceConfig struct {
	Repository Repository
	Uploader   ImageUploader
	Directory  UserDirectory
	Notifier   Notifier
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

type Service struct {
	repository Repository
	uploader   ImageUploader
	directory  UserDirectory
	notifier   Notifier
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, newServiceError(opServiceNew, "missing_repository", errMissingRepository)
	}
	if cfg.Uploader == nil {
		return nil, newServiceError(opServiceNew, "missing_uploader", errMissingUploader)
	}
	if cfg.Directory == nil {
		return nil, newServiceError(opServiceNew, "missing_directory", errMissingDirectory)
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		repository: cfg.Repository,
		uploader:   cfg.Uploader,
		directory:  cfg.Directory,
		notifier:   cfg.Notifier,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// SendRequest is a message as submitted by its sender. Image is a data URI.
type SendRequest struct {
	SenderID   string
	ReceiverID string
	Text       string
	Image      string
}

// Send persists the message and then hands it to the notifier. Any failure before the write
// completes returns an error and nothing is delivered.
func (s *Service) Send(ctx context.Context, request SendRequest) (Message, error) {
	senderID := strings.TrimSpace(request.SenderID)
	receiverID := strings.TrimSpace(request.ReceiverID)
	if senderID == "" || receiverID == "" || senderID == receiverID {
		return Message{}, newServiceError(opSend, "invalid_participant", ErrInvalidParticipant)
	}
	text := strings.TrimSpace(request.Text)
	image := strings.TrimSpace(request.Image)
	if text == "" && image == "" {
		return Message{}, newServiceError(opSend, "empty_message", ErrEmptyMessage)
	}

	exists, err := s.directory.Exists(ctx, receiverID)
	if err != nil {
		s.logError(opSend, "receiver_lookup_failed", err, zap.String("receiver_id", receiverID))
		return Message{}, newServiceError(opSend, "receiver_lookup_failed", err)
	}
	if !exists {
		return Message{}, newServiceError(opSend, "receiver_not_found", ErrReceiverNotFound)
	}

	imageURL := ""
	if image != "" {
		imageURL, err = s.uploader.Upload(ctx, image)
		if err != nil {
			s.logError(opSend, "image_upload_failed", err,
				zap.String("sender_id", senderID),
				zap.String("receiver_id", receiverID))
			return Message{}, newServiceError(opSend, "image_upload_failed", err)
		}
	}

	messageID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSend, "id_generation_failed", err)
		return Message{}, newServiceError(opSend, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	message := Message{
		ID:         messageID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      imageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repository.CreateMessage(ctx, message); err != nil {
		s.logError(opSend, "message_insert_failed", err,
			zap.String("sender_id", senderID),
			zap.String("receiver_id", receiverID))
		return Message{}, newServiceError(opSend, "message_insert_failed", err)
	}

	if s.notifier != nil {
		s.notifier.Deliver(ctx, message)
	}
	return message, nil
}

// Conversation returns every message exchanged between the two users, oldest first.
func (s *Service) Conversation(ctx context.Context, userID, peerID string) ([]Message, error) {
	userID = strings.TrimSpace(userID)
	peerID = strings.TrimSpace(peerID)
	if userID == "" || peerID == "" {
		return nil, newServiceError(opListConversation, "invalid_participant", ErrInvalidParticipant)
	}
	conversation, err := s.repository.ListConversation(ctx, userID, peerID)
	if err != nil {
		s.logError(opListConversation, "query_failed", err,
			zap.String("user_id", userID),
			zap.String("peer_id", peerID))
		return nil, newServiceError(opListConversation, "query_failed", err)
	}
	return conversation, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("messages service error", attrs...)
}
