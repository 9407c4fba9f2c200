package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/auth"
	"github.com/MarcoPoloResearchLab/parley/internal/ids"
	"go.uber.org/zap"
)

var (
	// ErrMissingFields indicates that a signup request omitted a required field.
	ErrMissingFields = errors.New("users: all fields are required")
	// ErrEmailTaken indicates that the email already belongs to an account.
	ErrEmailTaken = errors.New("users: email already exists")
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserNotFound indicates that no account matches the identifier.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrMissingProfilePic indicates an update-profile request without an image.
	ErrMissingProfilePic = errors.New("users: profile picture is required")
)

// Repository is the persistence port for accounts.
type Repository interface {
	CreateUser(ctx context.Context, user User) error
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, userID string) (User, error)
	ListUsersExcept(ctx context.Context, userID string) ([]User, error)
	UpdateProfilePic(ctx context.Context, userID, url string, updatedAt time.Time) (User, error)
}

// AvatarUploader stores an image data URI and returns its durable URL.
type AvatarUploader interface {
	Upload(ctx context.Context, dataURI string) (string, error)
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Repository Repository
	Hasher     *auth.PasswordHasher
	Uploader   AvatarUploader
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service implements signup, login and profile operations.
type Service struct {
	repository Repository
	hasher     *auth.PasswordHasher
	uploader   AvatarUploader
	idProvider ids.Provider
	now        func() time.Time
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("users: repository required")
	}
	if cfg.Uploader == nil {
		return nil, fmt.Errorf("users: uploader required")
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = auth.NewPasswordHasher(0)
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
		logger = zap.NewNop()
	}
	return &Service{
		repository: cfg.Repository,
		hasher:     hasher,
		uploader:   cfg.Uploader,
		idProvider: idProvider,
		now:        clock,
		logger:     logger,
	}, nil
}

// SignupRequest carries the fields of a new account.
type SignupRequest struct {
	Email    string
	FullName string
	Password string
}

// Signup creates an account. The email is stored lower-cased.
func (s *Service) Signup(ctx context.Context, request SignupRequest) (User, error) {
	email := NormalizeEmail(request.Email)
	fullName := strings.TrimSpace(request.FullName)
	if email == "" || fullName == "" || request.Password == "" {
		return User{}, ErrMissingFields
	}

	if _, err := s.repository.FindUserByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	hash, err := s.hasher.Hash(request.Password)
	if err != nil {
		return User{}, err
	}
	userID, err := s.idProvider.NewID()
	if err != nil {
		return User{}, err
	}

	now := s.now().UTC()
	user := User{
		ID:           userID,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repository.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, ErrEmailTaken) {
			s.logger.Error("user insert failed", zap.String("email", email), zap.Error(err))
		}
		return User{}, err
	}
	s.logger.Info("user signed up", zap.String("user_id", user.ID))
	return user, nil
}

// Login verifies credentials and returns the matching account.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	user, err := s.repository.FindUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	return user, nil
}

// Get returns the account for userID.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrUserNotFound
	}
	return s.repository.FindUserByID(ctx, userID)
}

// Exists reports whether an account with userID is stored.
func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := s.Get(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListPeers returns every account except the caller's, for the conversation sidebar.
func (s *Service) ListPeers(ctx context.Context, userID string) ([]User, error) {
	return s.repository.ListUsersExcept(ctx, userID)
}

// UpdateProfilePic uploads the image and stores its URL on the account.
func (s *Service) UpdateProfilePic(ctx context.Context, userID, dataURI string) (User, error) {
	if strings.TrimSpace(dataURI) == "" {
		return User{}, ErrMissingProfilePic
	}
	url, err := s.uploader.Upload(ctx, dataURI)
	if err != nil {
		s.logger.Warn("profile picture upload failed", zap.String("user_id", userID), zap.Error(err))
		return User{}, err
	}
	return s.repository.UpdateProfilePic(ctx, userID, url, s.now().UTC())
}
