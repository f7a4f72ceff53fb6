package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/TemirB/shop/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

//go:generate mockgen -source internal/application/accounts/accounts.go -destination=internal/application/accounts/accounts_mock_test.go -package=accounts

const (
	maxUsername    = 150
	maxName        = 150
	maxBio         = 500
	minPasswordLen = 8
)

var usernameRe = regexp.MustCompile(`^[\w.@+-]+$`)

type Storage interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context, page domain.Page) ([]domain.User, error)
	EmailTaken(ctx context.Context, email string, exceptUserID int64) (bool, error)
	UpdateUser(ctx context.Context, u *domain.User) error
	SetAvatar(ctx context.Context, userID int64, path string) error
}

type Media interface {
	Save(ctx context.Context, dir, filename string, r io.Reader) (string, error)
	Remove(rel string) error
}

type RegisterInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type ProfileInput struct {
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Bio               string `json:"bio"`
	AgreementAccepted bool   `json:"agreement_accepted"`
}

type Service struct {
	storage Storage
	media   Media
	cost    int
	logger  *zap.Logger
}

func NewService(storage Storage, media Media, cost int, logger *zap.Logger) *Service {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		storage: storage,
		media:   media,
		cost:    cost,
		logger:  logger,
	}
}

// Register creates the user with an empty profile.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	v := &domain.ValidationError{}
	switch {
	case in.Username == "":
		v.Add("username", "this field is required")
	case utf8.RuneCountInString(in.Username) > maxUsername:
		v.Add("username", "ensure this field has no more than 150 characters")
	case !usernameRe.MatchString(in.Username):
		v.Add("username", "letters, digits and @/./+/-/_ only")
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		v.Add("password", "this password is too short, it must contain at least 8 characters")
	}
	validateNames(v, in.FirstName, in.LastName)
	if err := s.validateEmail(ctx, v, in.Email, 0); err != nil {
		return nil, err
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		Profile:      &domain.Profile{},
	}
	if err := s.storage.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("User registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// Authenticate checks a username/password pair. Every failure is
// ErrUnauthenticated so callers cannot tell which half was wrong.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	u, err := s.storage.GetUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, domain.ErrUnauthenticated
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.User, error) {
	return s.storage.GetUser(ctx, id)
}

func (s *Service) List(ctx context.Context, page domain.Page) ([]domain.User, error) {
	return s.storage.ListUsers(ctx, page.Normalize())
}

// UpdateProfile lets a user, or staff, edit the user's details and
// profile together.
func (s *Service) UpdateProfile(ctx context.Context, actor *domain.User, userID int64, in ProfileInput) (*domain.User, error) {
	if err := canEdit(actor, userID); err != nil {
		return nil, err
	}
	u, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	in.Email = strings.TrimSpace(in.Email)
	v := &domain.ValidationError{}
	validateNames(v, in.FirstName, in.LastName)
	if utf8.RuneCountInString(in.Bio) > maxBio {
		v.Add("bio", "ensure this field has no more than 500 characters")
	}
	if err := s.validateEmail(ctx, v, in.Email, userID); err != nil {
		return nil, err
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	u.Email = in.Email
	u.FirstName = in.FirstName
	u.LastName = in.LastName
	if u.Profile == nil {
		u.Profile = &domain.Profile{UserID: userID}
	}
	u.Profile.Bio = in.Bio
	u.Profile.AgreementAccepted = in.AgreementAccepted
	if err := s.storage.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("Profile updated", zap.Int64("user_id", userID), zap.Int64("by", actor.ID))
	return u, nil
}

func (s *Service) SetAvatar(ctx context.Context, actor *domain.User, userID int64, file domain.Upload) (*domain.User, error) {
	if err := canEdit(actor, userID); err != nil {
		return nil, err
	}
	u, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	path, err := s.media.Save(ctx, fmt.Sprintf("users/user_%d/avatar", userID), file.Filename, file.Body)
	if err != nil {
		return nil, fmt.Errorf("save avatar: %w", err)
	}
	if err := s.storage.SetAvatar(ctx, userID, path); err != nil {
		s.removeMedia(path)
		return nil, err
	}
	if u.Profile == nil {
		u.Profile = &domain.Profile{UserID: userID}
	}
	if prev := u.Profile.Avatar; prev != "" {
		s.removeMedia(prev)
	}
	u.Profile.Avatar = path
	return u, nil
}

func (s *Service) removeMedia(path string) {
	if err := s.media.Remove(path); err != nil {
		s.logger.Warn("Can't remove media file", zap.String("path", path), zap.Error(err))
	}
}

func (s *Service) validateEmail(ctx context.Context, v *domain.ValidationError, email string, userID int64) error {
	if email == "" {
		return nil
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		v.Add("email", "enter a valid email address")
		return nil
	}
	taken, err := s.storage.EmailTaken(ctx, email, userID)
	if err != nil {
		return err
	}
	if taken {
		v.Add("email", "email must be unique")
	}
	return nil
}

func validateNames(v *domain.ValidationError, first, last string) {
	if utf8.RuneCountInString(first) > maxName {
		v.Add("first_name", "ensure this field has no more than 150 characters")
	}
	if utf8.RuneCountInString(last) > maxName {
		v.Add("last_name", "ensure this field has no more than 150 characters")
	}
}

func canEdit(actor *domain.User, userID int64) error {
	if actor == nil {
		return domain.ErrUnauthenticated
	}
	if !domain.CanEdit(actor, userID) {
		return domain.ErrPermissionDenied
	}
	return nil
}
