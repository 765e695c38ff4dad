package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/smart-inventory/internal/dto"
	"github.com/flicky/smart-inventory/internal/model"
	"github.com/flicky/smart-inventory/internal/notify"
	"github.com/flicky/smart-inventory/internal/repository"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	msgInvalidSecurityAnswer = "invalid security question or answer"
	msgInvalidResetTicket    = "invalid or expired reset ticket"
)

type AuthConfig struct {
	JWTSecret       string
	JWTExpiry       time.Duration
	ResetTicketTTL  time.Duration
	ConfirmationTTL time.Duration
	PublicURL       string
}

type AuthService struct {
	userRepo  repository.UserRepository
	orderRepo repository.OrderRepository
	tokens    repository.TokenStore
	notifier  notify.Notifier
	verifier  SecondaryCredentialVerifier
	log       *slog.Logger
	cfg       AuthConfig
	now       func() time.Time
}

func NewAuthService(
	userRepo repository.UserRepository,
	orderRepo repository.OrderRepository,
	tokens repository.TokenStore,
	notifier notify.Notifier,
	verifier SecondaryCredentialVerifier,
	log *slog.Logger,
	cfg AuthConfig,
) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		orderRepo: orderRepo,
		tokens:    tokens,
		notifier:  notifier,
		verifier:  verifier,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest) (*model.User, error) {
	email := normalizeEmail(req.Email)
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if existing != nil {
		return nil, &ConflictError{Entity: "user", ID: email, Reason: "email already registered"}
	}
	if !isSecurityQuestion(req.SecurityQuestion) {
		return nil, NewValidationError("unknown security question")
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, NewValidationError("full name is required")
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:            email,
		Password:         hashed,
		FullName:         name,
		SecurityQuestion: req.SecurityQuestion,
		SecurityAnswer:   req.SecurityAnswer,
		Role:             model.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.sendConfirmation(ctx, user)
	return user, nil
}

// sendConfirmation never fails registration; the user can still log in.
func (s *AuthService) sendConfirmation(ctx context.Context, user *model.User) {
	ticket, err := s.tokens.IssueTicket(ctx, repository.TicketEmailConfirmation, user.ID, s.cfg.ConfirmationTTL)
	if err != nil {
		s.log.Error("issue confirmation ticket", "user_id", user.ID, "error", err)
		return
	}
	link := strings.TrimRight(s.cfg.PublicURL, "/") + "/api/v1/account/confirm-email?ticket=" + url.QueryEscape(ticket)
	body := fmt.Sprintf(`<p>Hello %s,</p><p>Please confirm your account by <a href="%s">clicking here</a>.</p>`,
		html.EscapeString(user.FullName), html.EscapeString(link))
	if err := s.notifier.SendEmail(ctx, user.Email, "Confirm your email", body); err != nil {
		s.log.Error("send confirmation email", "user_id", user.ID, "error", err)
	}
}

func (s *AuthService) ConfirmEmail(ctx context.Context, ticket string) error {
	userID, err := s.tokens.RedeemTicket(ctx, repository.TicketEmailConfirmation, ticket)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return NewValidationError("invalid or expired confirmation ticket")
		}
		return err
	}
	if err := s.userRepo.ConfirmEmail(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("user", userID)
		}
		return err
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &dto.AuthResponse{Token: token, ExpiresAt: expiresAt, User: dto.FromUser(user)}, nil
}

// Logout denies the token id until the token would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}
	return s.tokens.Revoke(ctx, tokenID, expiresAt.Sub(s.now()))
}

func (s *AuthService) generateToken(user *model.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.JWTExpiry)
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"jti":  uuid.NewString(),
		"exp":  expiresAt.Unix(),
		"iat":  now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	return token, expiresAt, err
}

// VerifySecurityAnswer issues a one-time reset ticket when email, question
// and answer all match. Unknown emails fail with the same message.
func (s *AuthService) VerifySecurityAnswer(ctx context.Context, email, question, answer string) (*dto.ForgotPasswordResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !s.verifier.Verify(user.SecurityQuestion, user.SecurityAnswer, question, answer) {
		return nil, NewValidationError(msgInvalidSecurityAnswer)
	}

	ticket, err := s.tokens.IssueTicket(ctx, repository.TicketPasswordReset, user.ID, s.cfg.ResetTicketTTL)
	if err != nil {
		return nil, err
	}
	return &dto.ForgotPasswordResponse{ResetTicket: ticket, ExpiresAt: s.now().Add(s.cfg.ResetTicketTTL)}, nil
}

// ResetPassword hashes first so a rejected password does not burn the ticket.
func (s *AuthService) ResetPassword(ctx context.Context, ticket, newPassword string) error {
	hashed, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	userID, err := s.tokens.RedeemTicket(ctx, repository.TicketPasswordReset, ticket)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return NewValidationError(msgInvalidResetTicket)
		}
		return err
	}
	return s.setPassword(ctx, userID, hashed)
}

func (s *AuthService) ChangePasswordWithSecurity(ctx context.Context, userID uuid.UUID, answer, newPassword string) error {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return err
	}
	if !s.verifier.Verify(user.SecurityQuestion, user.SecurityAnswer, user.SecurityQuestion, answer) {
		return NewValidationError(msgInvalidSecurityAnswer)
	}
	hashed, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, userID, hashed)
}

func (s *AuthService) setPassword(ctx context.Context, userID uuid.UUID, hashed string) error {
	if err := s.userRepo.UpdatePassword(ctx, userID, hashed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("user", userID)
		}
		return err
	}
	return nil
}

func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (*dto.ProfileResponse, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	orders, err := s.orderRepo.ListByCreator(ctx, user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return &dto.ProfileResponse{
		FullName:         user.FullName,
		Email:            user.Email,
		DateOfBirth:      user.DateOfBirth,
		Pronouns:         user.Pronouns,
		Address:          user.Address,
		SecurityQuestion: user.SecurityQuestion,
		Orders:           dto.FromOrders(orders),
	}, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, req dto.UpdateProfileRequest) (*model.User, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, NewValidationError("full name is required")
	}
	user.FullName = name
	user.Address = strings.TrimSpace(req.Address)
	user.Pronouns = strings.TrimSpace(req.Pronouns)
	user.DateOfBirth = nil
	if req.DateOfBirth != nil {
		dob := req.DateOfBirth.UTC()
		user.DateOfBirth = &dob
	}
	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

func (s *AuthService) AssignRole(ctx context.Context, userID uuid.UUID, role string) error {
	if role != model.RoleAdmin && role != model.RoleUser {
		return NewValidationError("unknown role")
	}
	if err := s.userRepo.SetRole(ctx, userID, role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("user", userID)
		}
		return err
	}
	// Tokens issued under the previous role stop working.
	if err := s.tokens.PinRole(ctx, userID, role, s.cfg.JWTExpiry); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// EnsureUser creates a confirmed account with the given role unless the email
// is already taken. It reports whether an account was created.
func (s *AuthService) EnsureUser(ctx context.Context, email, password, fullName, role string) (bool, error) {
	email = normalizeEmail(email)
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	if existing != nil {
		return false, nil
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return false, err
	}
	user := &model.User{
		Email:          email,
		Password:       hashed,
		FullName:       fullName,
		Role:           role,
		EmailConfirmed: true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return false, fmt.Errorf("create user: %w", err)
	}
	return true, nil
}

// hashPassword rejects passwords bcrypt cannot hash as a validation error.
func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", NewValidationError("password must be at most 72 bytes")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func (s *AuthService) requireUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, notFound("user", userID)
	}
	return user, nil
}

func isSecurityQuestion(q string) bool {
	for _, known := range SecurityQuestions {
		if q == known {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
