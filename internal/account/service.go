package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/co2market/auth-service/pkg/core/logger"
	"github.com/co2market/auth-service/pkg/outbox"
	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Summary, error)
	Login(ctx context.Context, req LoginRequest) (*Summary, error)
}

type service struct {
	repo      Repository
	txManager persistence.TxManager
	writer    outbox.Writer
	log       *zap.Logger
	hashCost  int
	now       func() time.Time
	newID     func() string
}

func NewService(repo Repository, txManager persistence.TxManager, writer outbox.Writer, log *zap.Logger) Service {
	return newService(repo, txManager, writer, log, bcrypt.DefaultCost)
}

func newService(repo Repository, txManager persistence.TxManager, writer outbox.Writer, log *zap.Logger, hashCost int) *service {
	return &service{
		repo:      repo,
		txManager: txManager,
		writer:    writer,
		log:       log.With(zap.String("component", "account")),
		hashCost:  hashCost,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*Summary, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	summary, err := persistence.InTx(ctx, s.txManager, func(txCtx context.Context) (*Summary, error) {
		if taken, err := s.repo.ExistsByUsername(txCtx, req.Username); err != nil {
			return nil, err
		} else if taken {
			return nil, ErrUsernameTaken
		}
		if taken, err := s.repo.ExistsByEmail(txCtx, req.Email); err != nil {
			return nil, err
		} else if taken {
			return nil, ErrEmailTaken
		}

		u := newUser(req, string(hash), s.newID(), s.now().UTC())
		if err := s.repo.Create(txCtx, u); err != nil {
			return nil, err
		}

		eventID, err := s.writer.RecordEvent(txCtx, EventTypeRegistered, RoutingKeyRegistered, registeredEvent(u))
		if err != nil {
			return nil, fmt.Errorf("failed to record registration event: %w", err)
		}
		return u.summary(eventID), nil
	})
	if err != nil {
		return nil, err
	}

	logger.Get(ctx).Info("user registered",
		zap.String("user_id", summary.ID),
		zap.String("role", string(summary.Role)),
		zap.String("event_id", summary.EventID),
	)
	return summary, nil
}

func newUser(req RegisterRequest, hash, id string, now time.Time) *User {
	u := &User{
		ID:           id,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		Enabled:      true, // no email verification flow yet
		PhoneNumber:  req.PhoneNumber,
		Region:       req.Region,
		CreatedAt:    now,
	}
	switch req.Role {
	case RoleEVOwner:
		u.VehicleMake = req.VehicleMake
		u.VehicleModel = req.VehicleModel
		u.VehicleLicensePlate = req.LicensePlate
	case RoleCCBuyer:
		u.OrganizationName = req.OrganizationName
		u.TaxID = req.TaxID
	case RoleCVA:
		u.CertificationAgency = req.CertificationAgency
		u.LicenseNumber = req.LicenseNumber
	}
	return u
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*Summary, error) {
	identifier := strings.TrimSpace(req.Username)
	if identifier == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	summary, err := persistence.InTx(ctx, s.txManager, func(txCtx context.Context) (*Summary, error) {
		u, err := s.lookup(txCtx, identifier)
		if err != nil {
			return nil, err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
			return nil, ErrInvalidCredentials
		}
		if !u.Enabled {
			return nil, ErrAccountDisabled
		}

		at := s.now().UTC()
		if err := s.repo.UpdateLastLogin(txCtx, u.ID, at); err != nil {
			return nil, err
		}
		u.LastLoginAt = &at

		eventID, err := s.writer.RecordEvent(txCtx, EventTypeLogin, RoutingKeyLoggedIn, loggedInEvent(u, req.IPAddress, req.UserAgent))
		if err != nil {
			return nil, fmt.Errorf("failed to record login event: %w", err)
		}
		return u.summary(eventID), nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.log.Debug("login rejected", zap.String("ip_address", req.IPAddress))
		}
		return nil, err
	}

	logger.Get(ctx).Info("user logged in", zap.String("user_id", summary.ID), zap.String("event_id", summary.EventID))
	return summary, nil
}

func (s *service) lookup(ctx context.Context, identifier string) (*User, error) {
	var (
		u   *User
		err error
	)
	if strings.Contains(identifier, "@") {
		u, err = s.repo.FindByEmail(ctx, strings.ToLower(identifier))
	} else {
		u, err = s.repo.FindByUsername(ctx, identifier)
	}
	if errors.Is(err, persistence.ErrEntityNotFound) {
		return nil, ErrInvalidCredentials
	}
	return u, err
}
