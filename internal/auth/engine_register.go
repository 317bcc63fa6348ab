package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/wayfinder-app/wayfinder/internal/mail"
	"github.com/wayfinder-app/wayfinder/internal/model"
	"github.com/wayfinder-app/wayfinder/internal/repository"
	"github.com/wayfinder-app/wayfinder/internal/validation"
)

// RegisterRequest is a new account submission.
type RegisterRequest struct {
	Email    string
	Username string
	Password string
}

// Register validates the submission, stores the account and fires the
// welcome email. Field problems come back as validation.Errors.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	if errs := validation.Run(
		validation.FieldCheck{Field: "email", Check: func() error { return validation.Email(req.Email) }},
		validation.FieldCheck{Field: "username", Check: func() error { return validation.Username(req.Username) }},
		validation.FieldCheck{Field: "password", Check: func() error { return e.cfg.PasswordPolicy.Password(req.Password) }},
	); errs != nil {
		return nil, errs
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	user := &model.User{
		Email:        strings.TrimSpace(req.Email),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, ErrBackendUnavailable
	}

	e.sendMail(mail.Message{
		To:      user.Email,
		Subject: "Welcome to WayFinder",
		Body: "Hi " + user.Username + ",\n\n" +
			"Your WayFinder account is ready. Sign in to start planning routes.\n",
	})
	e.emitAudit(ctx, auditRegister, user.ID, "", true, nil, nil)
	return user, nil
}

// Profile returns the account record for an authenticated user ID.
func (e *Engine) Profile(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, ErrBackendUnavailable
	}
	return user, nil
}
