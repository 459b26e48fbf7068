package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"redgraph/models"
	"redgraph/store"
)

type RegisterInput struct {
	Name     string `validate:"required,max=64"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

type ProfileInput struct {
	Name  string `validate:"omitempty,max=64"`
	Email string `validate:"omitempty,email"`
}

// Profile is a user with their posts loaded in list order.
type Profile struct {
	*models.User
	Posts []*models.Post `json:"posts"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (user *models.User, err error) {
	const op = "Register"
	ctx, span := s.start(ctx, op)
	defer func() { finish(span, err) }()

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.check(op, in); err != nil {
		return nil, err
	}
	if taken, err := s.emailTaken(ctx, in.Email, ""); err != nil {
		return nil, storeError(op, "user", err)
	} else if taken {
		return nil, newError(op, KindInvalidArgument, "user already exists", nil)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, newError(op, KindInternal, "could not hash password", err)
	}
	now := s.now()
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Posts:        []string{},
		Following:    models.NewIDSet(),
		Followers:    models.NewIDSet(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, storeError(op, "user", err)
	}
	s.log.Info("user registered", "user", u.ID)
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (user *models.User, err error) {
	const op = "Login"
	ctx, span := s.start(ctx, op)
	defer func() { finish(span, err) }()

	if email == "" || password == "" {
		return nil, newError(op, KindInvalidArgument, "email and password are required", nil)
	}
	found, err := s.users.FindAll(ctx, store.UserFilter{Email: email})
	if err != nil {
		return nil, storeError(op, "user", err)
	}
	if len(found) == 0 {
		return nil, newError(op, KindUnauthorized, "invalid email or password", nil)
	}
	u := found[0]
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return nil, newError(op, KindUnauthorized, "invalid email or password", nil)
	}
	return u, nil
}

func (s *Service) UpdatePassword(ctx context.Context, actorID, oldPassword, newPassword string) (err error) {
	const op = "UpdatePassword"
	ctx, span := s.start(ctx, op, attribute.String("actor", actorID))
	defer func() { finish(span, err) }()

	if oldPassword == "" || newPassword == "" {
		return newError(op, KindInvalidArgument, "please provide old and new password", nil)
	}
	if len(newPassword) < 6 {
		return newError(op, KindInvalidArgument, "password must be at least 6 characters", nil)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return newError(op, KindInternal, "could not hash password", err)
	}

	_, err = s.updateUser(ctx, actorID, func(u *models.User) (bool, error) {
		if err := s.hasher.Compare(u.PasswordHash, oldPassword); err != nil {
			return false, newError(op, KindUnauthorized, "incorrect old password", nil)
		}
		u.PasswordHash = hash
		return true, nil
	})
	return storeError(op, "user", err)
}

// UpdateProfile changes name and email. Empty fields keep their value.
func (s *Service) UpdateProfile(ctx context.Context, actorID string, in ProfileInput) (user *models.User, err error) {
	const op = "UpdateProfile"
	ctx, span := s.start(ctx, op, attribute.String("actor", actorID))
	defer func() { finish(span, err) }()

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.check(op, in); err != nil {
		return nil, err
	}
	if in.Email != "" {
		if taken, err := s.emailTaken(ctx, in.Email, actorID); err != nil {
			return nil, storeError(op, "user", err)
		} else if taken {
			return nil, newError(op, KindInvalidArgument, "user already exists", nil)
		}
	}

	user, err = s.updateUser(ctx, actorID, func(u *models.User) (bool, error) {
		changed := false
		if in.Name != "" && in.Name != u.Name {
			u.Name = in.Name
			changed = true
		}
		if in.Email != "" && in.Email != u.Email {
			u.Email = in.Email
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		return nil, storeError(op, "user", err)
	}
	return user, nil
}

// Profile loads a user and their posts.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	const op = "Profile"
	u, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, storeError(op, "user", err)
	}
	posts, err := s.postsByID(ctx, u.Posts)
	if err != nil {
		return nil, storeError(op, "post", err)
	}
	return &Profile{User: u, Posts: posts}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.FindAll(ctx, store.UserFilter{})
	if err != nil {
		return nil, storeError("ListUsers", "user", err)
	}
	return users, nil
}

// ForgotPassword stores a fresh reset token hash on the user and sends the
// token to their email. If sending fails the token fields are cleared again,
// unless a newer request has replaced them meanwhile.
func (s *Service) ForgotPassword(ctx context.Context, email, resetURLBase string) (err error) {
	const op = "ForgotPassword"
	ctx, span := s.start(ctx, op)
	defer func() { finish(span, err) }()

	if strings.TrimSpace(email) == "" {
		return newError(op, KindInvalidArgument, "email is required", nil)
	}
	found, err := s.users.FindAll(ctx, store.UserFilter{Email: email})
	if err != nil {
		return storeError(op, "user", err)
	}
	if len(found) == 0 {
		return newError(op, KindNotFound, "user not found", nil)
	}
	id := found[0].ID

	token, hash, err := s.tokens.New()
	if err != nil {
		return newError(op, KindInternal, "could not create reset token", err)
	}
	expires := s.now().Add(s.opts.ResetTTL)
	u, err := s.updateUser(ctx, id, func(u *models.User) (bool, error) {
		u.ResetToken = hash
		u.ResetExpires = expires
		return true, nil
	})
	if err != nil {
		return storeError(op, "user", err)
	}

	msg := Message{
		To:      u.Email,
		Subject: "Reset Password",
		Body:    "Reset your password by clicking on the link below:\n\n" + strings.TrimRight(resetURLBase, "/") + "/" + token,
	}
	var sendErr error
	if s.notifier == nil {
		sendErr = errors.New("no notifier configured")
	} else {
		sendErr = s.notifier.Notify(ctx, msg)
	}
	if sendErr == nil {
		return nil
	}

	_, rerr := s.updateUser(context.WithoutCancel(ctx), id, func(u *models.User) (bool, error) {
		if u.ResetToken != hash {
			return false, nil
		}
		u.ClearReset()
		return true, nil
	})
	if rerr != nil {
		s.log.Error("reset token rollback failed", "user", id, "error", rerr)
	}
	return newError(op, KindDependencyFailure, "email could not be sent", sendErr)
}

// ResetPassword sets a new password for the holder of an unexpired token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	const op = "ResetPassword"
	ctx, span := s.start(ctx, op)
	defer func() { finish(span, err) }()

	if len(newPassword) < 6 {
		return newError(op, KindInvalidArgument, "password must be at least 6 characters", nil)
	}
	invalid := newError(op, KindUnauthorized, "token is invalid or has expired", nil)
	if token == "" {
		return invalid
	}

	hash := s.tokens.Hash(token)
	now := s.now()
	found, err := s.users.FindAll(ctx, store.UserFilter{ResetToken: hash, ResetAfter: now})
	if err != nil {
		return storeError(op, "user", err)
	}
	if len(found) == 0 {
		return invalid
	}

	pw, err := s.hasher.Hash(newPassword)
	if err != nil {
		return newError(op, KindInternal, "could not hash password", err)
	}
	_, err = s.updateUser(ctx, found[0].ID, func(u *models.User) (bool, error) {
		if u.ResetToken != hash || !u.ResetExpires.After(now) {
			return false, invalid
		}
		u.PasswordHash = pw
		u.ClearReset()
		return true, nil
	})
	return storeError(op, "user", err)
}

func (s *Service) emailTaken(ctx context.Context, email, exceptID string) (bool, error) {
	found, err := s.users.FindAll(ctx, store.UserFilter{Email: email})
	if err != nil {
		return false, err
	}
	for _, u := range found {
		if u.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) check(op string, v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		return newError(op, KindInvalidArgument, describe(ves[0]), err)
	}
	return newError(op, KindInvalidArgument, "invalid input", err)
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	}
	return field + " is invalid"
}
