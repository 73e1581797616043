package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/database/models"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type Service struct {
	db  *gorm.DB
	jwt *JWTService
}

func NewService(db *gorm.DB, jwt *JWTService) *Service {
	return &Service{db: db, jwt: jwt}
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// CompleteSignIn upserts the user behind an identity provider profile and
// issues a session token. Users are matched by provider subject first, then
// by email, so an invited address links to the account that signs in with it.
func (s *Service) CompleteSignIn(ctx context.Context, provider string, info *UserInfo) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(info.Email))
	if email == "" {
		return nil, ErrNoEmail
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("provider = ? AND provider_subject = ?", provider, info.Subject).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = tx.Where("email = ?", email).First(&user).Error
		}
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{
				Email:           email,
				Name:            info.Name,
				AvatarURL:       info.Picture,
				Provider:        provider,
				ProviderSubject: info.Subject,
			}
			return tx.Create(&user).Error
		case err != nil:
			return err
		}

		user.Provider = provider
		user.ProviderSubject = info.Subject
		if info.Name != "" {
			user.Name = info.Name
		}
		if info.Picture != "" {
			user.AvatarURL = info.Picture
		}
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User:  &user,
	}, nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
