package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"proctor_backend/internal/config"
	"proctor_backend/internal/model"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/util"
	"proctor_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
	}
}

type RegisterInput struct {
	UserID             uint   `json:"user_id"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Password           string `json:"password"`
	ExaminerPassphrase string `json:"examiner_passphrase"`
	AuthImage          string `json:"auth_image"`
}

type LoginResult struct {
	UserID     uint   `json:"user_id"`
	IsExaminer bool   `json:"is_examiner"`
	Token      string `json:"token"`
}

// Register creates a user. A correct examiner passphrase grants the examiner
// role; a wrong one fails the whole registration.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	var missing []string
	if in.UserID == 0 {
		missing = append(missing, "user_id")
	}
	if in.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if in.LastName == "" {
		missing = append(missing, "last_name")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, util.NewMissingFieldsError(missing...)
	}

	isExaminer := false
	if in.ExaminerPassphrase != "" {
		want := s.Cfg.Proctoring.ExaminerPassphrase
		if want == "" || subtle.ConstantTimeCompare([]byte(in.ExaminerPassphrase), []byte(want)) != 1 {
			return nil, util.ErrInvalidPassphrase
		}
		isExaminer = true
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		UserID:     in.UserID,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Password:   string(hashedPassword),
		IsExaminer: isExaminer,
		AuthImage:  in.AuthImage,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		if errors.Is(err, util.ErrConflict) {
			return nil, util.NewConflictError("user_id is already registered", in.UserID)
		}
		return nil, err
	}

	logger.Log.Info("User registered", zap.Uint("userId", user.UserID), zap.Bool("examiner", user.IsExaminer))
	return user, nil
}

// Authenticate checks a user_id/password pair.
func (s *AuthService) Authenticate(ctx context.Context, userID uint, password string) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, userID uint, password string) (*LoginResult, error) {
	if userID == 0 || password == "" {
		return nil, util.ErrInvalidCredentials
	}
	user, err := s.Authenticate(ctx, userID, password)
	if err != nil {
		return nil, err
	}

	token, err := util.GenerateJWT(user.UserID, user.IsExaminer, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &LoginResult{UserID: user.UserID, IsExaminer: user.IsExaminer, Token: token}, nil
}

// DecodeToken returns the user a bearer token was issued to.
func (s *AuthService) DecodeToken(token string) (uint, error) {
	claims, err := util.ParseJWT(token, s.Cfg.JWT.Secret)
	if err != nil || claims.UserID == 0 {
		return 0, util.ErrUnauthorized
	}
	return claims.UserID, nil
}
