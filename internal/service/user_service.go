package service

import (
	"context"
	"proctor_backend/internal/model"
	"proctor_backend/internal/repository"
)

type UserService struct {
	Users  *repository.UserRepository
	Engine *repository.QueryEngine
	Guard  *AccessGuard
}

func NewUserService(users *repository.UserRepository, engine *repository.QueryEngine, guard *AccessGuard) *UserService {
	return &UserService{Users: users, Engine: engine, Guard: guard}
}

func (s *UserService) Get(ctx context.Context, actorID, userID uint) (*model.User, error) {
	if err := s.Guard.RequireSelfOrExaminer(ctx, actorID, userID); err != nil {
		return nil, err
	}
	return s.Users.FindByID(ctx, userID)
}

// List is examiner-only; examinees get just themselves.
func (s *UserService) List(ctx context.Context, actorID uint, p repository.ListParams) (repository.PageResult[model.User], error) {
	p, err := s.Guard.ScopeToSelf(ctx, actorID, p)
	if err != nil {
		return repository.PageResult[model.User]{}, err
	}
	return s.Engine.Users(ctx, p)
}
