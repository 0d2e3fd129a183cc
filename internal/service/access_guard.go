package service

import (
	"context"
	"errors"
	"proctor_backend/internal/model"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/util"
	"strconv"
)

// AccessGuard answers the role and ownership questions asked before any
// listing or recording change. Roles are read from the store, never from
// the token.
type AccessGuard struct {
	Users *repository.UserRepository
}

func NewAccessGuard(users *repository.UserRepository) *AccessGuard {
	return &AccessGuard{Users: users}
}

func (g *AccessGuard) lookup(ctx context.Context, userID uint) (*model.User, error) {
	if userID == 0 {
		return nil, nil
	}
	user, err := g.Users.FindByID(ctx, userID)
	if errors.Is(err, util.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (g *AccessGuard) IsExaminer(ctx context.Context, userID uint) (bool, error) {
	user, err := g.lookup(ctx, userID)
	if err != nil || user == nil {
		return false, err
	}
	return user.IsExaminer, nil
}

func (g *AccessGuard) IsRegisteredUser(ctx context.Context, userID uint) (bool, error) {
	user, err := g.lookup(ctx, userID)
	return user != nil, err
}

func IsSelf(authenticatedID, requestedID uint) bool {
	return authenticatedID != 0 && requestedID != 0 && authenticatedID == requestedID
}

func (g *AccessGuard) RequireExaminer(ctx context.Context, userID uint) error {
	ok, err := g.IsExaminer(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return util.NewForbiddenError("examiner role required")
	}
	return nil
}

func (g *AccessGuard) RequireRegisteredUser(ctx context.Context, userID uint) error {
	ok, err := g.IsRegisteredUser(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return util.NewForbiddenError("registered user required")
	}
	return nil
}

// RequireSelfOrExaminer lets a user act on their own data and examiners on anyone's.
func (g *AccessGuard) RequireSelfOrExaminer(ctx context.Context, actorID, ownerID uint) error {
	if IsSelf(actorID, ownerID) {
		return g.RequireRegisteredUser(ctx, actorID)
	}
	ok, err := g.IsExaminer(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return util.NewForbiddenError("not allowed to access another user's data")
	}
	return nil
}

// ScopeToSelf pins a listing to the actor's own user_id unless the actor is
// an examiner. Asking for someone else's rows is refused, not emptied.
func (g *AccessGuard) ScopeToSelf(ctx context.Context, actorID uint, p repository.ListParams) (repository.ListParams, error) {
	user, err := g.lookup(ctx, actorID)
	if err != nil {
		return p, err
	}
	if user == nil {
		return p, util.NewForbiddenError("registered user required")
	}
	if user.IsExaminer {
		return p, nil
	}
	self := strconv.FormatUint(uint64(actorID), 10)
	if requested, ok := p.Filters["user_id"]; ok && requested != "" && requested != self {
		return p, util.NewForbiddenError("not allowed to list another user's data")
	}
	return p.WithFilter("user_id", self), nil
}
