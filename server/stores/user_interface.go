package stores

import (
	"context"
	"errors"

	"github.com/secretlify/cryptly/pkg/model"
)

var ErrUserExists = errors.New("user already exists")
var ErrUserNotFound = errors.New("user not found")

// UserStore is the directory of platform accounts and their registered
// sealed-box public keys.
type UserStore interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, id model.UserID) (*model.User, error)
	UpdateUser(ctx context.Context, id model.UserID, updateFn func(model.User) (model.User, error)) error
	DeleteUser(ctx context.Context, id model.UserID) error
	ListUsers(ctx context.Context) ([]model.User, error)
}
