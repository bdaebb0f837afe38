package users

import (
	"context"

	"github.com/dmitrijs2005/flagkeeper/internal/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, uid string) (*models.User, error)
	IsPrivileged(ctx context.Context, uid string) (bool, error)
}
