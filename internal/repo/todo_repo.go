package repo

import (
	"context"
	"errors"

	dom "mdtodo/internal/domain"
)

var (
	ErrNotFound        = errors.New("todo not found")
	ErrInvalidPosition = errors.New("invalid position")
)

type TodoRepo interface {
	Create(ctx context.Context, t dom.Todo) (dom.Todo, error)
	GetByID(ctx context.Context, id string) (dom.Todo, error)
	List(ctx context.Context) ([]dom.Todo, error)
	Update(ctx context.Context, id string, patch Patch) (dom.Todo, error)
	Delete(ctx context.Context, id string) error
	Move(ctx context.Context, srcSection dom.Section, srcIndex int, dstSection dom.Section, dstIndex int) ([]dom.Todo, error)
}

// Patch is a partial update. Nil fields are left unchanged; an empty DueDate clears it.
type Patch struct {
	Title     *string
	Content   *string
	Completed *bool
	Priority  *dom.Priority
	Tags      *[]string
	Section   *dom.Section
	DueDate   *string
}
