package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Entry struct {
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

type Service interface {
	AuditLog(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter ListFilter) ([]AuditLog, error)
}

var ErrInvalidAction = errors.New("invalid_action")
