package services

import (
	"context"

	"github.com/yoockh/meetsense/internal/models"
	mongorepo "github.com/yoockh/meetsense/internal/repositories/mongo"
	"github.com/yoockh/meetsense/internal/utils"
)

// BufferService exposes audio held back while a session ran degraded.
type BufferService interface {
	Pending(ctx context.Context, sessionID string, limit int64) ([]models.AudioBufferDoc, error)
}

type bufferService struct {
	buffers mongorepo.BufferRepository
}

func NewBufferService(buffers mongorepo.BufferRepository) BufferService {
	return &bufferService{buffers: buffers}
}

func (s *bufferService) Pending(ctx context.Context, sessionID string, limit int64) ([]models.AudioBufferDoc, error) {
	const op = "BufferService.Pending"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	out, err := s.buffers.ListPending(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list buffered audio", err)
	}
	if out == nil {
		out = []models.AudioBufferDoc{}
	}
	return out, nil
}
