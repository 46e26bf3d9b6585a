package service

import (
	"context"

	"TrainAI/internal/apperr"
	"TrainAI/model"

	"github.com/go-faster/errors"
)

const (
	defaultVideoLimit = 20
	maxVideoLimit     = 100
)

type VideoService struct {
	assets AssetRepository
}

func NewVideoService(assets AssetRepository) *VideoService {
	return &VideoService{assets: assets}
}

// ListVideos returns the caller's finalized recordings, newest first.
func (s *VideoService) ListVideos(ctx context.Context, owner model.Owner, limit int) ([]model.VideoAsset, error) {
	if owner.ID == "" {
		return nil, apperr.Authf("unauthorized")
	}
	switch {
	case limit <= 0:
		limit = defaultVideoLimit
	case limit > maxVideoLimit:
		limit = maxVideoLimit
	}
	videos, err := s.assets.ListByOwner(ctx, owner.ID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list videos")
	}
	if videos == nil {
		videos = []model.VideoAsset{}
	}
	return videos, nil
}
