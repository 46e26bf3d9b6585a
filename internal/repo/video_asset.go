package repo

import (
	"context"

	"TrainAI/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxListLimit = 100

type VideoAssetRepo struct {
	db *gorm.DB
}

func NewVideoAssetRepo(db *gorm.DB) *VideoAssetRepo {
	return &VideoAssetRepo{db: db}
}

// Record upserts the asset row of a finalized session. A repeated finalize of
// the same session updates the row instead of adding one.
func (r *VideoAssetRepo) Record(ctx context.Context, asset *model.VideoAsset) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"object_path", "public_url", "file_name", "content_type",
			"size", "chunk_count", "checksum", "updated_at",
		}),
	}).Create(asset).Error
}

// ListByOwner returns the newest assets of ownerID first.
func (r *VideoAssetRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.VideoAsset, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	var assets []model.VideoAsset
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&assets).Error
	return assets, err
}
