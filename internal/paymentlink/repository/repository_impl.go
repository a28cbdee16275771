package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	paymentlinkdomain "github.com/smallbiznis/dongi/internal/paymentlink/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentlinkdomain.Repository {
	return &repo{}
}

func (r *repo) HasPaid(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&paymentlinkdomain.PaymentLink{}).
		Where("event_id = ? AND status = ?", eventID, paymentlinkdomain.StatusPaid).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) DeleteForEvent(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&paymentlinkdomain.PaymentLink{})
	return res.RowsAffected, res.Error
}
