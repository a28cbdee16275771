package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	menudomain "github.com/smallbiznis/dongi/internal/menu/domain"
	participantdomain "github.com/smallbiznis/dongi/internal/participant/domain"
	selectiondomain "github.com/smallbiznis/dongi/internal/selection/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() selectiondomain.Repository {
	return &repo{}
}

func (r *repo) MenuItemInEvent(ctx context.Context, db *gorm.DB, eventID, menuItemID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&menudomain.MenuItem{}).
		Joins("JOIN menus ON menus.id = menu_items.menu_id").
		Where("menu_items.id = ? AND menus.event_id = ?", menuItemID, eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) CountManaged(ctx context.Context, db *gorm.DB, eventID, userID snowflake.ID, participantIDs []snowflake.ID) (int64, error) {
	if len(participantIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := db.WithContext(ctx).
		Model(&participantdomain.EventParticipant{}).
		Where("event_id = ? AND managing_user_id = ?", eventID, userID).
		Where("participant_id IN ?", participantIDs).
		Count(&count).Error
	return count, err
}

func (r *repo) ReplaceAllocations(ctx context.Context, db *gorm.DB, selectionID snowflake.ID, allocations []selectiondomain.SelectionAllocation) error {
	tx := db.WithContext(ctx)
	if err := tx.Where("selection_id = ?", selectionID).Delete(&selectiondomain.SelectionAllocation{}).Error; err != nil {
		return err
	}
	if len(allocations) == 0 {
		return nil
	}
	return tx.Create(&allocations).Error
}

func (r *repo) DeleteSelection(ctx context.Context, db *gorm.DB, selectionID snowflake.ID) error {
	tx := db.WithContext(ctx)
	if err := tx.Where("selection_id = ?", selectionID).Delete(&selectiondomain.SelectionAllocation{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", selectionID).Delete(&selectiondomain.Selection{}).Error
}
