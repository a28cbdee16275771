package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	paymentlinkdomain "github.com/smallbiznis/dongi/internal/paymentlink/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestHasPaidAndDeleteForEvent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&paymentlinkdomain.PaymentLink{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	eventID := node.Generate()
	otherEventID := node.Generate()
	now := time.Now().UTC()

	links := []paymentlinkdomain.PaymentLink{
		{ID: node.Generate(), EventID: eventID, PayorUserID: node.Generate(), Token: "a", LockedAmountIrr: 100, Status: paymentlinkdomain.StatusOpen, CreatedAt: now},
		{ID: node.Generate(), EventID: otherEventID, PayorUserID: node.Generate(), Token: "b", LockedAmountIrr: 100, Status: paymentlinkdomain.StatusPaid, CreatedAt: now},
	}
	require.NoError(t, db.Create(&links).Error)

	r := Provide()
	ctx := context.Background()

	paid, err := r.HasPaid(ctx, db, eventID)
	require.NoError(t, err)
	require.False(t, paid)

	paid, err = r.HasPaid(ctx, db, otherEventID)
	require.NoError(t, err)
	require.True(t, paid)

	deleted, err := r.DeleteForEvent(ctx, db, eventID)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, db.Model(&paymentlinkdomain.PaymentLink{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)
}
