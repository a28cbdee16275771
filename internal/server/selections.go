package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	selectiondomain "github.com/smallbiznis/dongi/internal/selection/domain"
)

type selectionView struct {
	ID              string    `json:"id"`
	EventID         string    `json:"eventId"`
	MenuItemID      string    `json:"menuItemId"`
	Quantity        int64     `json:"quantity"`
	CreatedByUserID string    `json:"createdByUserId"`
	Note            *string   `json:"note,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func newSelectionView(sel *selectiondomain.Selection) selectionView {
	return selectionView{
		ID:              sel.ID.String(),
		EventID:         sel.EventID.String(),
		MenuItemID:      sel.MenuItemID.String(),
		Quantity:        sel.Quantity,
		CreatedByUserID: sel.CreatedByUserID.String(),
		Note:            sel.Note,
		UpdatedAt:       sel.UpdatedAt.UTC(),
	}
}

func (s *Server) CreateSelection(c *gin.Context) {
	var req selectiondomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.EventID = c.Param("eventId")
	req.ActorUserID = actorID(c)

	sel, err := s.selectionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": newSelectionView(sel)})
}

func (s *Server) UpdateSelection(c *gin.Context) {
	var req selectiondomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.SelectionID = c.Param("selectionId")
	req.ActorUserID = actorID(c)

	sel, err := s.selectionSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newSelectionView(sel)})
}

func (s *Server) DeleteSelection(c *gin.Context) {
	err := s.selectionSvc.Delete(c.Request.Context(), selectiondomain.DeleteRequest{
		SelectionID: c.Param("selectionId"),
		ActorUserID: actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
