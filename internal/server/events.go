package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
)

type eventView struct {
	ID                    string                 `json:"id"`
	Name                  string                 `json:"name"`
	HostUserID            string                 `json:"hostUserId,omitempty"`
	State                 eventdomain.EventState `json:"state"`
	PayorExemptionEnabled bool                   `json:"payorExemptionEnabled"`
	StartsAt              time.Time              `json:"startsAt"`
	CutoffAt              time.Time              `json:"cutoffAt"`
	UpdatedAt             time.Time              `json:"updatedAt"`
}

func newEventView(ev *eventdomain.Event) eventView {
	view := eventView{
		ID:                    ev.ID.String(),
		Name:                  ev.Name,
		State:                 ev.State,
		PayorExemptionEnabled: ev.PayorExemptionEnabled,
		StartsAt:              ev.StartsAt.UTC(),
		CutoffAt:              ev.CutoffAt.UTC(),
		UpdatedAt:             ev.UpdatedAt.UTC(),
	}
	if ev.HostUserID != 0 {
		view.HostUserID = ev.HostUserID.String()
	}
	return view
}

type stateRequest struct {
	TargetState string `json:"targetState" binding:"required"`
}

func (s *Server) GetEvent(c *gin.Context) {
	ev, err := s.eventSvc.Get(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newEventView(ev)})
}

func (s *Server) PreviewCharges(c *gin.Context) {
	result, err := s.chargeSvc.ComputeEventCharges(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListCharges(c *gin.Context) {
	charges, err := s.chargeSvc.ListEventCharges(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": charges})
}

func (s *Server) TransitionEvent(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.eventSvc.Transition(c.Request.Context(), c.Param("eventId"), req.TargetState)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) SetEventState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.eventSvc.SetState(c.Request.Context(), c.Param("eventId"), req.TargetState)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
