package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinvia/teleconsulta/internal/app"
	"github.com/clinvia/teleconsulta/internal/config"
	"github.com/clinvia/teleconsulta/internal/domain"
)

type APIHandlers struct {
	Broker    *app.AccessBroker
	Lifecycle *app.Lifecycle
	Cfg       *config.Config
}

type createSessionRequest struct {
	AppointmentID int64 `json:"appointment_id"`
}

type createSessionResponse struct {
	RoomID         int64     `json:"room_id"`
	Title          string    `json:"title"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	ICEServers     []string  `json:"ice_servers"`
}

func (h *APIHandlers) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AppointmentID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid appointment_id"})
		return
	}
	s, err := h.Lifecycle.CreateSession(c.Request.Context(), domain.AppointmentID(req.AppointmentID), accountOf(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, createSessionResponse{
		RoomID:         int64(s.AppointmentID),
		Title:          s.Title,
		ScheduledStart: s.ScheduledStart,
		ScheduledEnd:   s.ScheduledEnd,
		ICEServers:     h.Cfg.ICEServers,
	})
}

func (h *APIHandlers) JoinInfo(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	info, err := h.Lifecycle.JoinInfo(c.Request.Context(), id, accountOf(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type issueInvitationRequest struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

func (h *APIHandlers) IssueInvitation(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	var req issueInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing invitee name"})
		return
	}
	invite, err := h.Broker.IssueGuestGrant(c.Request.Context(), id, accountOf(c), req.Name, domain.ParseRole(req.Role))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code":       invite.Code,
		"link":       invite.Link,
		"expires_at": invite.ExpiresAt,
		"valid_for":  "24 horas",
	})
}

type redeemRequest struct {
	Code string `json:"code"`
}

func (h *APIHandlers) RedeemInvitation(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	redeemed, err := h.Broker.RedeemGuestGrant(c.Request.Context(), req.Code)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": gin.H{
			"room_id":         int64(redeemed.Session.AppointmentID),
			"title":           redeemed.Session.Title,
			"doctor_name":     redeemed.DoctorName,
			"patient_name":    redeemed.PatientName,
			"scheduled_start": redeemed.Session.ScheduledStart,
		},
		"display_name":     redeemed.Participant.DisplayName,
		"role":             redeemed.Participant.Role,
		"connection_token": redeemed.Participant.ConnToken,
	})
}

type saveRecordingRequest struct {
	URL string `json:"url"`
}

func (h *APIHandlers) SaveRecording(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	var req saveRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url"})
		return
	}
	if err := h.Lifecycle.AttachRecordingAsset(c.Request.Context(), id, req.URL, accountOf(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetRecording answers "exists but empty" with has_recording=false,
// never with a 404.
func (h *APIHandlers) GetRecording(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	url, has, err := h.Lifecycle.RecordingAsset(c.Request.Context(), id, accountOf(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_recording": has, "url": url})
}

func sessionParam(c *gin.Context) (domain.AppointmentID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return 0, false
	}
	return domain.AppointmentID(id), true
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error(), "code": app.ErrorCode(err)})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
