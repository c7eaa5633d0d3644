package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/starfire-ai/kbase/internal/pkg/response"
	"github.com/starfire-ai/kbase/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type ticketRequest struct {
	ClientID string `json:"client_id"`
}

// Ticket issues a short-lived websocket ticket to an API-key-authenticated
// caller.
func (h *AuthHandler) Ticket(c *gin.Context) {
	var req ticketRequest
	_ = c.ShouldBindJSON(&req)
	ticket, err := h.auth.IssueTicket(req.ClientID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ticket": ticket})
}
