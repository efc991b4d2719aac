package notify

import (
	"errors"
	"net/http"
	"strings"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"github.com/gin-gonic/gin"
)

// SendWhatsAppHandler accepts JSON or form fields.
func SendWhatsAppHandler(n *Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SendRequest
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Message) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to and message are required"})
			return
		}

		err := n.SendLogged(c.Request.Context(), req)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "sent", "mock": n.WhatsApp.Mock()})
		case errors.Is(err, ErrInvalidRecipient):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			config.LogError(config.GetLogger(), "notify", "SendWhatsAppHandler", "gateway send", req.To, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": ErrGatewayFailed.Error()})
		}
	}
}
