// Package notify delivers messages over the WhatsApp gateway and SMTP and
// keeps the wa_logs audit trail.
package notify

import (
	"context"
	"errors"
	"strings"

	"bitbucket.org/easyadvisor/fingov_backend/models"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
)

var ErrInvalidRecipient = errors.New("to is not a valid phone number")

type Notifier struct {
	WhatsApp *WhatsAppClient
	Email    *EmailSender
}

func NewNotifier() *Notifier {
	return &Notifier{
		WhatsApp: NewWhatsAppClient(),
		Email:    NewEmailSender(),
	}
}

func (n *Notifier) SendWhatsApp(ctx context.Context, to string, message string) error {
	return n.WhatsApp.Send(ctx, to, message)
}

func (n *Notifier) SendEmail(ctx context.Context, to string, subject string, body string) error {
	return n.Email.Send(ctx, to, subject, body)
}

type SendRequest struct {
	To          string `json:"to" form:"to"`
	Message     string `json:"message" form:"message"`
	TemplateKey string `json:"template_key" form:"template_key"`
	DeviceId    string `json:"device_id" form:"device_id"`
}

// SendLogged validates the recipient, sends through the gateway and records
// the attempt in wa_logs whatever the outcome.
func (n *Notifier) SendLogged(ctx context.Context, req SendRequest) error {
	to, err := utils.NormalizePhone(strings.TrimSpace(req.To), utils.DefaultRegion())
	if err != nil {
		return ErrInvalidRecipient
	}

	sendErr := n.WhatsApp.Send(ctx, to, req.Message)

	deviceId := strings.TrimSpace(req.DeviceId)
	if deviceId == "" {
		deviceId, _ = utils.GetDeviceIdFromContext(ctx)
	}
	row := models.WaLog{
		ToNumber:    to,
		Message:     req.Message,
		TemplateKey: strings.TrimSpace(req.TemplateKey),
		DeviceId:    deviceId,
		Result:      models.WaLogResultOk,
	}
	if sendErr != nil {
		row.Result = models.WaLogResultFailed
		row.Error = sendErr.Error()
	}
	models.RecordWaLog(ctx, row)

	return sendErr
}
