package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/beariot/beariot/internal/config"
	"github.com/beariot/beariot/pkg/models"
)

// LineNotifier pushes alarms to LINE Notify, using the channel token stored
// on the device record.
type LineNotifier struct {
	endpoint string
	client   *http.Client
}

// NewLineNotifier creates a LINE notifier against the given endpoint.
func NewLineNotifier(endpoint string) *LineNotifier {
	return &LineNotifier{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the notifier name.
func (n *LineNotifier) Name() string {
	return "line"
}

// Notify pushes the alarm message.
func (n *LineNotifier) Notify(device *models.Device, event *Event) error {
	if device.LineChannel == "" {
		return nil
	}

	form := url.Values{}
	form.Set("message", fmt.Sprintf("[%s] %s: %s", event.Critical, event.TagLabel, event.Message))

	req, err := http.NewRequest("POST", n.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+device.LineChannel)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("line returned status %d", resp.StatusCode)
	}
	return nil
}

// EmailNotifier sends alarms over SMTP using the sender account stored on
// the device record.
type EmailNotifier struct {
	host string
	port int
}

// NewEmailNotifier creates an SMTP notifier.
func NewEmailNotifier(cfg config.AlertsConfig) *EmailNotifier {
	return &EmailNotifier{host: cfg.SMTPHost, port: cfg.SMTPPort}
}

// Name returns the notifier name.
func (n *EmailNotifier) Name() string {
	return "email"
}

// Notify sends the alarm mail.
func (n *EmailNotifier) Notify(device *models.Device, event *Event) error {
	if n.host == "" || device.EmailFrom == "" || device.EmailTo == "" {
		return nil
	}

	subject := event.Title
	if subject == "" {
		subject = fmt.Sprintf("Alarm: %s %s", device.Name, event.TagLabel)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n[%s] %s (value %g, setpoints %g..%g)\r\n",
		device.EmailFrom, device.EmailTo, subject,
		event.Critical, event.Message, event.Value, event.SpLow, event.SpHigh)

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	auth := smtp.PlainAuth("", device.EmailFrom, device.EmailPwd, n.host)
	return smtp.SendMail(addr, auth, device.EmailFrom, []string{device.EmailTo}, []byte(msg))
}

// WebhookNotifier posts every alarm to a fixed webhook.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		headers: cfg.Headers,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Notify posts the alarm event as JSON.
func (n *WebhookNotifier) Notify(device *models.Device, event *Event) error {
	if n.url == "" {
		return nil
	}

	payload := struct {
		EventType string `json:"event_type"`
		Device    string `json:"device"`
		Event     *Event `json:"event"`
	}{
		EventType: "alarm",
		Device:    device.ID,
		Event:     event,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range n.headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// ConsoleNotifier prints alarms to stdout (for development).
type ConsoleNotifier struct{}

// NewConsoleNotifier creates a console notifier.
func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

// Name returns the notifier name.
func (n *ConsoleNotifier) Name() string {
	return "console"
}

// Notify prints the alarm.
func (n *ConsoleNotifier) Notify(device *models.Device, event *Event) error {
	fmt.Printf("[ALARM] [%s] %s/%s: %s (value %g)\n",
		event.Critical, device.ID, event.TagLabel, event.Message, event.Value)
	return nil
}
