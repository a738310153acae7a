package notify

import (
	"context"
	"encoding/json"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/segmentio/kafka-go"

	"cpcal/internal/config"
	appLog "cpcal/internal/log"
	"cpcal/internal/model"
)

// WebhookNotifier POSTs the reminder as JSON.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{client: client, url: url}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

// WebhookPayload is the body sent to the webhook.
type WebhookPayload struct {
	model.Reminder
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (w *WebhookNotifier) Notify(ctx context.Context, r model.Reminder) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(WebhookPayload{Reminder: r, Subject: r.Subject(), Body: r.Body()}).
		Post(w.url)
	if err != nil {
		return errors.Wrap(err, "webhook request")
	}
	if resp.IsError() {
		return errors.Errorf("webhook returned %d", resp.StatusCode())
	}
	return nil
}

// KafkaNotifier publishes reminders to a topic keyed by contest id.
type KafkaNotifier struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	logger := appLog.Logger()
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			Logger:       kafka.LoggerFunc(logger.Debug),
			ErrorLogger:  kafka.LoggerFunc(logger.Error),
		},
		topic: topic,
	}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

func (k *KafkaNotifier) Notify(ctx context.Context, r model.Reminder) error {
	value, err := json.Marshal(WebhookPayload{Reminder: r, Subject: r.Subject(), Body: r.Body()})
	if err != nil {
		return errors.Wrap(err, "encode reminder")
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.ContestID),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "reminder-id", Value: []byte(r.ID)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "write to kafka topic %s", k.topic)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// TelegramNotifier sends reminders to a single chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier authenticates the bot. An empty endpoint uses the
// public Bot API.
func NewTelegramNotifier(token string, chatID int64, endpoint string) (*TelegramNotifier, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Notify(_ context.Context, r model.Reminder) error {
	text := "🔔 " + r.Subject() + "\n\n" + r.Body()
	if r.URL != "" {
		text += "\n" + r.URL
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "send telegram message")
	}
	return nil
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails reminders that carry a recipient address.
type EmailNotifier struct {
	cfg  config.SMTPConfig
	send SendMailFunc
}

func NewEmailNotifier(cfg config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Notify(_ context.Context, r model.Reminder) error {
	if r.Email == "" {
		return nil
	}

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	if err := e.send(addr, auth, e.cfg.From, []string{r.Email}, EmailMessage(e.cfg.From, r)); err != nil {
		return errors.Wrap(err, "send email")
	}
	return nil
}

// EmailMessage renders an RFC 5322 plain-text message.
func EmailMessage(from string, r model.Reminder) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + r.Email + "\r\n")
	b.WriteString("Subject: " + r.Subject() + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(r.Body() + "\r\n")
	if r.URL != "" {
		b.WriteString("\r\n" + r.URL + "\r\n")
	}
	return []byte(b.String())
}
