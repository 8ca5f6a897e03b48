package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wneessen/go-mail"
)

// SMTPConfig carries the delivery settings for the email consumer. When
// User or Password is empty the consumer logs and drops messages instead of
// attempting delivery, mirroring an unconfigured development environment.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// SMTPConfigFromEnv reads delivery settings from the environment.
func SMTPConfigFromEnv() SMTPConfig {
	port := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}
	from := os.Getenv("EMAIL_FROM")
	if from == "" {
		from = "noreply@fitgate.local"
	}
	return SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     port,
		User:     os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     from,
		FromName: os.Getenv("EMAIL_FROM_NAME"),
	}
}

// StartEmailConsumer connects to RabbitMQ, declares the durable
// email.outbound queue and delivers each event over SMTP. It runs a
// reconnect loop with backoff and keeps running across broker restarts;
// per-message failures are logged and the message is rejected without
// requeue so a bad address cannot wedge the queue.
func StartEmailConsumer(cfg SMTPConfig, log *slog.Logger) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(brokerURL())
		if err != nil {
			log.Warn("email consumer: dial failed", "err", err, "retry_in", backoff.String())
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := consumeEmails(conn, cfg, log); err != nil {
			log.Warn("email consumer: consume loop ended", "err", err)
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeEmails(conn *amqp.Connection, cfg SMTPConfig, log *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		log.Warn("email consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(emailQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(emailQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := deliver(d.Body, cfg, log); err != nil {
			log.Error("email consumer: delivery failed", "err", err)
			_ = d.Nack(false, false) // do not requeue, avoids tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// render produces the subject and HTML body for an event kind.
func render(ev EmailRequested) (subject, body string, err error) {
	switch ev.Kind {
	case EmailVerification:
		return "Verify your email address",
			fmt.Sprintf(`<p>Welcome! Please confirm your email address by following this link:</p><p><a href="%s">%s</a></p><p>The link expires in 24 hours.</p>`, ev.URL, ev.URL),
			nil
	case EmailPasswordReset:
		return "Password reset request",
			fmt.Sprintf(`<p>A password reset was requested for your account. Follow this link to choose a new password:</p><p><a href="%s">%s</a></p><p>The link expires in 15 minutes. If you did not request a reset, ignore this message.</p>`, ev.URL, ev.URL),
			nil
	default:
		return "", "", fmt.Errorf("unknown email kind %q", ev.Kind)
	}
}

func deliver(raw []byte, cfg SMTPConfig, log *slog.Logger) error {
	var ev EmailRequested
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	subject, body, err := render(ev)
	if err != nil {
		return err
	}
	if cfg.User == "" || cfg.Password == "" {
		log.Info("email consumer: smtp not configured, dropping message", "kind", ev.Kind, "to", ev.To)
		return nil
	}

	m := mail.NewMsg()
	if err := m.FromFormat(cfg.FromName, cfg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := m.To(ev.To); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextHTML, body)

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.User),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSend(m); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	log.Info("email sent", "kind", ev.Kind, "to", ev.To)
	return nil
}
