// Package mail sends the invalid-token notice. The primary channel is an
// EVE in-game mail sent through ESI with the configured mail character's
// token; an optional SMTP copy goes to an admin address for monitoring.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gomail "github.com/go-mail/mail"

	"github.com/evecore/evecore/internal/domain"
	"github.com/evecore/evecore/internal/login"
	"github.com/evecore/evecore/internal/observability/logger"
)

// ErrNoMailCharacter means no mail character has been authorized yet.
var ErrNoMailCharacter = errors.New("mail: no mail character configured")

const (
	invalidTokenSubject = "Invalid ESI token"
	invalidTokenBody    = "The ESI token of one or more characters on your account is no longer valid.\n\n" +
		"Please log in again to refresh it, or groups that require a valid token may be revoked."
)

// AccessTokenSource hands out a valid access token for a service login.
type AccessTokenSource interface {
	ValidAccessToken(ctx context.Context, characterID int64, eveLogin string) (string, error)
}

// Notifier implements the group engine's invalid-token notice.
type Notifier struct {
	store  domain.Store
	tokens AccessTokenSource

	esiBaseURL string
	client     *http.Client

	// optional SMTP copy
	smtp    *SMTPSender
	adminTo string
}

type NotifierDeps struct {
	Store      domain.Store
	Tokens     AccessTokenSource
	ESIBaseURL string
	Client     *http.Client
	SMTP       *SMTPSender
	AdminTo    string
}

func NewNotifier(d NotifierDeps) *Notifier {
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Notifier{
		store:      d.Store,
		tokens:     d.Tokens,
		esiBaseURL: d.ESIBaseURL,
		client:     client,
		smtp:       d.SMTP,
		adminTo:    d.AdminTo,
	}
}

// NotifyInvalidToken mails the player's main character in game. The SMTP
// copy is best effort and never fails the notice.
func (n *Notifier) NotifyInvalidToken(ctx context.Context, player *domain.Player) error {
	main, err := n.mainCharacter(ctx, player.ID)
	if err != nil {
		return err
	}
	if err := n.sendEveMail(ctx, main.ID, invalidTokenSubject, invalidTokenBody); err != nil {
		return err
	}

	if n.smtp != nil && n.adminTo != "" {
		body := fmt.Sprintf("Invalid-token notice sent to player %d (%s).", player.ID, player.Name)
		if err := n.smtp.Send(n.adminTo, invalidTokenSubject, "", body); err != nil {
			logger.From(ctx).Warn("admin mail copy failed",
				logger.Component("mail"), logger.PlayerID(player.ID), logger.Err(err))
		}
	}
	return nil
}

func (n *Notifier) mainCharacter(ctx context.Context, playerID int64) (*domain.Character, error) {
	chars, err := n.store.Characters().ListByPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	for _, c := range chars {
		if c.Main {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound
}

// sendEveMail posts an in-game mail as the configured mail character.
func (n *Notifier) sendEveMail(ctx context.Context, recipientID int64, subject, body string) error {
	raw, err := n.store.Settings().Get(ctx, domain.SettingMailCharacterID)
	if err != nil {
		return err
	}
	if raw == "" {
		return ErrNoMailCharacter
	}
	mailCharID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("mail: bad %s setting: %w", domain.SettingMailCharacterID, err)
	}

	accessToken, err := n.tokens.ValidAccessToken(ctx, mailCharID, login.NameMail)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"approved_cost": 0,
		"subject":       subject,
		"body":          body,
		"recipients": []map[string]any{
			{"recipient_id": recipientID, "recipient_type": "character"},
		},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/latest/characters/%d/mail/", n.esiBaseURL, mailCharID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail: esi returned status %d", resp.StatusCode)
	}
	return nil
}

// SMTPSender sends plain SMTP mail.
type SMTPSender struct {
	Host string
	Port int
	From string
	User string
	Pass string
}

func NewSMTPSender(host string, port int, from, user, pass string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, From: from, User: user, Pass: pass}
}

func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	if textBody != "" {
		m.SetBody("text/plain", textBody)
	}
	if htmlBody != "" {
		if textBody == "" {
			m.SetBody("text/html", htmlBody)
		} else {
			m.AddAlternative("text/html", htmlBody)
		}
	}

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{ServerName: s.Host}
	return d.DialAndSend(m)
}
