package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/smallbiznis/portal/internal/invitation/domain"
	"go.uber.org/zap"
)

const notifyTimeout = 30 * time.Second

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type emailData struct {
	Name        string
	CompanyName string
	Link        string
	ExpiresAt   string
}

// notify sends the invitation email without blocking the caller. Failures are
// logged and counted only; the invitation stays committed.
func (s *Service) notify(ctx context.Context, inv domain.Invitation, to recipient) {
	if s.email == nil || to.Email == "" {
		return
	}

	ctx = context.WithoutCancel(ctx)
	s.dispatch(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("invitation notification panicked",
					zap.String("invitation_id", inv.ID.String()),
					zap.Any("panic", r),
				)
			}
		}()

		subject, body, err := s.renderEmail(inv, to)
		if err != nil {
			s.log.Warn("invitation notification render failed",
				zap.String("invitation_id", inv.ID.String()),
				zap.Error(err),
			)
			s.metrics.RecordNotificationFailed(ctx, string(inv.Kind))
			return
		}

		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := s.email.Send(sendCtx, []string{to.Email}, subject, body); err != nil {
			s.log.Warn("invitation notification failed",
				zap.String("invitation_id", inv.ID.String()),
				zap.String("kind", string(inv.Kind)),
				zap.Error(err),
			)
			s.metrics.RecordNotificationFailed(ctx, string(inv.Kind))
			return
		}
		s.log.Debug("invitation notification sent", zap.String("invitation_id", inv.ID.String()))
	})
}

func (s *Service) renderEmail(inv domain.Invitation, to recipient) (string, string, error) {
	data := emailData{
		Name:        to.Name,
		CompanyName: to.CompanyName,
		Link:        s.InvitationLink(inv),
		ExpiresAt:   inv.ExpiresAt.UTC().Format("2 January 2006 15:04 MST"),
	}

	name := "client_invite.html"
	subject := fmt.Sprintf("Complete the onboarding of %s", to.CompanyName)
	if inv.Kind == domain.KindTeam {
		name = "team_invite.html"
		subject = "You're invited to join the team"
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return "", "", err
	}
	return subject, body.String(), nil
}

// InvitationLink is the public URL a recipient opens for inv.
func (s *Service) InvitationLink(inv domain.Invitation) string {
	if inv.Kind == domain.KindTeam {
		return s.baseURL + "/invitations/" + inv.Token
	}
	return s.baseURL + "/onboarding/" + inv.Token
}
