package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/portal/internal/account/domain"
	authdomain "github.com/smallbiznis/portal/internal/auth/domain"
	invitationdomain "github.com/smallbiznis/portal/internal/invitation/domain"
	obstracing "github.com/smallbiznis/portal/internal/observability/tracing"
	onboardingdomain "github.com/smallbiznis/portal/internal/onboarding/domain"
)

type invitationViewResponse struct {
	State      invitationdomain.ViewState `json:"state"`
	Status     invitationdomain.Status    `json:"status,omitempty"`
	Kind       invitationdomain.Kind      `json:"kind,omitempty"`
	ExpiresAt  *time.Time                 `json:"expires_at,omitempty"`
	Onboarding *onboardingdomain.Status   `json:"onboarding,omitempty"`
}

type AccountRequest struct {
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type accountResponse struct {
	AccountID snowflake.ID          `json:"account_id"`
	IsNew     bool                  `json:"is_new"`
	Principal *authdomain.Principal `json:"principal"`
	ExpiresAt string                `json:"expires_at"`
}

type UpdateCompanyRequest struct {
	LegalName     *string `json:"legal_name"`
	TaxID         *string `json:"tax_id"`
	FiscalAddress *string `json:"fiscal_address"`
}

// GetOnboarding renders the four-state view of a client invitation token.
func (s *Server) GetOnboarding(c *gin.Context) {
	ctx := c.Request.Context()
	view, err := s.lookupInvitation(c, invitationdomain.KindClient)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := newInvitationViewResponse(view)
	if view.State == invitationdomain.ViewValid && view.Invitation.TargetCompanyID != nil {
		status, err := s.gate.Status(ctx, *view.Invitation.TargetCompanyID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		resp.Onboarding = status
	}

	c.JSON(viewHTTPStatus(view.State), resp)
}

// ResolveOnboardingAccount creates or links the contact's account and signs it in.
// The invitation stays pending until terms are accepted.
func (s *Server) ResolveOnboardingAccount(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	target, err := s.gate.Target(c.Request.Context(), c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.resolveAccount(c, target.Invitation, req)
}

func (s *Server) GetOnboardingCompany(c *gin.Context) {
	ctx := c.Request.Context()
	target, err := s.gate.Target(ctx, c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.gate.Status(ctx, target.Company.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) UpdateOnboardingCompany(c *gin.Context) {
	var req UpdateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	target, err := s.gate.Target(ctx, c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	company, err := s.gate.UpdateTargetData(ctx, onboardingdomain.UpdateRequest{
		CompanyID:     target.Company.ID,
		LegalName:     req.LegalName,
		TaxID:         req.TaxID,
		FiscalAddress: req.FiscalAddress,
		ActorID:       s.contactAccountID(c, target),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.gate.Status(ctx, company.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// AcceptOnboardingTerms records acceptance by the invited contact and consumes the token.
func (s *Server) AcceptOnboardingTerms(c *gin.Context) {
	ctx := c.Request.Context()
	token := c.Param("token")
	target, err := s.gate.Target(ctx, token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.gate.Accept(ctx, onboardingdomain.AcceptRequest{
		CompanyID:   target.Company.ID,
		ContactID:   target.Contact.ID,
		ContactName: target.Contact.Name,
		Token:       token,
		AccountID:   s.contactAccountID(c, target),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// lookupInvitation classifies the token, hiding invitations of the other kind.
func (s *Server) lookupInvitation(c *gin.Context, kind invitationdomain.Kind) (*invitationdomain.View, error) {
	c.Set(obstracing.ContextKeyInvitationKind, string(kind))
	view, err := s.invitationSvc.Lookup(c.Request.Context(), c.Param("token"))
	if err != nil {
		return nil, err
	}
	if view.State != invitationdomain.ViewNotFound && view.Kind != kind {
		return &invitationdomain.View{State: invitationdomain.ViewNotFound}, nil
	}
	return view, nil
}

func (s *Server) resolveAccount(c *gin.Context, inv *invitationdomain.Invitation, req AccountRequest) {
	c.Set(obstracing.ContextKeyInvitationKind, string(inv.Kind))
	ctx := c.Request.Context()
	link, err := s.linker.ResolveAccount(ctx, accountdomain.LinkRequest{
		Invitation:  inv,
		Password:    req.Password,
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if inv.Kind == invitationdomain.KindTeam {
		if err := s.consumeTeamInvitation(c, inv, link.AccountID); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	result, err := s.authsvc.IssueSession(ctx, authdomain.IssueSessionRequest{
		AccountID: link.AccountID,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.startSession(c, result)

	status := http.StatusOK
	if link.IsNew {
		status = http.StatusCreated
	}
	c.JSON(status, accountResponse{
		AccountID: link.AccountID,
		IsNew:     link.IsNew,
		Principal: result.Principal,
		ExpiresAt: result.ExpiresAt.UTC().Format(timeLayout),
	})
}

// contactAccountID returns the signed-in account when it belongs to the invited contact.
func (s *Server) contactAccountID(c *gin.Context, target *onboardingdomain.Target) *snowflake.ID {
	principal, ok := principalFromContext(c)
	if !ok || principal.ContactID == nil || target.Contact == nil {
		return nil
	}
	if *principal.ContactID != target.Contact.ID {
		return nil
	}
	accountID := principal.AccountID
	return &accountID
}

func newInvitationViewResponse(view *invitationdomain.View) invitationViewResponse {
	return invitationViewResponse{
		State:     view.State,
		Status:    view.Status,
		Kind:      view.Kind,
		ExpiresAt: view.ExpiresAt,
	}
}

func viewHTTPStatus(state invitationdomain.ViewState) int {
	switch state {
	case invitationdomain.ViewValid:
		return http.StatusOK
	case invitationdomain.ViewExpired:
		return http.StatusGone
	case invitationdomain.ViewUsed:
		return http.StatusConflict
	default:
		return http.StatusNotFound
	}
}
