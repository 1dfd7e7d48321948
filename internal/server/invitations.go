package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invitationdomain "github.com/smallbiznis/portal/internal/invitation/domain"
	obstracing "github.com/smallbiznis/portal/internal/observability/tracing"
)

type IssueInvitationRequest struct {
	Kind      string `json:"kind"`
	CompanyID string `json:"company_id"`
	ContactID string `json:"contact_id"`
	Email     string `json:"email"`
}

func (s *Server) GetTeamInvitation(c *gin.Context) {
	view, err := s.lookupInvitation(c, invitationdomain.KindTeam)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(viewHTTPStatus(view.State), newInvitationViewResponse(view))
}

// AcceptTeamInvitation creates or promotes the staff account and consumes the invitation.
func (s *Server) AcceptTeamInvitation(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invitationSvc.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if inv.Kind != invitationdomain.KindTeam {
		AbortWithError(c, invitationdomain.ErrNotFound)
		return
	}
	if stateErr := invitationdomain.StateError(inv.Status); stateErr != nil {
		AbortWithError(c, stateErr)
		return
	}

	s.resolveAccount(c, inv, req)
}

// consumeTeamInvitation treats losing the consume race to the same account as success.
func (s *Server) consumeTeamInvitation(c *gin.Context, inv *invitationdomain.Invitation, accountID snowflake.ID) error {
	usedBy := accountID
	stored, err := s.invitationSvc.Consume(c.Request.Context(), invitationdomain.ConsumeRequest{
		Token:  inv.Token,
		UsedBy: &usedBy,
	})
	if errors.Is(err, invitationdomain.ErrAlreadyUsed) && stored != nil && stored.UsedBy != nil && *stored.UsedBy == accountID {
		return nil
	}
	return err
}

func (s *Server) IssueInvitation(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req IssueInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	kind, ok := invitationdomain.ParseKind(req.Kind)
	if !ok {
		AbortWithError(c, invitationdomain.ErrInvalidKind)
		return
	}
	c.Set(obstracing.ContextKeyInvitationKind, string(kind))

	issue := invitationdomain.IssueRequest{
		Kind:      kind,
		Email:     strings.TrimSpace(req.Email),
		InvitedBy: principal.AccountID,
	}
	if kind == invitationdomain.KindClient {
		companyID, err := parseOptionalSnowflakeID(req.CompanyID)
		if err != nil || companyID == nil {
			AbortWithError(c, invitationdomain.ErrInvalidCompany)
			return
		}
		contactID, err := parseOptionalSnowflakeID(req.ContactID)
		if err != nil || contactID == nil {
			AbortWithError(c, invitationdomain.ErrInvalidContact)
			return
		}
		issue.CompanyID = *companyID
		issue.ContactID = *contactID
	}

	inv, err := s.invitationSvc.Issue(c.Request.Context(), issue)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"invitation": inv})
}

func (s *Server) ListInvitations(c *gin.Context) {
	companyID, err := parseOptionalSnowflakeID(c.Query("company_id"))
	if err != nil {
		AbortWithError(c, newValidationError("company_id", "invalid_company_id", "invalid company_id"))
		return
	}

	var kind invitationdomain.Kind
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		parsed, ok := invitationdomain.ParseKind(raw)
		if !ok {
			AbortWithError(c, invitationdomain.ErrInvalidKind)
			return
		}
		kind = parsed
	}

	var status invitationdomain.Status
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
		status = invitationdomain.Status(raw)
		switch status {
		case invitationdomain.StatusPending, invitationdomain.StatusAccepted,
			invitationdomain.StatusExpired, invitationdomain.StatusRevoked:
		default:
			AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
			return
		}
	}

	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.invitationSvc.List(c.Request.Context(), invitationdomain.ListRequest{
		CompanyID: companyID,
		Kind:      kind,
		Status:    status,
		Limit:     limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// RevokeInvitation is a no-op for invitations that are already terminal.
func (s *Server) RevokeInvitation(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseIDParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.invitationSvc.Revoke(c.Request.Context(), invitationdomain.RevokeRequest{
		InvitationID: id,
		RevokedBy:    principal.AccountID,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
