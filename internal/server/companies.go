package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	companydomain "github.com/smallbiznis/portal/internal/company/domain"
	invitationdomain "github.com/smallbiznis/portal/internal/invitation/domain"
)

type CreateCompanyRequest struct {
	Name          string `json:"name"`
	LegalName     string `json:"legal_name"`
	TaxID         string `json:"tax_id"`
	FiscalAddress string `json:"fiscal_address"`
}

type CreateContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) CreateCompany(c *gin.Context) {
	var req CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	company, err := s.companySvc.CreateCompany(c.Request.Context(), companydomain.CreateCompanyRequest{
		Name:          req.Name,
		LegalName:     req.LegalName,
		TaxID:         req.TaxID,
		FiscalAddress: req.FiscalAddress,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"company": company})
}

// GetCompany returns the company with its contacts, onboarding state and invitations.
func (s *Server) GetCompany(c *gin.Context) {
	id, err := parseIDParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	status, err := s.gate.Status(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	contacts, err := s.companySvc.ListContacts(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invitations, err := s.invitationSvc.List(ctx, invitationdomain.ListRequest{
		CompanyID: &id,
		Kind:      invitationdomain.KindClient,
		Limit:     defaultListLimit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"company":     status.Company,
		"onboarding":  status,
		"contacts":    contacts,
		"invitations": invitations,
	})
}

func (s *Server) CreateContact(c *gin.Context) {
	id, err := parseIDParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	contact, err := s.companySvc.CreateContact(c.Request.Context(), companydomain.CreateContactRequest{
		CompanyID: id,
		Name:      req.Name,
		Email:     req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"contact": contact})
}
