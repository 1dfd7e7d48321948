package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/smallbiznis/portal/internal/account/domain"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	authdomain "github.com/smallbiznis/portal/internal/auth/domain"
	"github.com/smallbiznis/portal/internal/auth/session"
	"github.com/smallbiznis/portal/internal/authorization"
	companydomain "github.com/smallbiznis/portal/internal/company/domain"
	"github.com/smallbiznis/portal/internal/config"
	invitationdomain "github.com/smallbiznis/portal/internal/invitation/domain"
	"github.com/smallbiznis/portal/internal/observability"
	obslogger "github.com/smallbiznis/portal/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	obstracing "github.com/smallbiznis/portal/internal/observability/tracing"
	onboardingdomain "github.com/smallbiznis/portal/internal/onboarding/domain"
	"github.com/smallbiznis/portal/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.RequestLogger(obslogger.RequestLogOptions{
		Classify: classifyErrorForLog,
		Stack:    obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	authsvc       authdomain.Service
	sessions      *session.Cookies
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	companySvc    companydomain.Service
	invitationSvc invitationdomain.Service
	linker        accountdomain.Linker
	gate          onboardingdomain.Gate
	limiter       *ratelimit.Limiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Authsvc       authdomain.Service
	Sessions      *session.Cookies
	AuthzSvc      authorization.Service
	CompanySvc    companydomain.Service
	InvitationSvc invitationdomain.Service
	Linker        accountdomain.Linker
	Gate          onboardingdomain.Gate

	AuditSvc   auditdomain.Service `optional:"true"`
	Limiter    *ratelimit.Limiter  `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		authsvc:       p.Authsvc,
		sessions:      p.Sessions,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		companySvc:    p.CompanySvc,
		invitationSvc: p.InvitationSvc,
		linker:        p.Linker,
		gate:          p.Gate,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerPublicRoutes()
	svc.registerStaffRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.SessionRequired(), s.Me)
}

func (s *Server) registerPublicRoutes() {
	onboarding := s.engine.Group("/onboarding/:token")
	onboarding.Use(s.PublicTokenRateLimit("onboarding"))
	onboarding.Use(s.OptionalSession())

	onboarding.GET("", s.GetOnboarding)
	onboarding.POST("/account", s.ResolveOnboardingAccount)
	onboarding.GET("/company", s.GetOnboardingCompany)
	onboarding.PUT("/company", s.UpdateOnboardingCompany)
	onboarding.POST("/accept", s.AcceptOnboardingTerms)

	invitations := s.engine.Group("/invitations/:token")
	invitations.Use(s.PublicTokenRateLimit("invitations"))

	invitations.GET("", s.GetTeamInvitation)
	invitations.POST("/account", s.AcceptTeamInvitation)
}

func (s *Server) registerStaffRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.SessionRequired())

	api.POST("/companies", s.authorize(authorization.ObjectCompany, authorization.ActionCompanyManage), s.CreateCompany)
	api.GET("/companies/:id", s.authorize(authorization.ObjectCompany, authorization.ActionCompanyView), s.GetCompany)
	api.POST("/companies/:id/contacts", s.authorize(authorization.ObjectCompany, authorization.ActionCompanyManage), s.CreateContact)

	api.POST("/invitations", s.authorize(authorization.ObjectInvitation, authorization.ActionInvitationIssue), s.IssueInvitation)
	api.GET("/invitations", s.authorize(authorization.ObjectInvitation, authorization.ActionInvitationView), s.ListInvitations)
	api.POST("/invitations/:id/revoke", s.authorize(authorization.ObjectInvitation, authorization.ActionInvitationRevoke), s.RevokeInvitation)

	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
