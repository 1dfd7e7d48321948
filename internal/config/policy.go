package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DefaultInvitationTTL      = 7 * 24 * time.Hour
	DefaultTermsVersion       = "v1"
	DefaultTokenIssueAttempts = 5
)

// Policy holds the onboarding rules that operators may tune without a redeploy.
type Policy struct {
	InvitationTTL      time.Duration `mapstructure:"invitationTTL"`
	TermsVersion       string        `mapstructure:"termsVersion"`
	TokenIssueAttempts int           `mapstructure:"tokenIssueAttempts"`
}

func DefaultPolicy() Policy {
	return Policy{
		InvitationTTL:      DefaultInvitationTTL,
		TermsVersion:       DefaultTermsVersion,
		TokenIssueAttempts: DefaultTokenIssueAttempts,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicy returns a holder that never reloads.
func NewStaticPolicy(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("onboarding")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/portal")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("onboarding.invitationTTL", defaults.InvitationTTL)
	v.SetDefault("onboarding.termsVersion", defaults.TermsVersion)
	v.SetDefault("onboarding.tokenIssueAttempts", defaults.TokenIssueAttempts)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var p Policy
	if err := v.UnmarshalKey("onboarding", &p); err != nil {
		return nil, err
	}
	if err := validatePolicy(p); err != nil {
		return nil, err
	}

	holder := NewStaticPolicy(p)
	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("config.policy")
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("onboarding", &updated); err != nil {
			log.Warn("onboarding policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid onboarding policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("onboarding policy reloaded",
			zap.String("file", e.Name),
			zap.String("terms_version", updated.TermsVersion),
			zap.Duration("invitation_ttl", updated.InvitationTTL),
		)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func validatePolicy(p Policy) error {
	if p.InvitationTTL <= 0 {
		return errors.New("onboarding.invitationTTL must be positive")
	}
	if strings.TrimSpace(p.TermsVersion) == "" {
		return errors.New("onboarding.termsVersion cannot be empty")
	}
	if p.TokenIssueAttempts <= 0 {
		return errors.New("onboarding.tokenIssueAttempts must be positive")
	}
	return nil
}
