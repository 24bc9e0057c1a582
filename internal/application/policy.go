package application

import (
	"fmt"
	"regexp"
	"time"

	"github.com/oksasatya/go-signup-flow/config"
	"github.com/oksasatya/go-signup-flow/internal/domain/repository"
	"github.com/oksasatya/go-signup-flow/pkg/helpers"
)

// Policy holds the validated, immutable settings of the flow.
type Policy struct {
	NamePattern  *regexp.Regexp
	EmailPattern *regexp.Regexp
	UniqueFields []repository.Field
	TokenTTL     time.Duration
	UseLogin     bool
	EventName    string
}

// NewPolicy compiles the configured patterns and expiry. Unknown unique fields are rejected.
func NewPolicy(cfg *config.Config) (Policy, error) {
	name, err := regexp.Compile(cfg.SignupNamePattern)
	if err != nil {
		return Policy{}, fmt.Errorf("name pattern: %w", err)
	}
	email, err := regexp.Compile(cfg.SignupEmailPattern)
	if err != nil {
		return Policy{}, fmt.Errorf("email pattern: %w", err)
	}
	ttl, err := helpers.ParseExpiry(cfg.SignupTokenExpiration)
	if err != nil {
		return Policy{}, fmt.Errorf("token expiration: %w", err)
	}
	fields := make([]repository.Field, 0, 2)
	for _, f := range cfg.UniqueFields() {
		field := repository.Field(f)
		if field != repository.FieldEmail && field != repository.FieldName {
			return Policy{}, fmt.Errorf("unique field %q: must be email or name", f)
		}
		fields = append(fields, field)
	}
	return Policy{
		NamePattern:  name,
		EmailPattern: email,
		UniqueFields: fields,
		TokenTTL:     ttl,
		UseLogin:     cfg.SignupUseLogin,
		EventName:    cfg.SignupEventName,
	}, nil
}

// DefaultPolicy is the policy of a zero-configuration deployment.
func DefaultPolicy() Policy {
	return Policy{
		NamePattern:  regexp.MustCompile(config.DefaultNamePattern),
		EmailPattern: regexp.MustCompile(config.DefaultEmailPattern),
		UniqueFields: []repository.Field{repository.FieldEmail, repository.FieldName},
		TokenTTL:     24 * time.Hour,
		EventName:    "signup",
	}
}
