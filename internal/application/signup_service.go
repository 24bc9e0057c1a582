package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oksasatya/go-signup-flow/internal/domain/entity"
	"github.com/oksasatya/go-signup-flow/internal/domain/repository"
	"github.com/oksasatya/go-signup-flow/internal/notification"
	"github.com/oksasatya/go-signup-flow/pkg/helpers"
	"github.com/oksasatya/go-signup-flow/pkg/validation"
)

// Outcome tells the HTTP layer which reply to produce.
type Outcome string

const (
	OutcomeRejected         Outcome = "rejected"
	OutcomeSignedUp         Outcome = "signed_up"
	OutcomeRedirectLogin    Outcome = "redirect_login"
	OutcomeRedirectSignup   Outcome = "redirect_signup"
	OutcomeVerificationSent Outcome = "verification_sent"
	OutcomeSMSSent          Outcome = "sms_sent"
	OutcomeAlreadyVerified  Outcome = "already_verified"
	OutcomeVerified         Outcome = "verified"
	OutcomeLinkExpired      Outcome = "link_expired"
)

// Result is what an operation produced. User is nil when no record was involved.
type Result struct {
	Outcome Outcome
	User    *entity.User
}

// RequestMeta is client information forwarded to the notification templates.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// CreateInput is a signup form submission.
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Meta     RequestMeta
}

// ResendInput is a resend request. Name, when set, selects the account instead of Email.
type ResendInput struct {
	Email string
	Name  string
	Phone string
	Meta  RequestMeta
}

// Service runs the signup, resend and verification operations.
type Service struct {
	store     repository.UserStore
	email     notification.Notifier
	sms       notification.Notifier
	tokens    TokenSource
	policy    Policy
	now       func() time.Time
	observers []Observer
	logger    *logrus.Logger
}

type Option func(*Service)

// WithSMSNotifier enables the SMS channel for resend requests that carry a phone number.
func WithSMSNotifier(n notification.Notifier) Option { return func(s *Service) { s.sms = n } }

func WithTokenSource(t TokenSource) Option { return func(s *Service) { s.tokens = t } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

func WithLogger(l *logrus.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(store repository.UserStore, email notification.Notifier, policy Policy, opts ...Option) *Service {
	s := &Service{
		store:  store,
		email:  email,
		tokens: NewRandomTokenSource(),
		policy: policy,
		now:    time.Now,
		logger: helpers.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new unverified user and sends the first verification mail.
func (s *Service) Create(ctx context.Context, in CreateInput) (Result, error) {
	res, err := s.create(ctx, in)
	s.emit(ctx, OpCreate, res, err)
	return res, err
}

// Resend issues a fresh token by email or SMS, or finishes a stale phone verification.
func (s *Service) Resend(ctx context.Context, in ResendInput) (Result, error) {
	res, err := s.resend(ctx, in)
	s.emit(ctx, OpResend, res, err)
	return res, err
}

// Verify consumes a token from a verification link.
func (s *Service) Verify(ctx context.Context, token string) (Result, error) {
	res, err := s.verify(ctx, token)
	s.emit(ctx, OpVerify, res, err)
	return res, err
}

func (s *Service) create(ctx context.Context, in CreateInput) (Result, error) {
	rejected := Result{Outcome: OutcomeRejected}
	if err := s.validateCreate(in); err != nil {
		return rejected, err
	}

	conflict, err := s.findConflict(ctx, in)
	if err != nil {
		return rejected, err
	}
	if conflict != nil {
		if s.policy.UseLogin && errors.Is(conflict, ErrAlreadySignedUp) {
			return Result{Outcome: OutcomeRedirectLogin}, nil
		}
		return rejected, conflict
	}

	u, err := s.store.Save(ctx, in.Name, in.Email, in.Password)
	if errors.Is(err, repository.ErrDuplicate) {
		// lost a race with a concurrent signup for the same email
		if s.policy.UseLogin {
			return Result{Outcome: OutcomeRedirectLogin}, nil
		}
		return rejected, signedUpError(repository.FieldEmail, in.Email, err)
	}
	if err != nil {
		return rejected, storageError("save user", err)
	}
	if err := s.issueToken(u); err != nil {
		return Result{Outcome: OutcomeRejected, User: u}, err
	}
	if err := s.store.Update(ctx, u); err != nil {
		return Result{Outcome: OutcomeRejected, User: u}, storageError("store signup token", err)
	}

	if u.Email != "" {
		if err := s.sendEmail(ctx, u, notification.PurposeSignup, in.Meta); err != nil {
			return Result{Outcome: OutcomeRejected, User: u}, err
		}
	}
	s.logger.WithField("user_id", u.ID).Debug("user signed up")
	return Result{Outcome: OutcomeSignedUp, User: u}, nil
}

func (s *Service) validateCreate(in CreateInput) error {
	switch {
	case in.Password == "":
		return validationError("password", "A password is required!")
	case in.Name == "" && in.Email == "":
		return validationError("name", "A user name or email is required!")
	case in.Name != "" && !s.policy.NamePattern.MatchString(in.Name):
		return validationError("name", "You have entered an invalid name!")
	case in.Email != "" && !s.policy.EmailPattern.MatchString(in.Email):
		return validationError("email", "You have entered an invalid email address!")
	}
	return nil
}

// findConflict looks up every unique field concurrently. When several match,
// the first field in policy order wins.
func (s *Service) findConflict(ctx context.Context, in CreateInput) (*Error, error) {
	type check struct {
		field repository.Field
		value string
	}
	var checks []check
	for _, f := range s.policy.UniqueFields {
		v := in.Email
		if f == repository.FieldName {
			v = in.Name
		}
		if v != "" {
			checks = append(checks, check{field: f, value: v})
		}
	}

	found := make([]*entity.User, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			u, err := s.store.Find(gctx, c.field, c.value)
			if err != nil {
				return storageError("find user by "+string(c.field), err)
			}
			found[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, u := range found {
		if u == nil {
			continue
		}
		field := string(checks[i].field)
		if u.AccountInvalid {
			return &Error{
				Kind:    KindConflict,
				Field:   field,
				Message: fmt.Sprintf("The %s %q has been deactivated", field, u.Email),
				Err:     ErrAccountDeactivated,
			}, nil
		}
		return signedUpError(checks[i].field, checks[i].value, nil), nil
	}
	return nil, nil
}

func signedUpError(field repository.Field, value string, cause error) *Error {
	msg := fmt.Sprintf("The email account %q is already signed up.", value)
	if field == repository.FieldName {
		msg = fmt.Sprintf("The user %q is already signed up.", value)
	}
	err := ErrAlreadySignedUp
	if cause != nil {
		err = errors.Join(ErrAlreadySignedUp, cause)
	}
	return &Error{Kind: KindConflict, Field: string(field), Message: msg, Err: err}
}

func (s *Service) resend(ctx context.Context, in ResendInput) (Result, error) {
	rejected := Result{Outcome: OutcomeRejected}
	if in.Email == "" || !s.policy.EmailPattern.MatchString(in.Email) {
		return rejected, validationError("email", "Email is invalid")
	}
	var phone string
	if len(in.Phone) > 1 {
		p, ok := validation.NormalizePhone(in.Phone)
		if !ok {
			return rejected, validationError("phone", "You have entered an invalid phone number")
		}
		phone = p
	}

	field, value := repository.FieldEmail, in.Email
	if in.Name != "" {
		field, value = repository.FieldName, in.Name
	}
	u, err := s.store.Find(ctx, field, value)
	if err != nil {
		return rejected, storageError("find user by "+string(field), err)
	}
	if u == nil {
		return Result{Outcome: OutcomeRedirectSignup}, &Error{
			Kind:    KindNotFound,
			Field:   string(field),
			Message: "No account was found for that email",
			Err:     ErrUserNotFound,
		}
	}
	if u.Blocked() {
		return Result{Outcome: OutcomeRejected, User: u}, &Error{
			Kind:    KindConflict,
			Field:   "email",
			Message: "That email is invalid",
			Err:     ErrAccountInvalid,
		}
	}

	useSMS := phone != "" && s.sms != nil

	if u.EmailVerified {
		if useSMS {
			if err := s.issueToken(u); err != nil {
				return Result{Outcome: OutcomeRejected, User: u}, err
			}
			return s.startPhoneVerification(ctx, u, phone)
		}
		// any phone verification in flight is abandoned
		u.PhoneVerified = nil
		if err := s.store.Update(ctx, u); err != nil {
			return Result{Outcome: OutcomeRejected, User: u}, storageError("update user", err)
		}
		return Result{Outcome: OutcomeAlreadyVerified, User: u}, nil
	}

	if u.Email != in.Email {
		if err := s.checkEmailFree(ctx, u, in.Email); err != nil {
			return Result{Outcome: OutcomeRejected, User: u}, err
		}
	}
	if err := s.issueToken(u); err != nil {
		return Result{Outcome: OutcomeRejected, User: u}, err
	}
	u.Email = in.Email
	if err := s.store.Update(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return Result{Outcome: OutcomeRejected, User: u}, signedUpError(repository.FieldEmail, in.Email, err)
		}
		return Result{Outcome: OutcomeRejected, User: u}, storageError("store signup token", err)
	}
	if useSMS {
		return s.startPhoneVerification(ctx, u, phone)
	}
	if err := s.sendEmail(ctx, u, notification.PurposeResend, in.Meta); err != nil {
		return Result{Outcome: OutcomeRejected, User: u}, err
	}
	return Result{Outcome: OutcomeVerificationSent, User: u}, nil
}

// checkEmailFree rejects moving u to an email that another account holds.
func (s *Service) checkEmailFree(ctx context.Context, u *entity.User, email string) error {
	owner, err := s.store.Find(ctx, repository.FieldEmail, email)
	if err != nil {
		return storageError("find user by email", err)
	}
	if owner != nil && owner.ID != u.ID {
		return signedUpError(repository.FieldEmail, email, nil)
	}
	return nil
}

// startPhoneVerification texts the current token and records the pending phone.
// The record is only updated once the SMS went out.
func (s *Service) startPhoneVerification(ctx context.Context, u *entity.User, phone string) (Result, error) {
	msg := notification.Message{
		Channel:   notification.ChannelSMS,
		Purpose:   notification.PurposeResend,
		To:        phone,
		Name:      u.Name,
		Code:      *u.SignupToken,
		ExpiresAt: *u.SignupTokenExpires,
	}
	if err := s.sms.Send(ctx, msg); err != nil {
		return Result{Outcome: OutcomeRejected, User: u}, transportError(string(notification.ChannelSMS), err)
	}
	pending := false
	u.PhoneNumber = phone
	u.PhoneVerified = &pending
	if err := s.store.Update(ctx, u); err != nil {
		return Result{Outcome: OutcomeRejected, User: u}, storageError("store phone number", err)
	}
	return Result{Outcome: OutcomeSMSSent, User: u}, nil
}

func (s *Service) verify(ctx context.Context, token string) (Result, error) {
	expired := &Error{Kind: KindExpired, Message: "This verification link has expired", Err: ErrTokenExpired}
	if token == "" || !s.tokens.Valid(token) {
		return Result{Outcome: OutcomeLinkExpired}, expired
	}

	u, err := s.store.Find(ctx, repository.FieldSignupToken, token)
	if err != nil {
		return Result{Outcome: OutcomeRejected}, storageError("find user by token", err)
	}
	if u == nil {
		return Result{Outcome: OutcomeLinkExpired}, &Error{
			Kind:    KindNotFound,
			Message: "This verification link is invalid or has already been used",
			Err:     ErrTokenNotFound,
		}
	}

	now := s.now()
	if u.TokenExpired(now) {
		u.ClearToken()
		if err := s.store.Update(ctx, u); err != nil {
			return Result{Outcome: OutcomeRejected, User: u}, storageError("clear expired token", err)
		}
		return Result{Outcome: OutcomeLinkExpired, User: u}, expired
	}

	u.EmailVerified = true
	u.EmailVerificationTimestamp = &now
	if u.PhoneNumber != "" && u.PhoneVerified != nil && !*u.PhoneVerified {
		verified := true
		u.PhoneVerified = &verified
	}
	u.ClearToken()
	if err := s.store.Update(ctx, u); err != nil {
		return Result{Outcome: OutcomeRejected, User: u}, storageError("mark user verified", err)
	}
	return Result{Outcome: OutcomeVerified, User: u}, nil
}

func (s *Service) issueToken(u *entity.User) error {
	tok, err := s.tokens.Generate()
	if err != nil {
		return storageError("issue signup token", err)
	}
	u.IssueToken(tok, s.now().Add(s.policy.TokenTTL))
	return nil
}

func (s *Service) sendEmail(ctx context.Context, u *entity.User, purpose notification.Purpose, meta RequestMeta) error {
	msg := notification.Message{
		Channel:   notification.ChannelEmail,
		Purpose:   purpose,
		To:        u.Email,
		Name:      u.Name,
		Code:      *u.SignupToken,
		ExpiresAt: *u.SignupTokenExpires,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return transportError(string(notification.ChannelEmail), err)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, op Operation, res Result, err error) {
	if len(s.observers) == 0 {
		return
	}
	ev := Event{
		Name:      s.policy.EventName,
		Operation: op,
		Outcome:   res.Outcome,
		User:      res.User.Clone(),
		Err:       err,
		At:        s.now(),
	}
	for _, o := range s.observers {
		o.OnEvent(ctx, ev)
	}
}
