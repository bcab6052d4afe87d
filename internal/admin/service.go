// ABOUTME: Provisioning service issuing access tokens and registering adb keys for users
// ABOUTME: Every mutation is gated on the admin policy and resolved against store constraints

package admin

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/devicefarm-gateway/internal/adbkey"
	"github.com/2389/devicefarm-gateway/internal/auth"
	"github.com/2389/devicefarm-gateway/internal/store"
)

// Store is the persistence the service depends on.
type Store interface {
	LoadUser(ctx context.Context, email string) (*store.User, error)
	CreateUserIfAbsent(ctx context.Context, user *store.User) (store.SaveResult, error)

	LoadAccessTokens(ctx context.Context, email string) ([]store.AccessToken, error)
	SaveUserAccessToken(ctx context.Context, token *store.AccessToken) (store.SaveResult, error)
	RemoveUserAccessToken(ctx context.Context, email, title string) (int, error)

	LookupUsersByAdbKey(ctx context.Context, fingerprint string) ([]store.User, error)
	InsertUserAdbKey(ctx context.Context, key *store.AdbKey) error
	DeleteUserAdbKey(ctx context.Context, email, fingerprint string) (int, error)

	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

// Service implements the provisioning operations.
type Service struct {
	store    Store
	policy   auth.Policy
	signer   auth.Signer
	parser   adbkey.Parser
	notifier KeyNotifier
	logger   *slog.Logger
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithParser replaces the default adb key parser.
func WithParser(p adbkey.Parser) Option {
	return func(s *Service) { s.parser = p }
}

// WithIDGenerator replaces the random hex source used for titles, token ids
// and groups.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// NewService creates a Service. notifier may be nil, in which case key
// changes are not announced.
func NewService(st Store, policy auth.Policy, signer auth.Signer, notifier KeyNotifier, opts ...Option) *Service {
	s := &Service{
		store:    st,
		policy:   policy,
		signer:   signer,
		parser:   adbkey.DefaultParser{},
		notifier: notifier,
		logger:   slog.Default(),
		newID:    randomHex,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "admin")
	return s
}

// randomHex returns a v4 UUID as 32 lowercase hex characters.
func randomHex() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// requireAdmin resolves the caller from ctx and checks the admin policy.
// denied is the message returned when the caller is not an administrator.
func (s *Service) requireAdmin(ctx context.Context, denied string) (*auth.AuthContext, error) {
	caller := auth.FromContext(ctx)
	if caller == nil || caller.Email == "" {
		s.logger.Error(denied, "caller", "")
		return nil, unauthorized(denied)
	}

	ok, err := s.policy.IsAdmin(ctx, caller.Email)
	if err != nil {
		s.logger.Error("admin policy check failed", "caller", caller.Email, "error", err)
		return nil, serverError("", err)
	}
	if !ok {
		s.logger.Error(denied, "caller", caller.Email)
		return nil, unauthorized(denied)
	}
	return caller, nil
}

// audit appends an audit entry. Failures are logged and otherwise ignored.
func (s *Service) audit(ctx context.Context, e *store.AuditEntry) {
	if err := s.store.AppendAuditLog(ctx, e); err != nil {
		s.logger.Warn("audit log append failed",
			"action", e.Action,
			"actor", e.Actor,
			"target", e.TargetType+"/"+e.TargetID,
			"error", err)
	}
}

// validateEmail rejects values that are not shaped like local@domain.
func validateEmail(email string) error {
	if email == "" {
		return invalid("email is required")
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") ||
		strings.ContainsAny(email, " \t\r\n") {
		return invalid("email is not valid")
	}
	return nil
}
