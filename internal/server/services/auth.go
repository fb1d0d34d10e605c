// Package services contains the identity authority's use-cases. AuthService
// handles registration, credential exchange, refresh, second factor and
// the verification and recovery flows.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/cryptox"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/dmitrijs2005/gameauth/internal/server/auth"
	"github.com/dmitrijs2005/gameauth/internal/server/credentials"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
	"github.com/dmitrijs2005/gameauth/internal/server/notify"
	"github.com/dmitrijs2005/gameauth/internal/server/repositories/accounts"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// LoginResult holds either a token pair or, for accounts with a second
// factor, the intermediate second-factor token.
type LoginResult struct {
	Tokens         *auth.TokenPair
	TwoFactorToken string
}

// Enrollment is returned once when a second factor is enrolled.
type Enrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

type AuthConfig struct {
	DefaultAuthorities []string
	TOTPIssuer         string
}

type AuthService struct {
	repo     accounts.Repository
	creds    *credentials.Service
	issuer   *auth.Issuer
	hasher   *cryptox.Hasher
	notifier notify.Notifier
	logger   logging.Logger
	cfg      AuthConfig
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	repo accounts.Repository,
	creds *credentials.Service,
	issuer *auth.Issuer,
	hasher *cryptox.Hasher,
	notifier notify.Notifier,
	logger logging.Logger,
	cfg AuthConfig,
) *AuthService {
	if cfg.TOTPIssuer == "" {
		cfg.TOTPIssuer = "gameauth"
	}
	return &AuthService{
		repo:     repo,
		creds:    creds,
		issuer:   issuer,
		hasher:   hasher,
		notifier: notifier,
		logger:   logger.With("module", "auth_service"),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Register creates an account with the default authorities and sends its
// first verification code.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.Account, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a, err := s.repo.Create(ctx, &models.Account{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         authz.RoleUser,
	}, s.cfg.DefaultAuthorities)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "account registered", "account_id", a.ID)

	if err := s.sendVerification(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Login exchanges credentials for tokens.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	a, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// same bcrypt cost as a real mismatch
			_ = s.hasher.Compare(req.Password, s.dummy())
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}

	if err := s.hasher.Compare(req.Password, a.PasswordHash); err != nil {
		return nil, common.ErrorUnauthorized
	}

	if a.TwoFactorEnabled() {
		tok, err := s.issuer.CreateTwoFactorToken(a)
		if err != nil {
			return nil, err
		}
		return &LoginResult{TwoFactorToken: tok}, nil
	}

	pair, err := s.tokenPair(ctx, a)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Tokens: pair}, nil
}

// Refresh mints a new access token for the holder of a refresh token. The
// account's current authorities are used, so grants revoked since login
// take effect here.
func (s *AuthService) Refresh(ctx context.Context, p *authn.Principal) (string, error) {
	a, err := s.account(ctx, p)
	if err != nil {
		return "", err
	}
	scopes, err := s.repo.Authorities(ctx, a.ID)
	if err != nil {
		return "", err
	}
	return s.issuer.CreateAccessToken(a, a.Role, scopes)
}

// CompleteTwoFactor checks a TOTP code for the holder of a second-factor
// token and returns the full token pair.
func (s *AuthService) CompleteTwoFactor(ctx context.Context, p *authn.Principal, req TwoFactorRequest) (*auth.TokenPair, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	a, err := s.account(ctx, p)
	if err != nil {
		return nil, err
	}
	if !a.TwoFactorEnabled() || !s.checkTOTP(req.Code, *a.TwoFactorSecret) {
		return nil, common.ErrSecondFactorMismatch
	}
	return s.tokenPair(ctx, a)
}

// EnrollTwoFactor generates and stores a TOTP secret. Subsequent logins
// require a code.
func (s *AuthService) EnrollTwoFactor(ctx context.Context, p *authn.Principal) (*Enrollment, error) {
	a, err := s.account(ctx, p)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.cfg.TOTPIssuer, AccountName: a.Username})
	if err != nil {
		return nil, fmt.Errorf("generate totp: %w", err)
	}
	if _, err := s.repo.SetTwoFactorSecret(ctx, a.ID, a.Version, key.Secret()); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "second factor enrolled", "account_id", a.ID)
	return &Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// RequestVerification re-sends a verification code to an unverified account.
func (s *AuthService) RequestVerification(ctx context.Context, p *authn.Principal) error {
	a, err := s.account(ctx, p)
	if err != nil {
		return err
	}
	if a.Verified {
		return fmt.Errorf("%w: account already verified", common.ErrorValidation)
	}
	return s.sendVerification(ctx, a)
}

// VerifyAccount consumes a verification code. Unknown usernames report a
// mismatch so the endpoint cannot be used to probe for accounts.
func (s *AuthService) VerifyAccount(ctx context.Context, req VerifyRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	a, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrCodeMismatch
		}
		return err
	}
	if err := s.creds.ConsumeVerificationCode(ctx, a, req.Code); err != nil {
		return err
	}
	s.logger.Info(ctx, "account verified", "account_id", a.ID)
	return nil
}

// RequestRecovery issues a recovery token when the address belongs to an
// account. The outcome is not revealed to the caller.
func (s *AuthService) RequestRecovery(ctx context.Context, req RecoveryRequest) error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate(req); err != nil {
		return err
	}
	a, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Debug(ctx, "recovery requested for unknown email")
			return nil
		}
		return err
	}

	tok, err := s.creds.IssueRecoveryToken(ctx, a)
	if err != nil {
		return err
	}
	return s.notifier.RecoveryToken(ctx, a, tok)
}

// CompleteRecovery sets a new password using a recovery token.
func (s *AuthService) CompleteRecovery(ctx context.Context, req CompleteRecoveryRequest) error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate(req); err != nil {
		return err
	}
	a, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrRecoveryTokenMismatch
		}
		return err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.creds.ConsumeRecoveryToken(ctx, a, req.Token, hash); err != nil {
		return err
	}
	s.logger.Info(ctx, "password recovered", "account_id", a.ID)
	return nil
}

// Me returns the caller's account and authorities.
func (s *AuthService) Me(ctx context.Context, p *authn.Principal) (*models.Account, []string, error) {
	a, err := s.account(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	auths, err := s.repo.Authorities(ctx, a.ID)
	if err != nil {
		return nil, nil, err
	}
	return a, auths, nil
}

// --- helpers below ---

func (s *AuthService) account(ctx context.Context, p *authn.Principal) (*models.Account, error) {
	if p == nil {
		return nil, common.ErrorUnauthorized
	}
	a, err := s.repo.GetByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// token outlived its account
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	return a, nil
}

func (s *AuthService) tokenPair(ctx context.Context, a *models.Account) (*auth.TokenPair, error) {
	scopes, err := s.repo.Authorities(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	pair, err := s.issuer.CreateTokenPair(a, a.Role, scopes)
	if err != nil {
		s.logger.Error(ctx, "token issuance failed", "account_id", a.ID, "error", err)
		return nil, err
	}
	return pair, nil
}

func (s *AuthService) sendVerification(ctx context.Context, a *models.Account) error {
	code, err := s.creds.IssueVerificationCode(ctx, a)
	if err != nil {
		return err
	}
	return s.notifier.VerificationCode(ctx, a, code)
}

func (s *AuthService) checkTOTP(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	return s.dummyHash
}
