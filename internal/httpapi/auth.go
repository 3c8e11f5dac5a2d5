package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/service"
	"lojapos/backend/internal/store"
	"lojapos/backend/internal/xid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
)

const tokenIssuer = "lojapos"

// UserStore is what the auth layer needs from the repository.
type UserStore interface {
	store.Users
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
	logger   *zap.Logger
	now      func() time.Time
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore, logger *zap.Logger) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SeedUsers creates the owner and seller accounts when the store has no users
// yet. Blank passwords fall back to dev defaults.
func (a *AuthManager) SeedUsers(ctx context.Context, ownerPassword string, sellerPassword string) error {
	existing, err := a.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(existing) > 0 {
		return a.upgradeLegacyPasswords(ctx, existing)
	}

	if ownerPassword == "" || sellerPassword == "" {
		a.logger.Warn("using default dev credentials; set OWNER_PASSWORD_SEED and SELLER_PASSWORD_SEED")
	}
	if ownerPassword == "" {
		ownerPassword = "owner123"
	}
	if sellerPassword == "" {
		sellerPassword = "seller123"
	}

	seeds := []domain.UserAccount{
		{Username: "owner", DisplayName: "Proprietária", Password: ownerPassword, Role: domain.RoleOwner},
		{Username: "seller", DisplayName: "Vendedora", Password: sellerPassword, Role: domain.RoleSeller},
	}
	for _, seed := range seeds {
		hash, err := hashPassword(seed.Password)
		if err != nil {
			return fmt.Errorf("hash seed password for %s: %w", seed.Username, err)
		}
		seed.Password = hash
		seed.Active = true
		seed.CreatedAt = a.now()
		if err := a.users.CreateUser(ctx, seed); err != nil && !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("seed user %s: %w", seed.Username, err)
		}
	}
	a.logger.Info("seeded user accounts", zap.Int("count", len(seeds)))
	return nil
}

// upgradeLegacyPasswords rewrites any plain-text password left by an import
// as a bcrypt hash.
func (a *AuthManager) upgradeLegacyPasswords(ctx context.Context, accounts []domain.UserAccount) error {
	for _, account := range accounts {
		if account.Password == "" || isPasswordHash(account.Password) {
			continue
		}
		hashed, err := hashPassword(account.Password)
		if err != nil {
			return fmt.Errorf("hash legacy password for %s: %w", account.Username, err)
		}
		if err := a.users.UpdateUserPassword(ctx, account.Username, hashed); err != nil {
			return fmt.Errorf("upgrade password for %s: %w", account.Username, err)
		}
		a.logger.Info("upgraded legacy password hash", zap.String("username", account.Username))
	}
	return nil
}

func (a *AuthManager) lookup(ctx context.Context, username string) (domain.UserAccount, bool, error) {
	accounts, err := a.users.ListUsers(ctx)
	if err != nil {
		return domain.UserAccount{}, false, err
	}
	for _, account := range accounts {
		if account.Username == username {
			return account, true, nil
		}
	}
	return domain.UserAccount{}, false, nil
}

// Login checks the credentials and records the attempt in the login log.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	account, found, err := a.lookup(ctx, username)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	success := found && verifyPassword(account.Password, req.Password)
	a.recordLogin(ctx, username, success && account.Active)
	if !success {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !account.Active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(account, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        account.Role,
		DisplayName: account.DisplayName,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) recordLogin(ctx context.Context, username string, success bool) {
	if username == "" {
		return
	}
	if err := a.users.RecordLogin(ctx, domain.LoginEvent{Username: username, Success: success, At: a.now()}); err != nil {
		a.logger.Warn("failed to record login event", zap.String("username", username), zap.Error(err))
	}
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, DisplayName: claims.Name, Role: claims.Role}, nil
}

func (a *AuthManager) sign(account domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   account.Username,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role: account.Role,
		Name: account.DisplayName,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// VerifyOwnerPassword reports whether password belongs to an active owner
// account. It gates destructive operations.
func (a *AuthManager) VerifyOwnerPassword(ctx context.Context, password string) bool {
	if strings.TrimSpace(password) == "" {
		return false
	}
	accounts, err := a.users.ListUsers(ctx)
	if err != nil {
		a.logger.Warn("owner password check failed", zap.Error(err))
		return false
	}
	for _, account := range accounts {
		if account.Role == domain.RoleOwner && account.Active && verifyPassword(account.Password, password) {
			return true
		}
	}
	return false
}

func (a *AuthManager) CreateUser(ctx context.Context, actor domain.Actor, req domain.UserCreateRequest) (domain.User, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 3 {
		return domain.User{}, fmt.Errorf("%w: username must be at least 3 characters", store.ErrValidation)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.User{}, fmt.Errorf("%w: username must not contain spaces", store.ErrValidation)
	}
	if len(req.Password) < 6 {
		return domain.User{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrValidation)
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleSeller
	}
	if !domain.ValidRole(role) {
		return domain.User{}, fmt.Errorf("%w: unknown role %q", store.ErrValidation, req.Role)
	}
	if (role == domain.RoleOwner || role == domain.RoleAuditor) && actor.Role != domain.RoleOwner {
		return domain.User{}, fmt.Errorf("%w: only an owner can create a %s", store.ErrValidation, role)
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := a.now()
	if err := a.users.CreateUser(ctx, domain.UserAccount{
		Username:    username,
		DisplayName: displayName,
		Password:    passwordHash,
		Role:        role,
		Active:      true,
		CreatedAt:   now,
	}); err != nil {
		return domain.User{}, err
	}

	if err := a.users.CreateAuditLog(ctx, domain.AuditLog{
		ID:          xid.New("audit"),
		Action:      domain.AuditUserCreated,
		Description: fmt.Sprintf("User %s created with role %s", username, role),
		PerformedBy: actor.Name(),
		ActorRole:   actor.Role,
		EntityType:  "user",
		EntityID:    username,
		CreatedAt:   now,
	}); err != nil {
		a.logger.Warn("failed to write audit log", zap.String("action", domain.AuditUserCreated), zap.Error(err))
	}

	return domain.User{
		Username:    username,
		DisplayName: displayName,
		Role:        role,
		Active:      true,
		CreatedAt:   now,
	}, nil
}

// DeleteConfirmation carries the passwords a user deletion may need.
type DeleteConfirmation struct {
	OwnerPassword   string
	AuditorPassword string
}

// DeleteUser removes an account. The owner account is permanent. An owner
// removing an auditor must present that auditor's password, an admin needs
// the owner password and can never remove an auditor, and an auditor may
// remove anyone else.
func (a *AuthManager) DeleteUser(ctx context.Context, actor domain.Actor, username string, confirm DeleteConfirmation) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return fmt.Errorf("%w: username is required", store.ErrValidation)
	}
	if username == actor.Username {
		return fmt.Errorf("%w: cannot delete the signed-in account", store.ErrValidation)
	}
	target, err := a.findAccount(ctx, username)
	if err != nil {
		return err
	}
	if target.Role == domain.RoleOwner {
		return fmt.Errorf("%w: the owner account cannot be deleted", store.ErrValidation)
	}

	description := fmt.Sprintf("User %s deleted", username)
	switch actor.Role {
	case domain.RoleOwner:
		if target.Role == domain.RoleAuditor {
			if !verifyPassword(target.Password, confirm.AuditorPassword) {
				return fmt.Errorf("%w: auditor password required", service.ErrForbidden)
			}
			description = fmt.Sprintf("Auditor %s deleted with auditor confirmation", username)
		}
	case domain.RoleAdmin:
		if target.Role == domain.RoleAuditor {
			return fmt.Errorf("%w: admins cannot delete auditors", service.ErrForbidden)
		}
		if !a.VerifyOwnerPassword(ctx, confirm.OwnerPassword) {
			return fmt.Errorf("%w: owner password required", service.ErrForbidden)
		}
	case domain.RoleAuditor:
		description = fmt.Sprintf("User %s deleted by audit", username)
	default:
		return fmt.Errorf("%w: role %s cannot delete users", service.ErrForbidden, actor.Role)
	}

	return a.users.DeleteUser(ctx, username, domain.AuditLog{
		ID:          xid.New("audit"),
		Action:      domain.AuditUserDeleted,
		Description: description,
		PerformedBy: actor.Name(),
		ActorRole:   actor.Role,
		EntityType:  "user",
		EntityID:    username,
		CreatedAt:   a.now(),
	})
}

func (a *AuthManager) findAccount(ctx context.Context, username string) (domain.UserAccount, error) {
	accounts, err := a.users.ListUsers(ctx)
	if err != nil {
		return domain.UserAccount{}, err
	}
	for _, account := range accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return domain.UserAccount{}, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
