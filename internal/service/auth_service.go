package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"auth-api/internal/domain"
	"auth-api/internal/email"
	"auth-api/internal/repository"
)

// AppPolicies resuelve la politica de tokens de la app que llama.
type AppPolicies interface {
	Lookup(ctx context.Context, appID string) (domain.AppRegistration, error)
}

// AuthDeps agrupa los colaboradores de AuthService.
type AuthDeps struct {
	Logger      *zap.Logger
	Apps        AppPolicies
	Users       repository.UserRepository
	Tokens      repository.RefreshTokenRepository
	TokenIssuer *TokenService
	Hasher      PasswordHasher
	Sender      email.Sender
	Exchange    ExchangeStore
	OTPTTL      time.Duration
	ExchangeTTL time.Duration
}

// AuthService implementa los flujos de alta y acceso. Todos terminan en TokenService.
type AuthService struct {
	logger      *zap.Logger
	apps        AppPolicies
	users       repository.UserRepository
	tokens      repository.RefreshTokenRepository
	resolver    *IdentityResolver
	upserter    *UserUpserter
	issuer      *TokenService
	hasher      PasswordHasher
	sender      email.Sender
	exchange    ExchangeStore
	otpTTL      time.Duration
	exchangeTTL time.Duration
	now         func() time.Time
}

func NewAuthService(deps AuthDeps) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sender := deps.Sender
	if sender == nil {
		sender = email.NewLogSender(logger)
	}
	exchange := deps.Exchange
	if exchange == nil {
		exchange = NewMemoryExchangeStore()
	}
	hasher := deps.Hasher
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	otpTTL := deps.OTPTTL
	if otpTTL <= 0 {
		otpTTL = defaultOTPTTL
	}
	exchangeTTL := deps.ExchangeTTL
	if exchangeTTL <= 0 {
		exchangeTTL = 2 * time.Minute
	}
	return &AuthService{
		logger:      logger,
		apps:        deps.Apps,
		users:       deps.Users,
		tokens:      deps.Tokens,
		resolver:    NewIdentityResolver(deps.Users),
		upserter:    NewUserUpserter(deps.Users),
		issuer:      deps.TokenIssuer,
		hasher:      hasher,
		sender:      sender,
		exchange:    exchange,
		otpTTL:      otpTTL,
		exchangeTTL: exchangeTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AuthResult es la respuesta de los flujos que emiten tokens.
type AuthResult struct {
	TokenPair
	User         domain.User
	WasCreated   bool
	WasConfirmed bool
}

type SignupInput struct {
	Username string
	Email    string
	Password string
}

// Signup da de alta una cuenta con contraseña y emite tokens sin paso de OTP.
func (s *AuthService) Signup(ctx context.Context, appID string, in SignupInput) (AuthResult, error) {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return AuthResult{}, err
	}
	username := strings.TrimSpace(in.Username)
	emailAddr := normalizeEmail(in.Email)
	if username == "" && emailAddr == "" {
		return AuthResult{}, ErrEmailOrUsernameRequired
	}
	if in.Password == "" {
		return AuthResult{}, ErrPasswordRequired
	}
	if len(in.Password) > maxPasswordBytes {
		return AuthResult{}, ErrPasswordTooLong
	}
	if emailAddr != "" && !looksLikeEmail(emailAddr) {
		return AuthResult{}, ErrInvalidEmail
	}

	if username != "" {
		if Slugify(username) == "" {
			return AuthResult{}, ErrInvalidUsername
		}
		_, taken, err := s.findBySlug(ctx, policy.AppID, username)
		if err != nil {
			return AuthResult{}, err
		}
		if taken {
			return AuthResult{}, ErrUsernameTaken
		}
	}
	if emailAddr != "" {
		_, registered, err := s.resolver.Resolve(ctx, emailAddr, policy.AppID, "")
		if err != nil {
			return AuthResult{}, err
		}
		if registered {
			return AuthResult{}, ErrUserAlreadyRegistered
		}
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	res, err := s.upserter.Upsert(ctx, "", UserAttrs{
		AppID:        policy.AppID,
		Username:     optional(username),
		Email:        optional(emailAddr),
		PasswordHash: &digest,
		Role:         ptr(domain.RoleUser),
		Provider:     ptr(domain.ProviderPassword),
	})
	if err != nil {
		return AuthResult{}, err
	}
	s.logger.Info("user signed up", zap.String("user_id", res.User.ID), zap.String("app_id", policy.AppID))
	return s.issue(ctx, res.User, policy, true, false)
}

// EmailSignup deja el email pendiente en tmpField, guarda un OTP nuevo y lo envia.
// Devuelve la expiracion del codigo.
func (s *AuthService) EmailSignup(ctx context.Context, appID, username, emailAddr string) (time.Time, error) {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return time.Time{}, err
	}
	username = strings.TrimSpace(username)
	emailAddr = normalizeEmail(emailAddr)
	if username == "" || emailAddr == "" {
		return time.Time{}, ErrUsernameAndEmailRequired
	}
	if !looksLikeEmail(emailAddr) {
		return time.Time{}, ErrInvalidEmail
	}
	slug := Slugify(username)
	if slug == "" {
		return time.Time{}, ErrInvalidUsername
	}

	if _, err := s.SweepExpired(ctx); err != nil {
		s.logger.Warn("sweep expired state failed", zap.Error(err))
	}

	owner, owned, err := s.resolver.Resolve(ctx, emailAddr, policy.AppID, "")
	if err != nil {
		return time.Time{}, err
	}
	if owned && owner.Email == emailAddr && owner.Slug != slug {
		return time.Time{}, ErrEmailInUse
	}

	existing, found, err := s.findBySlug(ctx, policy.AppID, username)
	if err != nil {
		return time.Time{}, err
	}
	if found && lockedIdentity(existing) && existing.Email != emailAddr {
		return time.Time{}, ErrUsernameInUseOtherAccount
	}
	code, hash, expiresAt, err := generateOTP(s.now(), s.otpTTL)
	if err != nil {
		return time.Time{}, fmt.Errorf("generate otp: %w", err)
	}

	id := ""
	attrs := UserAttrs{
		AppID:        policy.AppID,
		Username:     &username,
		TmpField:     &emailAddr,
		Provider:     ptr(domain.ProviderEmail),
		OtpCodeHash:  &hash,
		OtpExpiresAt: &expiresAt,
	}
	if found {
		id = existing.ID
		if lockedIdentity(existing) {
			attrs.Provider = nil
		}
	}
	res, err := s.upserter.Upsert(ctx, id, attrs)
	if err != nil {
		return time.Time{}, err
	}

	if err := s.sender.SendVerificationOTP(ctx, emailAddr, code, expiresAt); err != nil {
		s.logger.Warn("send verification otp failed", zap.Error(err), zap.String("email", emailAddr), zap.String("user_id", res.User.ID))
		return time.Time{}, ErrEmailSendFailure
	}
	return expiresAt, nil
}

type OTPConfirmationInput struct {
	OTP      string
	Email    string
	Username string
}

// OTPConfirmation valida el codigo pendiente, promueve tmpField a email si coincide y
// limpia siempre el estado pendiente. No emite tokens: eso lo hace Passwordless.
func (s *AuthService) OTPConfirmation(ctx context.Context, appID string, in OTPConfirmationInput) (string, error) {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return "", err
	}
	code := strings.TrimSpace(in.OTP)
	emailAddr := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	if username == "" && emailAddr == "" {
		return "", ErrEmailOrUsernameRequired
	}

	var (
		user  domain.User
		found bool
	)
	if username != "" {
		if user, found, err = s.findBySlug(ctx, policy.AppID, username); err != nil {
			return "", err
		}
	}
	if !found && emailAddr != "" {
		if user, found, err = s.resolver.Resolve(ctx, emailAddr, policy.AppID, ""); err != nil {
			return "", err
		}
	}
	if !found {
		return "", ErrUserNotFound
	}

	if !user.HasPendingOTP() || !isValidOTPCode(code) || !verifyOTP(code, user.OtpCodeHash) {
		return "", ErrOTPInvalid
	}
	if !s.now().Before(*user.OtpExpiresAt) {
		return "", ErrOTPExpired
	}

	attrs := UserAttrs{AppID: policy.AppID, ClearPending: true}
	if user.TmpField != "" && emailAddr != "" && user.TmpField == emailAddr {
		attrs.Email = &emailAddr
	}
	if _, err := s.upserter.Update(ctx, user, attrs); err != nil {
		if errors.Is(err, ErrUserAlreadyRegistered) && attrs.Email != nil {
			return "", ErrEmailInUse
		}
		return "", err
	}
	return user.ID, nil
}

type PasswordlessInput struct {
	Username string
	Email    string
	Phone    string
	RefID    string
	UserID   string
	Provider string
}

// Passwordless hace upsert del usuario y emite tokens. Repetir la llamada con los mismos
// datos deja el mismo usuario.
func (s *AuthService) Passwordless(ctx context.Context, appID string, in PasswordlessInput) (AuthResult, error) {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return AuthResult{}, err
	}
	username := strings.TrimSpace(in.Username)
	emailAddr := normalizeEmail(in.Email)
	phone := strings.TrimSpace(in.Phone)
	refID := strings.TrimSpace(in.RefID)
	userID := strings.TrimSpace(in.UserID)
	provider := strings.ToLower(strings.TrimSpace(in.Provider))

	if username == "" || (emailAddr == "" && phone == "") {
		if emailAddr != "" {
			return AuthResult{}, ErrUsernameAndEmailRequired
		}
		return AuthResult{}, ErrUsernameAndPhoneRequired
	}
	if emailAddr != "" && !looksLikeEmail(emailAddr) {
		return AuthResult{}, ErrInvalidEmail
	}
	if phone != "" && !strings.HasPrefix(phone, "+") {
		return AuthResult{}, ErrInvalidPhone
	}

	var (
		existing domain.User
		found    bool
	)
	if userID != "" {
		existing, err = s.users.FindByID(ctx, userID)
		switch {
		case err == nil:
			if existing.AppID != policy.AppID {
				return AuthResult{}, ErrUserNotFound
			}
			found = true
		case !errors.Is(err, repository.ErrNotFound):
			return AuthResult{}, fmt.Errorf("find user %s: %w", userID, err)
		}
	} else {
		if existing, found, err = s.findBySlug(ctx, policy.AppID, username); err != nil {
			return AuthResult{}, err
		}
		if !found && refID != "" && provider != "" && provider != domain.ProviderEmail {
			if existing, found, err = s.resolver.Resolve(ctx, refID, policy.AppID, provider); err != nil {
				return AuthResult{}, err
			}
		}
	}
	if found && provider == domain.ProviderEmail && existing.HasPendingOTP() {
		return AuthResult{}, ErrOTPPending
	}
	locked := found && lockedIdentity(existing)
	if locked && ((emailAddr != "" && existing.Email != emailAddr) || (phone != "" && existing.Phone != phone)) {
		return AuthResult{}, ErrUsernameInUseOtherAccount
	}

	attrs := UserAttrs{
		AppID:    policy.AppID,
		Username: &username,
		Provider: optional(provider),
		RefID:    optional(refID),
	}
	// Un contacto distinto del guardado queda pendiente, salvo que el proveedor ya lo
	// haya verificado (email via OTP, telefono via firebase).
	if emailAddr != "" {
		if found && existing.Email != emailAddr && provider != domain.ProviderEmail {
			attrs.TmpField = &emailAddr
		} else {
			attrs.Email = &emailAddr
		}
	}
	if phone != "" {
		if found && existing.Phone != phone && provider != domain.ProviderFirebase {
			attrs.TmpField = &phone
		} else {
			attrs.Phone = &phone
		}
	}
	attrs.ClearPending = attrs.TmpField == nil && domain.IsPasswordlessProvider(provider)
	if locked {
		attrs.Provider = nil
		attrs.RefID = nil
	}

	id := userID
	if found {
		id = existing.ID
	}
	res, err := s.upserter.Upsert(ctx, id, attrs)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(ctx, res.User, policy, res.WasCreated, res.WasConfirmed)
}

type LoginInput struct {
	Username string
	Email    string
	Phone    string
	Password string
}

// Login verifica la contraseña. Usuario inexistente, sin contraseña o contraseña erronea
// devuelven el mismo ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, appID string, in LoginInput) (AuthResult, error) {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return AuthResult{}, err
	}
	key := firstNonEmpty(in.Username, in.Email, in.Phone)
	if key == "" {
		return AuthResult{}, ErrIdentityRequired
	}

	user, found, err := s.resolver.Resolve(ctx, key, policy.AppID, "")
	if err != nil {
		return AuthResult{}, err
	}
	if !found || !ownsKey(user, key) || user.PasswordHash == "" || !s.hasher.Verify(in.Password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	return s.issue(ctx, user, policy, false, false)
}

// Refresh emite un par nuevo a partir de un refresh token o, en apps revocables, del
// userId dueño del token guardado.
func (s *AuthService) Refresh(ctx context.Context, appID, refreshToken, userID string) (TokenPair, error) {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return TokenPair{}, err
	}
	pair, _, err := s.issuer.Refresh(ctx, policy, refreshToken, userID)
	return pair, err
}

// Logout es idempotente: no encontrar tokens no es error.
func (s *AuthService) Logout(ctx context.Context, appID, refreshToken, userID string) error {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return err
	}
	if userID = strings.TrimSpace(userID); userID != "" {
		if err := s.issuer.RevokeAll(ctx, userID, policy.AppID); err != nil {
			return err
		}
	}
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		if err := s.issuer.RevokeOne(ctx, refreshToken, policy.AppID); err != nil {
			return err
		}
	}
	return nil
}

type CheckUsernameInput struct {
	Username string
	Phone    string
	Email    string
	Provider string
}

// CheckUsername decide si la combinacion username + contacto se puede usar en un alta o
// actualizacion. Reenviar los propios datos siempre es valido.
func (s *AuthService) CheckUsername(ctx context.Context, appID string, in CheckUsernameInput) error {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return err
	}
	username := strings.TrimSpace(in.Username)
	phone := strings.TrimSpace(in.Phone)
	emailAddr := normalizeEmail(in.Email)
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if username == "" {
		return ErrUsernameRequired
	}
	if phone == "" && emailAddr == "" {
		return ErrContactRequired
	}
	slug := Slugify(username)

	contactOwned := false
	if phone != "" {
		owner, found, err := s.resolver.Resolve(ctx, phone, policy.AppID, "")
		if err != nil {
			return err
		}
		if found {
			if owner.Slug != slug {
				return ErrPhoneInUse
			}
			contactOwned = true
		}
	}
	if emailAddr != "" {
		owner, found, err := s.resolver.Resolve(ctx, emailAddr, policy.AppID, "")
		if err != nil {
			return err
		}
		if found {
			if owner.Slug != slug {
				return ErrEmailInUse
			}
			contactOwned = true
		}
	}
	if contactOwned {
		return nil
	}

	owner, found, err := s.findBySlug(ctx, policy.AppID, username)
	if err != nil || !found {
		return err
	}
	if domain.IsPasswordlessProvider(owner.Provider) && (provider == "" || domain.IsPasswordlessProvider(provider)) {
		return nil
	}
	if phone != "" && owner.Phone != phone {
		return ErrUsernameInUseOtherAccount
	}
	if emailAddr != "" && owner.Email != emailAddr {
		return ErrUsernameInUseOtherAccount
	}
	return nil
}

// DeleteUser borra el usuario y sus refresh tokens. Devuelve el usuario borrado para que
// el llamador pueda limpiar la identidad externa (refId).
func (s *AuthService) DeleteUser(ctx context.Context, appID, userID string) (domain.User, error) {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return domain.User{}, err
	}
	if userID = strings.TrimSpace(userID); userID == "" {
		return domain.User{}, ErrUserIDRequired
	}
	user, err := s.CurrentUser(ctx, policy.AppID, userID)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.tokens.DeleteAllForUser(ctx, user.ID); err != nil {
		return domain.User{}, fmt.Errorf("delete refresh tokens: %w", err)
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info("user deleted", zap.String("user_id", user.ID), zap.String("app_id", policy.AppID))
	return user, nil
}

// CurrentUser carga un usuario de la app; los de otras apps no existen.
func (s *AuthService) CurrentUser(ctx context.Context, appID, userID string) (domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	if user.AppID != appID {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

type GoogleProfile struct {
	RefID   string
	Email   string
	Name    string
	Picture string
}

// GoogleSignup vincula o crea el usuario de un perfil de Google ya validado y devuelve un
// token de intercambio de un solo uso en lugar del par de tokens.
func (s *AuthService) GoogleSignup(ctx context.Context, appID string, profile GoogleProfile) (string, error) {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return "", err
	}
	refID := strings.TrimSpace(profile.RefID)
	emailAddr := normalizeEmail(profile.Email)
	name := strings.TrimSpace(profile.Name)
	if refID == "" || emailAddr == "" {
		return "", ErrGoogleProfileInvalid
	}
	if !looksLikeEmail(emailAddr) {
		return "", ErrInvalidEmail
	}

	user, found, err := s.resolver.Resolve(ctx, refID, policy.AppID, domain.ProviderGoogle)
	if err != nil {
		return "", err
	}
	if !found {
		if user, found, err = s.resolver.Resolve(ctx, emailAddr, policy.AppID, ""); err != nil {
			return "", err
		}
		found = found && user.Email == emailAddr
	}

	attrs := UserAttrs{
		AppID:    policy.AppID,
		RefID:    &refID,
		Provider: ptr(domain.ProviderGoogle),
		Picture:  optional(strings.TrimSpace(profile.Picture)),
	}
	id := ""
	if found {
		id = user.ID
	} else {
		attrs.Email = &emailAddr
		if name != "" {
			_, taken, err := s.findBySlug(ctx, policy.AppID, name)
			if err != nil {
				return "", err
			}
			if !taken {
				attrs.Username = &name
			}
		}
	}
	res, err := s.upserter.Upsert(ctx, id, attrs)
	if err != nil {
		return "", err
	}

	token := newExchangeToken()
	claims := ExchangeClaims{
		UserID:   res.User.ID,
		AppID:    policy.AppID,
		Provider: domain.ProviderGoogle,
		Created:  res.WasCreated,
	}
	if err := s.exchange.Put(ctx, token, claims, s.exchangeTTL); err != nil {
		return "", fmt.Errorf("store exchange token: %w", err)
	}
	return token, nil
}

// GoogleUser canjea el token de intercambio por el par de tokens real.
func (s *AuthService) GoogleUser(ctx context.Context, appID, token string) (AuthResult, error) {
	policy, err := s.apps.Lookup(ctx, appID)
	if err != nil {
		return AuthResult{}, err
	}
	if token = strings.TrimSpace(token); token == "" {
		return AuthResult{}, ErrInvalidExchangeToken
	}
	claims, err := s.exchange.Take(ctx, token)
	if err != nil {
		return AuthResult{}, err
	}
	if claims.AppID != policy.AppID {
		return AuthResult{}, ErrInvalidExchangeToken
	}
	user, err := s.CurrentUser(ctx, policy.AppID, claims.UserID)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(ctx, user, policy, claims.Created, !claims.Created)
}

type SweepResult struct {
	OTPCleared    int64
	TokensDeleted int64
}

// SweepExpired limpia OTPs vencidos y refresh tokens expirados.
func (s *AuthService) SweepExpired(ctx context.Context) (SweepResult, error) {
	now := s.now()
	cleared, err := s.users.ClearExpiredOTP(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("clear expired otp: %w", err)
	}
	deleted, err := s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		return SweepResult{OTPCleared: cleared}, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	if cleared > 0 || deleted > 0 {
		s.logger.Debug("expired state swept", zap.Int64("otp_cleared", cleared), zap.Int64("tokens_deleted", deleted))
	}
	return SweepResult{OTPCleared: cleared, TokensDeleted: deleted}, nil
}

func (s *AuthService) issue(ctx context.Context, user domain.User, policy domain.AppRegistration, created, confirmed bool) (AuthResult, error) {
	pair, err := s.issuer.IssuePair(ctx, user, policy)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{TokenPair: pair, User: user, WasCreated: created, WasConfirmed: confirmed}, nil
}

func (s *AuthService) findBySlug(ctx context.Context, appID, username string) (domain.User, bool, error) {
	slug := Slugify(username)
	if slug == "" {
		return domain.User{}, false, nil
	}
	user, err := s.users.FindByField(ctx, appID, repository.LookupSlug, slug, "")
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, fmt.Errorf("find user by slug: %w", err)
	}
	return user, true, nil
}

// ownsKey descarta coincidencias solo por tmpField: un contacto sin confirmar no sirve
// para entrar.
func ownsKey(user domain.User, key string) bool {
	field, value := ClassifyKey(key, "")
	switch field {
	case repository.LookupEmail:
		return user.Email == value
	case repository.LookupPhone:
		return user.Phone == value
	default:
		return true
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// lockedIdentity indica que la cuenta pertenece a un proveedor que no es sin contraseña:
// los flujos passwordless no pueden cambiarle el contacto ni el proveedor.
func lockedIdentity(u domain.User) bool {
	return u.Provider != "" && !domain.IsPasswordlessProvider(u.Provider)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
