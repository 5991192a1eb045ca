package devidentity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"workfolio/cmd/internal/credential"
	"workfolio/cmd/internal/ids"
	"workfolio/cmd/security/token"

	"github.com/golang-jwt/jwt/v5"
)

const refreshBytes = 32

// Claims are the access credential claims.
type Claims struct {
	Namespace string `json:"ns"`
	jwt.RegisteredClaims
}

// Pair is an issued credential set.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type grant struct {
	subject   string
	namespace credential.Namespace
}

// Issuer signs access credentials and tracks live refresh credentials in memory.
type Issuer struct {
	key       []byte
	issuer    string
	accessTTL time.Duration
	hasher    token.Hasher
	now       func() time.Time

	mu     sync.Mutex
	grants map[string]grant // refresh hash -> grant
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the issuer's time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config, opts ...IssuerOption) (*Issuer, error) {
	cfg.normalize()
	if len(cfg.SigningKey) < MinKeyBytes {
		return nil, ErrKeyTooShort
	}
	if cfg.AccessTTL <= 0 {
		return nil, ErrInvalidTTL
	}
	i := &Issuer{
		key:       []byte(cfg.SigningKey),
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTTL,
		hasher:    token.NewHasher([]byte(cfg.SigningKey)),
		now:       func() time.Time { return time.Now().UTC() },
		grants:    make(map[string]grant),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i, nil
}

// Issue creates a fresh pair for subject. With expired set the access credential is already
// past its expiry, which lets callers exercise renewal immediately.
func (i *Issuer) Issue(ns credential.Namespace, subject string, expired bool) (Pair, error) {
	if !ns.Valid() {
		return Pair{}, ErrUnknownNamespace
	}
	if subject == "" {
		return Pair{}, ErrMissingSubject
	}

	refresh, err := newRefresh()
	if err != nil {
		return Pair{}, err
	}
	access, err := i.sign(ns, subject, expired)
	if err != nil {
		return Pair{}, err
	}

	i.mu.Lock()
	i.grants[i.hasher.Hex(refresh)] = grant{subject: subject, namespace: ns}
	i.mu.Unlock()

	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// Rotate consumes refresh and issues a new pair for the same subject. A refresh credential
// works once.
func (i *Issuer) Rotate(ns credential.Namespace, refresh string) (Pair, error) {
	hash := i.hasher.Hex(refresh)
	if hash == "" {
		return Pair{}, ErrUnknownRefresh
	}

	next, err := newRefresh()
	if err != nil {
		return Pair{}, err
	}

	i.mu.Lock()
	g, ok := i.grants[hash]
	if !ok {
		i.mu.Unlock()
		return Pair{}, ErrUnknownRefresh
	}
	if g.namespace != ns {
		i.mu.Unlock()
		return Pair{}, ErrWrongNamespace
	}
	delete(i.grants, hash)
	i.grants[i.hasher.Hex(next)] = g
	i.mu.Unlock()

	access, err := i.sign(ns, g.subject, false)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: next}, nil
}

// Verify parses and validates an access credential for ns.
func (i *Issuer) Verify(ns credential.Namespace, access string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(access, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccess, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidAccess
	}
	if credential.Namespace(claims.Namespace) != ns {
		return nil, ErrWrongNamespace
	}
	return claims, nil
}

// Live returns the number of unconsumed refresh credentials.
func (i *Issuer) Live() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.grants)
}

func (i *Issuer) sign(ns credential.Namespace, subject string, expired bool) (string, error) {
	now := i.now()
	exp := now.Add(i.accessTTL)
	if expired {
		exp = now.Add(-time.Second)
	}
	claims := Claims{
		Namespace: string(ns),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ids.NewOrEmpty(now),
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("devidentity: sign access: %w", err)
	}
	return s, nil
}

func newRefresh() (string, error) {
	b := make([]byte, refreshBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("devidentity: generate refresh: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
