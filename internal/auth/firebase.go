package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	FirebaseCertsURL  = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	firebaseIssuerFmt = "https://securetoken.google.com/%s"
	defaultKeysMaxAge = time.Hour
)

// FirebaseVerifier checks Firebase ID tokens: RS256 signed by one of
// Google's rotating keys, issued for the configured project.
type FirebaseVerifier struct {
	keys   *KeySet
	parser *jwt.Parser
}

func NewFirebaseVerifier(projectID string, keys *KeySet) *FirebaseVerifier {
	return &FirebaseVerifier{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithAudience(projectID),
			jwt.WithIssuer(fmt.Sprintf(firebaseIssuerFmt, projectID)),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
		),
	}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, tokenStr string) (*Identity, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return &Identity{UID: claims.Subject, Email: claims.Email}, nil
}

// KeySet caches the provider's signing certificates for as long as the
// provider's Cache-Control header allows.
type KeySet struct {
	client *resty.Client
	url    string
	now    func() time.Time

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

func NewKeySet(url string) *KeySet {
	if url == "" {
		url = FirebaseCertsURL
	}
	return &KeySet{
		client: resty.New().SetTimeout(10 * time.Second).SetRetryCount(2),
		url:    url,
		now:    time.Now,
	}
}

func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	key, ok := k.keys[kid]
	fresh := k.now().Before(k.expires)
	k.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := k.refresh(ctx); err != nil {
		return nil, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if key, ok := k.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

func (k *KeySet) refresh(ctx context.Context) error {
	resp, err := k.client.R().SetContext(ctx).Get(k.url)
	if err != nil {
		return fmt.Errorf("fetch signing keys: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("fetch signing keys: %s", resp.Status())
	}

	var certs map[string]string
	if err := json.Unmarshal(resp.Body(), &certs); err != nil {
		return fmt.Errorf("decode signing keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pem := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return fmt.Errorf("parse signing key %q: %w", kid, err)
		}
		keys[kid] = key
	}

	k.mu.Lock()
	k.keys = keys
	k.expires = k.now().Add(maxAge(resp.Header().Get("Cache-Control")))
	k.mu.Unlock()
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return defaultKeysMaxAge
}
