package sheets

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	sheetsScope     = "https://www.googleapis.com/auth/spreadsheets"

	// Refresh this long before the token actually expires.
	tokenExpiryMargin = 5 * time.Minute
)

var emailRe = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

// TokenSource yields a bearer token for spreadsheet calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ServiceAccount exchanges a signed JWT assertion for an access token and
// caches it until shortly before expiry. Construct one per process and
// inject it into the Client; there is deliberately no package-level cache.
type ServiceAccount struct {
	ClientEmail string
	TokenURL    string       // defaults to the Google OAuth2 token endpoint
	HTTPClient  *http.Client // defaults to http.DefaultClient

	key *rsa.PrivateKey
	now func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewServiceAccount parses the PEM private key and validates credentials.
func NewServiceAccount(clientEmail, privateKeyPEM string) (*ServiceAccount, error) {
	if !emailRe.MatchString(clientEmail) || !strings.Contains(privateKeyPEM, "PRIVATE KEY") {
		return nil, newError(CodeAuth, "invalid or missing service account credentials")
	}
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, newError(CodeAuth, "private key is not valid PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, &Error{Code: CodeAuth, Message: "parse private key", Cause: err}
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, newError(CodeAuth, "private key is not RSA")
	}
	return &ServiceAccount{
		ClientEmail: clientEmail,
		key:         key,
		now:         time.Now,
	}, nil
}

func (s *ServiceAccount) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.expiry.After(s.now().Add(tokenExpiryMargin)) {
		return s.token, nil
	}

	assertion, err := s.signAssertion()
	if err != nil {
		return "", err
	}

	tokenURL := s.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &Error{Code: CodeAuth, Message: "build token request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &Error{Code: CodeAuth, Message: "token request failed: network error", Cause: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &errBody)
		desc := errBody.ErrorDescription
		if desc == "" {
			desc = resp.Status
		}
		return "", newError(fmt.Sprintf("%d", resp.StatusCode), "token request failed: %s", desc)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", newError(CodeAuth, "token response malformed")
	}

	s.token = tok.AccessToken
	s.expiry = s.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return s.token, nil
}

// signAssertion builds and RS256-signs the service account JWT claim set.
func (s *ServiceAccount) signAssertion() (string, error) {
	now := s.now().Unix()
	header := map[string]string{"alg": "RS256", "typ": "JWT"}
	claims := map[string]interface{}{
		"iss":   s.ClientEmail,
		"scope": sheetsScope,
		"aud":   defaultTokenURL,
		"exp":   now + 3600,
		"iat":   now,
	}

	encode := func(v interface{}) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return base64.RawURLEncoding.EncodeToString(b), nil
	}
	encHeader, err := encode(header)
	if err != nil {
		return "", &Error{Code: CodeAuth, Message: "encode jwt header", Cause: err}
	}
	encClaims, err := encode(claims)
	if err != nil {
		return "", &Error{Code: CodeAuth, Message: "encode jwt claims", Cause: err}
	}

	signingInput := encHeader + "." + encClaims
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", &Error{Code: CodeAuth, Message: "sign jwt", Cause: err}
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// StaticToken is a TokenSource for tests and pre-issued tokens.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }
