package oidc

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/hashicorp/capclient/jwt"
	"github.com/stretchr/testify/require"
)

// TestProvider is a local identity provider serving the authorize, token,
// device authorization, device token and key set endpoints, which make
// writing tests much easier. Replies are scriptable per test.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	privKey *rsa.PrivateKey
	keyId   string

	mu                    sync.Mutex
	clientId              string
	replySubject          string
	replyEmail            string
	expectedAuthCode      string
	authCodeChallenges    map[string]string
	customClaims          map[string]interface{}
	customAudience        string
	omitIdToken           bool
	jwks                  []byte
	accessTokenExpiresIn  int64
	refreshToken          string
	refreshTokenExpiresIn int64
	idTokenExpiresIn      time.Duration
	tokenErrorCode        string
	deviceCode            string
	userCode              string
	deviceExpiresIn       int64
	deviceInterval        int64
	deviceAuthorizeError  string
	deviceReplies         []string
	deviceTokenCalls      int
	nowFunc               func() time.Time

	t TestingT
}

// StartTestProvider creates a disposable TLS TestProvider. It's stopped with
// t.Cleanup when t supports it, otherwise the caller must call Stop.
func StartTestProvider(t TestingT) *TestProvider {
	if v, ok := t.(HelperT); ok {
		v.Helper()
	}
	require := require.New(t)

	p := &TestProvider{
		clientId:              "test-client-id",
		replySubject:          "alice@clients",
		replyEmail:            "alice@example.com",
		expectedAuthCode:      "test-auth-code",
		authCodeChallenges:    map[string]string{},
		accessTokenExpiresIn:  3600,
		refreshToken:          "test-refresh-token",
		refreshTokenExpiresIn: 86400,
		idTokenExpiresIn:      5 * time.Minute,
		deviceCode:            "test-device-code",
		userCode:              "WDJB-MJHT",
		deviceExpiresIn:       600,
		deviceInterval:        5,
		keyId:                 "test-kid",
		nowFunc:               time.Now,
		t:                     t,
	}
	p.privKey = jwt.TestGenerateKeys(t)
	p.jwks = jwt.TestJWKS(t, &p.privKey.PublicKey, p.keyId)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	if v, ok := t.(CleanupT); ok {
		v.Cleanup(p.httpServer.Close)
	}

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the provider's address, which is also its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the provider's TLS
// server.
func (p *TestProvider) CACert() string { return p.caCert }

// ClientId returns the client id the provider expects.
func (p *TestProvider) ClientId() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientId
}

// HTTPClient returns a client which trusts the provider's TLS certificate.
func (p *TestProvider) HTTPClient() *http.Client { return p.httpServer.Client() }

// PrivateKey returns the provider's signing key and key id.
func (p *TestProvider) PrivateKey() (*rsa.PrivateKey, string) { return p.privKey, p.keyId }

// NewConfig returns a Config for the provider: both base URLs and the issuer
// are Addr() and the provider's CA is trusted.
func (p *TestProvider) NewConfig(redirectURL string, opt ...Option) (*Config, error) {
	opts := append([]Option{WithProviderCA(p.CACert())}, opt...)
	return NewConfig(p.ClientId(), p.Addr(), p.Addr(), redirectURL, opts...)
}

// SetClientId sets the client id the provider expects and issues id_tokens
// for.
func (p *TestProvider) SetClientId(clientId string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientId = clientId
}

// SetExpectedAuthCode configures the auth code returned by /authorize and
// required by the token endpoint. An empty code makes /authorize reply with
// access_denied.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetCustomClaims sets additional id_token claims.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience overrides the id_token audience.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// OmitIdTokens makes the token endpoints reply without an id_token.
func (p *TestProvider) OmitIdTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIdToken = true
}

// SetJWKS replaces the published key set document.
func (p *TestProvider) SetJWKS(jwks []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jwks = jwks
}

// SetRefreshToken sets the refresh token issued and accepted by the provider
// and its lifetime in seconds. An empty token issues no refresh token.
func (p *TestProvider) SetRefreshToken(rt string, expiresIn int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshToken, p.refreshTokenExpiresIn = rt, expiresIn
}

// SetTokenLifetimes sets the access token lifetime in seconds and the
// id_token lifetime.
func (p *TestProvider) SetTokenLifetimes(accessTokenExpiresIn int64, idTokenExpiresIn time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenExpiresIn, p.idTokenExpiresIn = accessTokenExpiresIn, idTokenExpiresIn
}

// SetTokenError makes the token endpoint reply with the error code. An empty
// code clears it.
func (p *TestProvider) SetTokenError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenErrorCode = code
}

// SetDeviceCode configures the device authorization reply.
func (p *TestProvider) SetDeviceCode(deviceCode, userCode string, expiresIn, interval int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceCode, p.userCode, p.deviceExpiresIn, p.deviceInterval = deviceCode, userCode, expiresIn, interval
}

// SetDeviceAuthorizeError makes the device authorization endpoint reply with
// the error code. An empty code clears it.
func (p *TestProvider) SetDeviceAuthorizeError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceAuthorizeError = code
}

// SetDeviceTokenReplies queues the device token endpoint's replies. An empty
// string is a successful token reply, anything else is returned as the error
// code. Once the queue is drained every poll succeeds.
func (p *TestProvider) SetDeviceTokenReplies(replies ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceReplies = replies
	p.deviceTokenCalls = 0
}

// DeviceTokenCalls returns the number of device token requests received.
func (p *TestProvider) DeviceTokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceTokenCalls
}

// SetNowFunc sets the clock used for issued id_tokens.
func (p *TestProvider) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowFunc = now
}

// IdToken returns a signed id_token for the provider's current settings.
func (p *TestProvider) IdToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signIdToken()
}

// WebAuthSession returns a WebAuthSession which follows the provider's
// /authorize redirect without a browser.
func (p *TestProvider) WebAuthSession() WebAuthSession {
	return testWebAuthSession{client: p.httpServer.Client()}
}

type testWebAuthSession struct {
	client *http.Client
}

func (s testWebAuthSession) Start(ctx context.Context, authURL string, callbackScheme string) (*url.URL, error) {
	const op = "testWebAuthSession.Start"
	client := *s.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil || loc.Scheme != callbackScheme {
		return nil, fmt.Errorf("%s: unexpected redirect %q: %w", op, resp.Header.Get("Location"), ErrAuthorizationCallbackDataMissing)
	}
	return loc, nil
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	_ = p.writeJSON(w, &body)
}

// signIdToken must be called with p.mu held.
func (p *TestProvider) signIdToken() string {
	now := p.nowFunc()
	stdClaims := josejwt.Claims{
		Subject:  p.replySubject,
		Issuer:   p.Addr(),
		IssuedAt: josejwt.NewNumericDate(now),
		Expiry:   josejwt.NewNumericDate(now.Add(p.idTokenExpiresIn)),
		Audience: josejwt.Audience{p.clientId},
	}
	if p.customAudience != "" {
		stdClaims.Audience = josejwt.Audience{p.customAudience}
	}
	claims := map[string]interface{}{"email": p.replyEmail}
	for k, v := range p.customClaims {
		claims[k] = v
	}
	return jwt.TestSignJWT(p.t, p.privKey, p.keyId, stdClaims, claims)
}

// writeTokens must be called with p.mu held.
func (p *TestProvider) writeTokens(w http.ResponseWriter) {
	reply := struct {
		IdToken               string `json:"id_token,omitempty"`
		AccessToken           string `json:"access_token"`
		TokenType             string `json:"token_type"`
		ExpiresIn             int64  `json:"expires_in"`
		RefreshToken          string `json:"refresh_token,omitempty"`
		RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in,omitempty"`
	}{
		AccessToken: fmt.Sprintf("access-%d", p.nowFunc().UnixNano()),
		TokenType:   "Bearer",
		ExpiresIn:   p.accessTokenExpiresIn,
	}
	if !p.omitIdToken {
		reply.IdToken = p.signIdToken()
	}
	if p.refreshToken != "" {
		reply.RefreshToken, reply.RefreshTokenExpiresIn = p.refreshToken, p.refreshTokenExpiresIn
	}
	_ = p.writeJSON(w, &reply)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case AuthorizePath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		switch {
		case qv.Get("redirect_uri") == "":
			w.WriteHeader(http.StatusBadRequest)
			return
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		case qv.Get("client_id") != p.clientId:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
			return
		case qv.Get("state") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		case qv.Get("code_challenge") == "" || qv.Get("code_challenge_method") != string(S256):
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing S256 code_challenge")
			return
		case p.expectedAuthCode == "":
			p.writeAuthErrorResponse(w, req, "access_denied", "the user denied the request")
			return
		}
		p.authCodeChallenges[p.expectedAuthCode] = qv.Get("code_challenge")
		redirectURI := qv.Get("redirect_uri") +
			"?state=" + url.QueryEscape(qv.Get("state")) +
			"&code=" + url.QueryEscape(p.expectedAuthCode)
		http.Redirect(w, req, redirectURI, http.StatusFound)

	case KeySetPath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write(p.jwks)

	case TokenPath:
		body, ok := p.readBody(w, req)
		if !ok {
			return
		}
		if p.tokenErrorCode != "" {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, p.tokenErrorCode, "scripted error")
			return
		}
		switch body["grant_type"] {
		case GrantTypeAuthorizationCode:
			challenge, found := p.authCodeChallenges[body["code"]]
			sum := sha256.Sum256([]byte(body["code_verifier"]))
			switch {
			case body["code"] != p.expectedAuthCode || !found:
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
				return
			case base64.RawURLEncoding.EncodeToString(sum[:]) != challenge:
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match")
				return
			}
			delete(p.authCodeChallenges, body["code"])
		case GrantTypeRefreshToken:
			if p.refreshToken == "" || body["refresh_token"] != p.refreshToken {
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected refresh token")
				return
			}
		default:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "")
			return
		}
		p.writeTokens(w)

	case DeviceAuthorizePath:
		if _, ok := p.readBody(w, req); !ok {
			return
		}
		if p.deviceAuthorizeError != "" {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, p.deviceAuthorizeError, "scripted error")
			return
		}
		reply := struct {
			DeviceCode              string `json:"device_code"`
			UserCode                string `json:"user_code"`
			VerificationUri         string `json:"verification_uri"`
			VerificationUriComplete string `json:"verification_uri_complete"`
			ExpiresIn               int64  `json:"expires_in"`
			Interval                int64  `json:"interval"`
		}{
			DeviceCode:              p.deviceCode,
			UserCode:                p.userCode,
			VerificationUri:         p.Addr() + "/device",
			VerificationUriComplete: p.Addr() + "/device?user_code=" + url.QueryEscape(p.userCode),
			ExpiresIn:               p.deviceExpiresIn,
			Interval:                p.deviceInterval,
		}
		_ = p.writeJSON(w, &reply)

	case DeviceTokenPath:
		body, ok := p.readBody(w, req)
		if !ok {
			return
		}
		p.deviceTokenCalls++
		switch {
		case body["grant_type"] != GrantTypeDeviceCode:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "")
			return
		case body["device_code"] != p.deviceCode:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected device code")
			return
		}
		if len(p.deviceReplies) > 0 {
			next := p.deviceReplies[0]
			p.deviceReplies = p.deviceReplies[1:]
			if next != "" {
				p.writeTokenErrorResponse(w, http.StatusBadRequest, next, "")
				return
			}
		}
		p.writeTokens(w)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// readBody decodes a JSON POST body of string values, replying with an error
// when it can't.
func (p *TestProvider) readBody(w http.ResponseWriter, req *http.Request) (map[string]string, bool) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, false
	}
	var raw map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "body is not json")
		return nil, false
	}
	if raw["client_id"] != p.clientId {
		p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "")
		return nil, false
	}
	body := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			body[k] = s
		}
	}
	return body, true
}
