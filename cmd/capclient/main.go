// Command capclient signs in against an authorization server with either the
// browser based authorization code flow or the device flow, then prints the
// resulting identity. With -get it then fetches a URL using the access token
// and prints the response body.
//
// Configuration is read from the environment, optionally from a .env file:
//
//	CAPCLIENT_CLIENT_ID         registered client id
//	CAPCLIENT_AUTH_BASE_URL     base URL of the authorization page
//	CAPCLIENT_API_BASE_URL      base URL of the token and device endpoints
//	CAPCLIENT_PORT              loopback port for the redirect (default 8250)
//	CAPCLIENT_STORE_PATH        credential file (default ~/.capclient/credentials)
//	CAPCLIENT_STORE_PASSPHRASE  passphrase for the credential file; when empty
//	                            credentials are only kept in memory
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/hashicorp/capclient/keystore"
	"github.com/hashicorp/capclient/oidc"
	"github.com/hashicorp/capclient/oidc/callback"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
)

const (
	envClientId    = "CAPCLIENT_CLIENT_ID"
	envAuthBaseURL = "CAPCLIENT_AUTH_BASE_URL"
	envApiBaseURL  = "CAPCLIENT_API_BASE_URL"
	envPort        = "CAPCLIENT_PORT"
	envStorePath   = "CAPCLIENT_STORE_PATH"
	envPassphrase  = "CAPCLIENT_STORE_PASSPHRASE"

	defaultPort = "8250"
	attemptExp  = 2 * time.Minute
)

type envConfig struct {
	clientId    string
	authBaseURL string
	apiBaseURL  string
	port        string
	storePath   string
	passphrase  string
}

func loadEnv() (*envConfig, error) {
	const op = "loadEnv"
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: unable to read .env: %w", op, err)
	}
	env := &envConfig{
		clientId:    os.Getenv(envClientId),
		authBaseURL: os.Getenv(envAuthBaseURL),
		apiBaseURL:  os.Getenv(envApiBaseURL),
		port:        os.Getenv(envPort),
		storePath:   os.Getenv(envStorePath),
		passphrase:  os.Getenv(envPassphrase),
	}
	if env.port == "" {
		env.port = defaultPort
	}
	if env.storePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		env.storePath = filepath.Join(home, ".capclient", "credentials")
	}
	return env, nil
}

func (e *envConfig) requireServer() error {
	for k, v := range map[string]string{
		envClientId:    e.clientId,
		envAuthBaseURL: e.authBaseURL,
		envApiBaseURL:  e.apiBaseURL,
	} {
		if v == "" {
			return fmt.Errorf("%s is empty", k)
		}
	}
	return nil
}

func main() {
	useDevice := flag.Bool("device", false, "use the device flow")
	useTestProvider := flag.Bool("use-test-provider", false, "use an in-process test provider")
	signOut := flag.Bool("signout", false, "delete stored credentials and exit")
	refresh := flag.Bool("refresh", false, "refresh stored credentials instead of signing in")
	debug := flag.Bool("debug", false, "enable debug logging")
	getURL := flag.String("get", "", "after signing in, GET this URL with the access token")
	flag.Parse()

	level := hclog.Info
	if *debug {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{Name: "capclient", Level: level, Output: os.Stderr})

	if err := run(logger, *useDevice, *useTestProvider, *signOut, *refresh, *getURL); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(logger hclog.Logger, useDevice, useTestProvider, signOut, refresh bool, getURL string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	redirectURL := fmt.Sprintf("http://localhost:%s/callback", env.port)

	var openOpt oidc.Option
	var c *oidc.Config
	if useTestProvider {
		l, err := oidc.NewTestingLogger(logger.Named("test-provider"))
		if err != nil {
			return err
		}
		tp := oidc.StartTestProvider(l)
		defer tp.Stop()
		if c, err = tp.NewConfig(redirectURL); err != nil {
			return err
		}
		// browsers don't trust the provider's certificate, so follow the
		// redirect with its client instead.
		openOpt = callback.WithOpenURL(func(authURL string) error {
			go func() {
				resp, err := tp.HTTPClient().Get(authURL)
				if err != nil {
					logger.Error("test provider authorize failed", "error", err)
					return
				}
				_ = resp.Body.Close()
			}()
			return nil
		})
	} else {
		if err := env.requireServer(); err != nil {
			return err
		}
		if c, err = oidc.NewConfig(env.clientId, env.authBaseURL, env.apiBaseURL, redirectURL); err != nil {
			return err
		}
	}

	var ks keystore.Keystore = keystore.NewMemory()
	if env.passphrase != "" && !useTestProvider {
		if ks, err = keystore.NewFile(env.storePath, []byte(env.passphrase)); err != nil {
			return err
		}
	}
	session, err := callback.NewLoopbackSession(redirectURL, callback.WithLogger(logger), openOpt)
	if err != nil {
		return err
	}
	m, err := oidc.NewManager(c,
		oidc.WithLogger(logger),
		oidc.WithKeystore(ks),
		oidc.WithWebAuthSession(session),
	)
	if err != nil {
		return err
	}

	if signOut {
		return m.SignOut()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, attemptExp)
	defer cancelTimeout()

	var b *oidc.CredentialBundle
	switch {
	case refresh:
		b, err = m.Refresh(ctx)
	case useDevice:
		var d *oidc.DeviceCode
		if d, err = m.StartDeviceSignIn(ctx); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "To sign in, visit:\n\n    %s\n\nand enter the code: %s\n\n", d.VerificationUri, d.UserCode)
		if d.VerificationUriComplete != "" {
			fmt.Fprintf(os.Stderr, "Or visit:\n\n    %s\n\n", d.VerificationUriComplete)
		}
		b, err = m.CompleteDeviceSignIn(ctx, d)
	default:
		fmt.Fprintf(os.Stderr, "Complete the sign in via your browser.\n\n")
		b, err = m.SignIn(ctx)
	}
	if err != nil {
		return err
	}
	if err := printBundle(b); err != nil {
		return err
	}
	if getURL != "" {
		return get(ctx, m.Client(ctx), getURL)
	}
	return nil
}

func get(ctx context.Context, client *http.Client, url string) error {
	const op = "get"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	fmt.Fprintf(os.Stderr, "%s %s\n", url, resp.Status)
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func printBundle(b *oidc.CredentialBundle) error {
	out := map[string]interface{}{
		"subject":    b.IdToken.Subject,
		"email":      b.IdToken.Email,
		"issuer":     b.IdToken.Issuer,
		"token_type": b.TokenType,
		// redacted by its String method
		"access_token": b.AccessToken.String(),
	}
	if exp, ok := b.AccessTokenExpiry(); ok {
		out["access_token_expiry"] = exp
	}
	if exp, ok := b.RefreshTokenExpiry(); ok {
		out["refresh_token_expiry"] = exp
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
