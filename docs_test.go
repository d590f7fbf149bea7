package capclient_test

import (
	"context"
	"fmt"

	"github.com/hashicorp/capclient/oidc"
)

func Example_oidc() {
	ctx := context.Background()

	// Create a new Config
	c, err := oidc.NewConfig(
		"your_client_id",
		"https://your-auth-server.com",
		"https://api.your-auth-server.com",
		"com.example.app://oauth/callback",
	)
	if err != nil {
		// handle error
	}

	// Create a Manager with the device flow only. Use WithWebAuthSession to
	// enable Manager.SignIn.
	m, err := oidc.NewManager(c)
	if err != nil {
		// handle error
	}

	// Follow sign in progress
	states, unsubscribe := m.Subscribe()
	defer unsubscribe()
	go func() {
		for s := range states {
			fmt.Println("status: ", s.Status)
		}
	}()

	d, err := m.StartDeviceSignIn(ctx)
	if err != nil {
		// handle error
	}
	fmt.Printf("visit %s and enter %s\n", d.VerificationUri, d.UserCode)

	b, err := m.CompleteDeviceSignIn(ctx, d)
	if err != nil {
		// handle error
	}
	fmt.Println("signed in: ", b.IdToken.Email)
}
