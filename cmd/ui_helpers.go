// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"pgmulti/cli/internal/config"
	"pgmulti/cli/internal/keychain"
	"pgmulti/cli/internal/node"
	"pgmulti/cli/internal/secrets"
	"pgmulti/cli/internal/terminal"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// startInlineSpinner shows a spinner followed by text on a single line and
// returns a function that stops it and clears the line. On a non-interactive
// stdout nothing is drawn.
func startInlineSpinner(text string, interval time.Duration) func() {
	if !terminal.IsTerminal(os.Stdout) {
		return func() {}
	}

	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		return func() {}
	}
	cursor.Hide()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				area.Update(fmt.Sprintf("%s %s", spinnerFrames[i%len(spinnerFrames)], text))
				i++
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			_ = area.Stop()
			cursor.Show()
		})
	}
}

// openKeychain opens the credential store, explaining what to do when the host
// has no usable backend.
func openKeychain() (*keychain.Manager, error) {
	km, err := keychain.GetManager()
	if err != nil {
		pterm.Println("❌ Secure storage is not available on this system.")
		pterm.Printf("   Set %s to use an encrypted file keyring instead.\n", keychain.EnvKeyringPassword)
		return nil, err
	}
	return km, nil
}

// credentialSource picks where target credentials come from, per the flow file.
// Without a usable keychain it falls back to PGMULTI_USER / PGMULTI_PASSWORD.
func credentialSource(ctx context.Context, c config.Config, logger *pterm.Logger) (node.CredentialSource, error) {
	if c.Credentials.Source == config.SourceAWS {
		src, err := secrets.NewAWSSource(ctx, secrets.Options{
			Region:   c.Credentials.AWSRegion,
			Prefix:   c.Credentials.SecretPrefix,
			CacheTTL: c.Credentials.CacheTTL,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}

	km, err := keychain.GetManager()
	if err != nil {
		logger.Warn("keychain unavailable, using environment credentials", logger.Args("error", err.Error()))
		return envCredentials{}, nil
	}
	return km, nil
}
