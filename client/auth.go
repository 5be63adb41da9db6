// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"

	"github.com/courier-foundation/courier/auth"
	"github.com/courier-foundation/courier/lib/secret"
	"github.com/courier-foundation/courier/session"
	"github.com/courier-foundation/courier/wire"
)

// flow returns the client's sign-in flow, creating it on first use.
// The flow is discarded once sign-in completes so a later LogOut and
// re-login starts clean.
func (c *Client) flow() *auth.Flow {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.authFlow == nil {
		c.authFlow = auth.NewFlow(c, c.logger)
	}
	return c.authFlow
}

func (c *Client) resetFlow() {
	c.authMu.Lock()
	c.authFlow = nil
	c.authMu.Unlock()
}

// completeSignIn records the signed-in user and persists the session.
func (c *Client) completeSignIn(user *session.User) {
	c.recordMu.Lock()
	c.record.User = user
	c.recordMu.Unlock()
	c.resetFlow()
	c.flushRecordSync("signed in")
	c.logger.Info("signed in", "user_id", user.ID, "bot", user.Bot)
}

// IsAuthorized asks the server whether the session's auth key is
// bound to an account. It refreshes the cached user on success and
// maps an unregistered key to (false, nil) rather than an error.
func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	user, err := auth.Self(ctx, c)
	switch {
	case err == nil:
		c.recordMu.Lock()
		c.record.User = user
		c.recordMu.Unlock()
		c.markDirty()
		return true, nil
	case wire.IsServerError(err, wire.CodeAuthKeyUnregistered):
		return false, nil
	default:
		return false, err
	}
}

// CurrentUser returns the signed-in user recorded in the session, nil
// before sign-in. The value reflects the last sign-in or IsAuthorized
// check, not a live server query.
func (c *Client) CurrentUser() *session.User {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	if c.record == nil || c.record.User == nil {
		return nil
	}
	user := *c.record.User
	return &user
}

// RequestCode asks the server to deliver a login code for phone and
// returns the code hash to pass to SignIn.
func (c *Client) RequestCode(ctx context.Context, phone string) (string, error) {
	return c.flow().RequestCode(ctx, phone)
}

// SignIn submits a received login code. Phone and codeHash may be
// empty when RequestCode ran on this client. If the account has
// two-factor auth enabled, SignIn fails with auth.ErrPasswordNeeded
// and SignInPassword finishes the job.
func (c *Client) SignIn(ctx context.Context, phone, codeHash, code string) (*session.User, error) {
	user, err := c.flow().SignIn(ctx, phone, codeHash, code)
	if err != nil {
		return nil, err
	}
	c.completeSignIn(user)
	return user, nil
}

// SignInPassword finishes a sign-in that stopped at the two-factor
// check. The client owns password and zeroes it before returning.
func (c *Client) SignInPassword(ctx context.Context, password *secret.Buffer) (*session.User, error) {
	user, err := c.flow().SignInPassword(ctx, password)
	if err != nil {
		return nil, err
	}
	c.completeSignIn(user)
	return user, nil
}

// SignInBot signs in with a bot token instead of the code flow. The
// client owns token and zeroes it before returning.
func (c *Client) SignInBot(ctx context.Context, token *secret.Buffer) (*session.User, error) {
	user, err := c.flow().SignInBot(ctx, token)
	if err != nil {
		return nil, err
	}
	c.completeSignIn(user)
	return user, nil
}

// Start connects and signs in if the session is not already
// authorized, prompting through opts as needed. It is the one-call
// path from a cold start to a working, signed-in client.
func (c *Client) Start(ctx context.Context, opts auth.StartOptions) (*session.User, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	authorized, err := c.IsAuthorized(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: checking authorization: %w", err)
	}
	if authorized {
		user := c.CurrentUser()
		c.logger.Debug("already authorized", "user_id", user.ID)
		return user, nil
	}
	user, err := c.flow().Start(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.completeSignIn(user)
	return user, nil
}

// EditTwoFactor changes the account's two-factor settings. See
// auth.EditTwoFactorOptions for the field semantics.
func (c *Client) EditTwoFactor(ctx context.Context, opts auth.EditTwoFactorOptions) error {
	return auth.EditTwoFactor(ctx, c, opts)
}

// LogOut invalidates the authorization server-side, wipes the local
// session record, and deletes it from the store. The connection stays
// up; the session is back to the unauthenticated state.
func (c *Client) LogOut(ctx context.Context) error {
	if err := auth.LogOut(ctx, c); err != nil {
		return err
	}
	c.recordMu.Lock()
	c.record.Reset()
	c.recordMu.Unlock()
	c.resetFlow()
	if err := c.store.Delete(ctx); err != nil {
		return fmt.Errorf("client: deleting session: %w", err)
	}
	c.logger.Info("logged out", "session_id", c.sessionID)
	return nil
}
