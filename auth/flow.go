// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/courier-foundation/courier/lib/secret"
	"github.com/courier-foundation/courier/session"
	"github.com/courier-foundation/courier/wire"
)

// Step identifies where a [Flow] is in the sign-in sequence.
type Step int

const (
	// StepUnauthenticated is the initial state: no code requested.
	StepUnauthenticated Step = iota

	// StepCodeRequested means the server has sent a login code to
	// the account and is waiting for it to be submitted.
	StepCodeRequested

	// StepCodeSubmitted means a sign-in with the code is in flight.
	StepCodeSubmitted

	// StepPasswordRequested means the code was accepted but the
	// account requires its two-factor password.
	StepPasswordRequested

	// StepAuthenticated is the success terminal: the session is
	// signed in.
	StepAuthenticated

	// StepFailed is the failure terminal for this attempt. The
	// reason is available from [Flow.Failure]; a new [Flow.RequestCode]
	// begins a fresh attempt.
	StepFailed
)

func (s Step) String() string {
	switch s {
	case StepUnauthenticated:
		return "unauthenticated"
	case StepCodeRequested:
		return "code-requested"
	case StepCodeSubmitted:
		return "code-submitted"
	case StepPasswordRequested:
		return "password-requested"
	case StepAuthenticated:
		return "authenticated"
	case StepFailed:
		return "failed"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Flow drives one sign-in attempt over an [Invoker]. It holds only
// the transient state of the attempt (phone number, code hash,
// step); nothing here needs to survive a restart.
//
// Methods may be called from multiple goroutines; at most one
// sign-in operation should be in flight at a time.
type Flow struct {
	invoker Invoker
	logger  *slog.Logger

	mu       sync.Mutex
	step     Step
	phone    string
	codeHash string
	failure  error
}

// NewFlow creates a sign-in flow over invoker. If logger is nil,
// slog.Default() is used.
func NewFlow(invoker Invoker, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{invoker: invoker, logger: logger}
}

// Step returns the flow's current position in the sign-in sequence.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Failure returns the error that moved the flow to [StepFailed], or
// nil if it has not failed.
func (f *Flow) Failure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure
}

type sendCodeParams struct {
	Phone string `cbor:"phone"`
}

type sentCode struct {
	// CodeHash pairs the delivered code with this sign-in attempt.
	// It must be echoed back in auth.signIn.
	CodeHash string `cbor:"code_hash"`

	// Length is the number of digits in the delivered code.
	Length int `cbor:"length,omitempty"`

	// Timeout is the code's validity window in seconds, 0 if the
	// server did not say.
	Timeout int64 `cbor:"timeout,omitempty"`
}

// RequestCode asks the server to deliver a login code to phone and
// returns the code hash that must accompany the code in [Flow.SignIn].
//
// A FLOOD_WAIT server error is returned as-is and leaves the flow
// where it was; the caller decides whether to honor the wait. Calling
// RequestCode on a failed flow begins a fresh attempt.
func (f *Flow) RequestCode(ctx context.Context, phone string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("auth: phone number is required")
	}
	if f.Step() == StepAuthenticated {
		return "", fmt.Errorf("auth: already authenticated")
	}

	var sent sentCode
	err := f.invoker.Invoke(ctx, methodSendCode, sendCodeParams{Phone: phone}, &sent)
	if err != nil {
		f.recordOutcome(err, f.Step())
		return "", fmt.Errorf("auth: requesting login code: %w", err)
	}
	if sent.CodeHash == "" {
		return "", fmt.Errorf("auth: server returned an empty code hash")
	}

	f.mu.Lock()
	f.step = StepCodeRequested
	f.phone = phone
	f.codeHash = sent.CodeHash
	f.failure = nil
	f.mu.Unlock()

	f.logger.Debug("login code requested", "code_length", sent.Length, "timeout_seconds", sent.Timeout)
	return sent.CodeHash, nil
}

type signInParams struct {
	Phone    string `cbor:"phone"`
	CodeHash string `cbor:"code_hash"`
	Code     string `cbor:"code"`
}

type authorization struct {
	User session.User `cbor:"user"`
}

// SignIn submits the login code the user received. phone and codeHash
// may be empty when the flow performed the [Flow.RequestCode] itself.
//
// Three outcomes are part of the normal flow: success returns the
// signed-in user; [ErrCodeInvalid] means the code was wrong and a
// corrected one may be resubmitted; [ErrPasswordNeeded] means the
// account has two-factor auth and sign-in continues with
// [Flow.SignInPassword].
func (f *Flow) SignIn(ctx context.Context, phone, codeHash, code string) (*session.User, error) {
	if code == "" {
		return nil, fmt.Errorf("auth: login code is required")
	}

	f.mu.Lock()
	if phone == "" {
		phone = f.phone
	}
	if codeHash == "" {
		codeHash = f.codeHash
	}
	if phone == "" || codeHash == "" {
		f.mu.Unlock()
		return nil, fmt.Errorf("auth: no pending login code; call RequestCode first")
	}
	f.step = StepCodeSubmitted
	f.mu.Unlock()

	var granted authorization
	err := f.invoker.Invoke(ctx, methodSignIn, signInParams{Phone: phone, CodeHash: codeHash, Code: code}, &granted)
	switch {
	case err == nil:
		f.finishAuthenticated(&granted.User)
		return &granted.User, nil
	case wire.IsServerError(err, wire.CodeSessionPasswordNeeded):
		f.setStep(StepPasswordRequested)
		return nil, ErrPasswordNeeded
	case wire.IsServerError(err, wire.CodeCodeInvalid):
		f.setStep(StepCodeRequested)
		return nil, fmt.Errorf("%w: %v", ErrCodeInvalid, err)
	default:
		f.recordOutcome(err, StepCodeRequested)
		return nil, fmt.Errorf("auth: signing in: %w", err)
	}
}

// SignInPassword completes a two-factor sign-in. It fetches the
// account's SRP parameters, computes the password proof locally, and
// submits it; the password itself never leaves the process.
//
// The password buffer is read but not closed; the caller retains
// ownership. [ErrPasswordInvalid] leaves the flow at
// [StepPasswordRequested] so a corrected password can be tried.
func (f *Flow) SignInPassword(ctx context.Context, password *secret.Buffer) (*session.User, error) {
	if password == nil {
		return nil, fmt.Errorf("auth: password is required")
	}

	var params PasswordParams
	if err := f.invoker.Invoke(ctx, methodGetPassword, nil, &params); err != nil {
		return nil, fmt.Errorf("auth: fetching password parameters: %w", err)
	}
	if !params.HasPassword {
		return nil, fmt.Errorf("auth: account has no two-factor password")
	}

	proof, err := computeProof(password.Bytes(), &params)
	if err != nil {
		return nil, err
	}

	var granted authorization
	err = f.invoker.Invoke(ctx, methodCheckPassword, proof, &granted)
	switch {
	case err == nil:
		f.finishAuthenticated(&granted.User)
		return &granted.User, nil
	case wire.IsServerError(err, wire.CodePasswordInvalid):
		f.setStep(StepPasswordRequested)
		if params.Hint != "" {
			return nil, fmt.Errorf("%w (hint: %s)", ErrPasswordInvalid, params.Hint)
		}
		return nil, ErrPasswordInvalid
	default:
		f.recordOutcome(err, StepPasswordRequested)
		return nil, fmt.Errorf("auth: checking password: %w", err)
	}
}

type signInBotParams struct {
	Token string `cbor:"token"`
}

// SignInBot signs in a bot account with its token. The token buffer
// is read but not closed; the caller retains ownership.
func (f *Flow) SignInBot(ctx context.Context, token *secret.Buffer) (*session.User, error) {
	if token == nil {
		return nil, fmt.Errorf("auth: bot token is required")
	}
	if f.Step() == StepAuthenticated {
		return nil, fmt.Errorf("auth: already authenticated")
	}

	var granted authorization
	err := f.invoker.Invoke(ctx, methodSignInBot, signInBotParams{Token: token.String()}, &granted)
	if err != nil {
		f.recordOutcome(err, f.Step())
		return nil, fmt.Errorf("auth: bot sign-in: %w", err)
	}
	f.finishAuthenticated(&granted.User)
	return &granted.User, nil
}

// StartOptions configures [Flow.Start]. Exactly one of Phone and
// BotToken must be set.
type StartOptions struct {
	// Phone begins an interactive user sign-in.
	Phone string

	// BotToken signs in a bot account. No prompts are consulted. The
	// buffer is read but not closed.
	BotToken *secret.Buffer

	// CodePrompt supplies the login code delivered to the account.
	// Invoked at most once per Start; a wrong code fails the Start
	// with [ErrCodeInvalid] rather than re-prompting.
	CodePrompt func(ctx context.Context) (string, error)

	// PasswordPrompt supplies the two-factor password. Invoked at
	// most once, and only when the server asks for it. Start closes
	// the returned buffer.
	PasswordPrompt func(ctx context.Context) (*secret.Buffer, error)
}

// Start composes the full sign-in sequence: request a code, collect
// it through CodePrompt, submit it, and when the account has
// two-factor auth collect the password through PasswordPrompt
// (without re-prompting for the code) and prove it.
//
// Callers that are already signed in should not reach Start; the
// client checks authorization first and skips the flow entirely.
func (f *Flow) Start(ctx context.Context, opts StartOptions) (*session.User, error) {
	if (opts.Phone == "") == (opts.BotToken == nil) {
		return nil, fmt.Errorf("auth: exactly one of Phone and BotToken must be set")
	}

	if opts.BotToken != nil {
		return f.SignInBot(ctx, opts.BotToken)
	}

	if opts.CodePrompt == nil {
		return nil, fmt.Errorf("auth: CodePrompt is required to sign in with a phone number")
	}

	if _, err := f.RequestCode(ctx, opts.Phone); err != nil {
		return nil, err
	}

	code, err := opts.CodePrompt(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: code prompt: %w", err)
	}

	user, err := f.SignIn(ctx, opts.Phone, "", code)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrPasswordNeeded) {
		return nil, err
	}

	if opts.PasswordPrompt == nil {
		return nil, fmt.Errorf("auth: account requires a password but no PasswordPrompt was provided: %w", ErrPasswordNeeded)
	}
	password, err := opts.PasswordPrompt(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: password prompt: %w", err)
	}
	if password == nil {
		return nil, fmt.Errorf("auth: password prompt returned nothing")
	}
	defer password.Close()

	return f.SignInPassword(ctx, password)
}

// finishAuthenticated moves the flow to its success terminal and
// drops the transient attempt state.
func (f *Flow) finishAuthenticated(user *session.User) {
	f.mu.Lock()
	f.step = StepAuthenticated
	f.phone = ""
	f.codeHash = ""
	f.failure = nil
	f.mu.Unlock()

	f.logger.Info("signed in", "user_id", user.ID, "username", user.Username, "bot", user.Bot)
}

// recordOutcome classifies a failed operation. A definitive server
// rejection moves the flow to [StepFailed]; transport-level errors
// leave it at fallback so the attempt can resume after reconnecting.
// FLOOD_WAIT is a pacing signal, not a rejection, and also leaves the
// flow at fallback.
func (f *Flow) recordOutcome(err error, fallback Step) {
	var serverErr *wire.ServerError
	if errors.As(err, &serverErr) && serverErr.Code != wire.CodeFloodWait {
		f.mu.Lock()
		f.step = StepFailed
		f.failure = err
		f.mu.Unlock()
		f.logger.Warn("sign-in failed", "code", serverErr.Code)
		return
	}
	f.setStep(fallback)
}

func (f *Flow) setStep(step Step) {
	f.mu.Lock()
	f.step = step
	f.mu.Unlock()
}
