// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatpay

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatpay/chatpay-go/api"
	"github.com/chatpay/chatpay-go/types"
	"github.com/chatpay/chatpay-go/types/events"
)

// NeedsProfileSetup returns true if the user hasn't chosen a display name yet.
func NeedsProfileSetup(user *types.User) bool {
	return user != nil && strings.TrimSpace(user.DisplayName) == ""
}

// View returns the current onboarding view.
func (cli *Client) View() types.OnboardingView {
	cli.sessionLock.RLock()
	defer cli.sessionLock.RUnlock()
	return cli.view
}

// User returns a copy of the logged-in user, or nil if there's no session.
func (cli *Client) User() *types.User {
	cli.sessionLock.RLock()
	defer cli.sessionLock.RUnlock()
	if cli.user == nil {
		return nil
	}
	user := *cli.user
	return &user
}

// IsAuthenticated returns true if there's a session, even if onboarding isn't finished yet.
func (cli *Client) IsAuthenticated() bool {
	if cli == nil {
		return false
	}
	cli.sessionLock.RLock()
	defer cli.sessionLock.RUnlock()
	return cli.user != nil
}

func (cli *Client) snapshotSession() (types.OnboardingView, *types.User) {
	cli.sessionLock.RLock()
	defer cli.sessionLock.RUnlock()
	return cli.view, cli.user
}

func (cli *Client) beginAction() (func(), error) {
	if !cli.actionBusy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() {
		cli.actionBusy.Store(false)
	}, nil
}

func (cli *Client) setSession(user *types.User, view types.OnboardingView) {
	cli.sessionLock.Lock()
	prevView := cli.view
	prevUser := cli.user
	cli.user = user
	cli.view = view
	cli.sessionLock.Unlock()
	if prevUser != user {
		cli.dispatchEvent(&events.SessionChanged{User: user})
	}
	if prevView != view {
		cli.Log.Debugf("Onboarding view changed from %s to %s", prevView, view)
		cli.dispatchEvent(&events.ViewChanged{From: prevView, To: view})
	}
}

func (cli *Client) setView(view types.OnboardingView) {
	cli.sessionLock.Lock()
	prevView := cli.view
	cli.view = view
	cli.sessionLock.Unlock()
	if prevView != view {
		cli.Log.Debugf("Onboarding view changed from %s to %s", prevView, view)
		cli.dispatchEvent(&events.ViewChanged{From: prevView, To: view})
	}
}

func (cli *Client) putHint(ctx context.Context, pending bool) {
	if err := cli.Store.PutOnboardingHint(ctx, pending); err != nil {
		cli.Log.Warnf("Failed to store onboarding hint: %v", err)
	}
}

// Init restores the session from the stored token, if there is one.
//
// Expired tokens are dropped without contacting the backend. Tokens rejected by the backend are
// cleared and the client stays on the landing view. Other errors (e.g. the backend being down)
// are returned and the token is kept, so Init can be called again to retry.
func (cli *Client) Init(ctx context.Context) error {
	done, err := cli.beginAction()
	if err != nil {
		return err
	}
	defer done()

	token, err := cli.API.LoadToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	} else if token == "" {
		cli.setSession(nil, types.ViewLanding)
		return nil
	}
	if cli.API.TokenExpired() {
		cli.Log.Infof("Stored token has expired, dropping it")
		if err = cli.API.ClearToken(ctx); err != nil {
			cli.Log.Warnf("Failed to clear expired token: %v", err)
		}
		cli.putHint(ctx, false)
		cli.setSession(nil, types.ViewLanding)
		return nil
	}
	user, err := cli.API.GetProfile(ctx)
	if api.IsAuthError(err) {
		cli.Log.Infof("Stored token was rejected by the backend")
		cli.putHint(ctx, false)
		cli.setSession(nil, types.ViewLanding)
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to validate stored token: %w", err)
	} else if user == nil {
		return fmt.Errorf("failed to validate stored token: %w", api.ErrUnexpectedResponse)
	}
	hint, err := cli.Store.GetOnboardingHint(ctx)
	if err != nil {
		cli.Log.Warnf("Failed to read onboarding hint: %v", err)
	}
	if NeedsProfileSetup(user) {
		if hint {
			cli.Log.Debugf("Resuming profile setup for %s", user.Username)
		}
		cli.setSession(user, types.ViewProfileSetup)
	} else {
		if hint {
			cli.putHint(ctx, false)
		}
		cli.setSession(user, types.ViewAuthenticated)
	}
	return nil
}

func (cli *Client) navigate(action string, to types.OnboardingView) error {
	cli.sessionLock.Lock()
	from := cli.view
	if cli.user != nil || (from != types.ViewLanding && from != types.ViewRegister && from != types.ViewLogin) {
		cli.sessionLock.Unlock()
		return &ErrInvalidTransition{From: from, Action: action}
	}
	cli.view = to
	cli.sessionLock.Unlock()
	if from != to {
		cli.dispatchEvent(&events.ViewChanged{From: from, To: to})
	}
	return nil
}

// GoToRegister switches to the registration form.
func (cli *Client) GoToRegister() error {
	return cli.navigate("open the register form", types.ViewRegister)
}

// GoToLogin switches to the login form.
func (cli *Client) GoToLogin() error {
	return cli.navigate("open the login form", types.ViewLogin)
}

// GoToLanding goes back to the landing view from one of the login forms.
func (cli *Client) GoToLanding() error {
	return cli.navigate("go back to the landing view", types.ViewLanding)
}

// Register creates a new account. New accounts always go through profile setup, even if the
// backend already returned a display name.
func (cli *Client) Register(ctx context.Context, username, email, password string) (*types.User, error) {
	done, err := cli.beginAction()
	if err != nil {
		return nil, err
	}
	defer done()
	if cli.IsAuthenticated() {
		return nil, ErrAlreadyLoggedIn
	}
	resp, err := cli.API.Register(ctx, username, email, password)
	if err != nil {
		return nil, err
	}
	cli.Log.Infof("Registered as %s", resp.User.Username)
	cli.putHint(ctx, true)
	cli.setSession(resp.User, types.ViewProfileSetup)
	return resp.User, nil
}

// Login logs in with an email and password.
func (cli *Client) Login(ctx context.Context, email, password string) (*types.User, error) {
	done, err := cli.beginAction()
	if err != nil {
		return nil, err
	}
	defer done()
	if cli.IsAuthenticated() {
		return nil, ErrAlreadyLoggedIn
	}
	resp, err := cli.API.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	cli.Log.Infof("Logged in as %s", resp.User.Username)
	cli.finishOnboarding(ctx, resp.User)
	return resp.User, nil
}

// GoogleLogin logs in with a Google OAuth access token. Accounts whose email isn't verified yet
// are sent to the verify-email view.
func (cli *Client) GoogleLogin(ctx context.Context, accessToken string) (*types.User, error) {
	done, err := cli.beginAction()
	if err != nil {
		return nil, err
	}
	defer done()
	if cli.IsAuthenticated() {
		return nil, ErrAlreadyLoggedIn
	}
	info, err := cli.API.FetchGoogleUserInfo(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err := cli.API.GoogleLogin(ctx, info.LoginPayload(accessToken))
	if err != nil {
		return nil, err
	}
	cli.Log.Infof("Logged in with Google as %s", resp.User.Username)
	if !resp.User.IsVerified {
		cli.setSession(resp.User, types.ViewVerifyEmail)
	} else {
		cli.finishOnboarding(ctx, resp.User)
	}
	return resp.User, nil
}

// finishOnboarding picks the view for a user that has passed login or verification.
func (cli *Client) finishOnboarding(ctx context.Context, user *types.User) {
	if NeedsProfileSetup(user) {
		cli.putHint(ctx, true)
		cli.setSession(user, types.ViewProfileSetup)
	} else {
		cli.putHint(ctx, false)
		cli.setSession(user, types.ViewAuthenticated)
	}
}

func (cli *Client) requireView(view types.OnboardingView, action string) (*types.User, error) {
	current, user := cli.snapshotSession()
	if current != view || user == nil {
		return nil, &ErrInvalidTransition{From: current, Action: action}
	}
	return user, nil
}

// VerifyEmail submits the one-time code that was sent to the user's email address.
func (cli *Client) VerifyEmail(ctx context.Context, otp string) error {
	done, err := cli.beginAction()
	if err != nil {
		return err
	}
	defer done()
	user, err := cli.requireView(types.ViewVerifyEmail, "verify email")
	if err != nil {
		return err
	}
	verified, err := cli.API.VerifyEmail(ctx, user.Email, strings.TrimSpace(otp))
	if err != nil {
		return err
	}
	if verified == nil {
		userCopy := *user
		userCopy.IsVerified = true
		verified = &userCopy
	}
	cli.finishOnboarding(ctx, verified)
	return nil
}

// SkipVerification continues without verifying the email address.
func (cli *Client) SkipVerification(ctx context.Context) error {
	done, err := cli.beginAction()
	if err != nil {
		return err
	}
	defer done()
	user, err := cli.requireView(types.ViewVerifyEmail, "skip verification")
	if err != nil {
		return err
	}
	cli.finishOnboarding(ctx, user)
	return nil
}

// ResendOTP asks the backend to send a new verification code.
func (cli *Client) ResendOTP(ctx context.Context) error {
	user, err := cli.requireView(types.ViewVerifyEmail, "resend the code")
	if err != nil {
		return err
	}
	return cli.API.ResendOTP(ctx, user.Email)
}

// CompleteProfile saves the profile entered during profile setup and finishes onboarding.
func (cli *Client) CompleteProfile(ctx context.Context, update *types.ProfileUpdate) (*types.User, error) {
	done, err := cli.beginAction()
	if err != nil {
		return nil, err
	}
	defer done()
	user, err := cli.requireView(types.ViewProfileSetup, "complete the profile")
	if err != nil {
		return nil, err
	}
	updated, err := cli.API.UpdateProfile(ctx, update)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		userCopy := *user
		userCopy.DisplayName = update.DisplayName
		if update.Bio != "" {
			userCopy.Bio = update.Bio
		}
		if update.ProfilePicture != "" {
			userCopy.ProfilePicture = update.ProfilePicture
		}
		if update.BusinessType != "" {
			userCopy.BusinessType = update.BusinessType
		}
		updated = &userCopy
	}
	cli.putHint(ctx, false)
	cli.setSession(updated, types.ViewAuthenticated)
	return updated, nil
}

// SkipProfile finishes onboarding without setting up a profile.
func (cli *Client) SkipProfile(ctx context.Context) error {
	if _, err := cli.requireView(types.ViewProfileSetup, "skip profile setup"); err != nil {
		return err
	}
	cli.putHint(ctx, false)
	cli.setView(types.ViewAuthenticated)
	return nil
}

// Logout ends the session. The stored token and onboarding hint are cleared even if the client
// wasn't logged in.
func (cli *Client) Logout(ctx context.Context) error {
	return cli.endSession(ctx, false)
}

func (cli *Client) handleUnauthenticated(ctx context.Context) {
	if !cli.IsAuthenticated() {
		return
	}
	cli.Log.Warnf("Backend rejected the session token, logging out")
	_ = cli.endSession(ctx, true)
}

func (cli *Client) endSession(ctx context.Context, onInvalidToken bool) error {
	cli.Stop()
	err := cli.API.ClearToken(ctx)
	if err != nil {
		cli.Log.Warnf("Failed to clear token: %v", err)
	}
	cli.putHint(ctx, false)
	wasAuthenticated := cli.IsAuthenticated()
	cli.setSession(nil, types.ViewLanding)
	if wasAuthenticated {
		cli.dispatchEvent(&events.LoggedOut{OnInvalidToken: onInvalidToken})
	}
	return err
}
