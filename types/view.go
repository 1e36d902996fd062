// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

// OnboardingView is a state of the session/onboarding state machine.
type OnboardingView string

const (
	ViewLanding       OnboardingView = "landing"
	ViewRegister      OnboardingView = "register"
	ViewLogin         OnboardingView = "login"
	ViewVerifyEmail   OnboardingView = "verify-email"
	ViewProfileSetup  OnboardingView = "profile-setup"
	ViewAuthenticated OnboardingView = "authenticated"
)
