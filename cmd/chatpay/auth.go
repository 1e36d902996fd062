// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chatpay/chatpay-go/types"
)

// readSecret prompts for a value without echoing it, falling back to a plain line read when
// stdin isn't a terminal.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	return readLine(cmd.InOrStdin())
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func passwordFromFlagOrPrompt(cmd *cobra.Command, password string) (string, error) {
	if password == "" {
		password = os.Getenv("CHATPAY_PASSWORD")
	}
	if password != "" {
		return password, nil
	}
	password, err := readSecret(cmd, "Password: ")
	if err != nil {
		return "", err
	} else if password == "" {
		return "", fmt.Errorf("no password provided")
	}
	return password, nil
}

func (a *app) printUser(cmd *cobra.Command, user *types.User) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Logged in as %s (%s)\n", user.Name(), user.Email)
	if !user.IsVerified {
		fmt.Fprintln(out, "Email address is not verified")
	}
	if user.WalletAddress != "" {
		fmt.Fprintf(out, "Wallet: %s\n", user.WalletAddress)
	}
}

// finishOnboarding walks through the views that need input after logging in.
func (a *app) finishOnboarding(ctx context.Context, cmd *cobra.Command, displayName string) error {
	out := cmd.OutOrStdout()
	if a.cli.View() == types.ViewVerifyEmail {
		otp, err := readSecret(cmd, "Verification code (empty to skip): ")
		if err != nil {
			return err
		}
		if otp == "" {
			err = a.cli.SkipVerification(ctx)
		} else {
			err = a.cli.VerifyEmail(ctx, otp)
		}
		if err != nil {
			return err
		}
	}
	if a.cli.View() == types.ViewProfileSetup {
		if displayName == "" {
			fmt.Fprintln(out, "Profile setup is pending, run 'chatpay profile --display-name <name>' to finish it")
			return nil
		}
		if _, err := a.cli.CompleteProfile(ctx, &types.ProfileUpdate{DisplayName: displayName}); err != nil {
			return err
		}
	}
	return nil
}

func newRegisterCmd(a *app) *cobra.Command {
	var username, email, password, displayName string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			password, err := passwordFromFlagOrPrompt(cmd, password)
			if err != nil {
				return err
			}
			user, err := a.cli.Register(ctx, username, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", user.Username)
			return a.finishOnboarding(ctx, cmd, displayName)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted if empty)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "complete profile setup with this display name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password, googleToken, displayName string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with an email and password or a Google access token",
		Long: `Log in to ChatPay.

Examples:
  chatpay login --email alice@example.com
  chatpay login --google-token ya29.a0Af...
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.cli.Init(ctx); err != nil {
				return err
			}
			if a.cli.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Already logged in, run 'chatpay logout' first to switch accounts")
				return nil
			}
			var user *types.User
			var err error
			switch {
			case googleToken != "":
				user, err = a.cli.GoogleLogin(ctx, googleToken)
			case email != "":
				password, err = passwordFromFlagOrPrompt(cmd, password)
				if err != nil {
					return err
				}
				user, err = a.cli.Login(ctx, email, password)
			default:
				return fmt.Errorf("either --email or --google-token is required")
			}
			if err != nil {
				return err
			}
			a.printUser(cmd, user)
			return a.finishOnboarding(ctx, cmd, displayName)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted if empty)")
	cmd.Flags().StringVar(&googleToken, "google-token", "", "Google OAuth access token")
	cmd.Flags().StringVar(&displayName, "display-name", "", "complete profile setup with this display name")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cli.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			a.printUser(cmd, a.cli.User())
			if view := a.cli.View(); view != types.ViewAuthenticated {
				fmt.Fprintf(cmd.OutOrStdout(), "Onboarding: %s\n", view)
			}
			return nil
		},
	}
}

func newProfileCmd(a *app) *cobra.Command {
	var update types.ProfileUpdate
	var skip bool
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Complete or update the profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if a.cli.View() == types.ViewProfileSetup {
				if skip {
					return a.cli.SkipProfile(ctx)
				} else if update.DisplayName == "" {
					return fmt.Errorf("--display-name is required to complete profile setup")
				}
				_, err := a.cli.CompleteProfile(ctx, &update)
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Profile setup complete")
				}
				return err
			}
			user, err := a.cli.API.UpdateProfile(ctx, &update)
			if err != nil {
				return err
			} else if user != nil {
				a.printUser(cmd, user)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&update.DisplayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&update.Bio, "bio", "", "short bio")
	cmd.Flags().StringVar(&update.ProfilePicture, "picture", "", "profile picture URL")
	cmd.Flags().StringVar(&update.BusinessType, "business-type", "", "business type")
	cmd.Flags().BoolVar(&skip, "skip", false, "skip profile setup")
	return cmd
}
