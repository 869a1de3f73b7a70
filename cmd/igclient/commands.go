package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"igclient/client"
	"igclient/credentials"
	"igclient/resources"
)

var loginCommand = &cli.Command{
	Name:  "login",
	Usage: "Log in and persist the session",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "account username",
		},
		&cli.StringFlag{
			Name:    "session",
			Aliases: []string{"s"},
			Usage:   "log in with an existing session id instead of a password",
		},
		&cli.StringFlag{
			Name:  "settings",
			Usage: "settings snapshot file to write after login",
			Value: "settings.json",
		},
		&cli.BoolFlag{
			Name:  "save-password",
			Usage: "store the password in the OS keychain",
		},
	},
	Action: loginAction,
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	c, cfg, err := buildClient(cmd)
	if err != nil {
		return err
	}

	if sessionID := cmd.String("session"); sessionID != "" {
		if err := c.LoginBySessionID(sessionID); err != nil {
			return err
		}
		return saveSettings(c, cmd, cfg)
	}

	username := cmd.String("username")
	if username == "" {
		username = cfg.Username
	}
	if username == "" {
		username = os.Getenv("IG_USERNAME")
	}
	if username == "" {
		return fmt.Errorf("username required (flag, config, or IG_USERNAME)")
	}

	password, err := credentials.Resolve(username)
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			return err
		}
		password, err = promptPassword(username)
		if err != nil {
			return err
		}
	}

	c.Username = username
	c.Password = password

	err = c.Login()
	var twoFactor *client.TwoFactorRequired
	if errors.As(err, &twoFactor) {
		code, perr := promptLine("Two-factor code: ")
		if perr != nil {
			return perr
		}
		err = c.TwoFactorLogin(code)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("save-password") {
		if kerr := credentials.NewKeyringStore().Save(username, password); kerr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not save password: %v\n", kerr)
		}
	}
	fmt.Printf("Logged in as %s (user id %d)\n", username, c.UserID())
	return saveSettings(c, cmd, cfg)
}

func saveSettings(c *client.Client, cmd *cli.Command, cfg Config) error {
	path := cmd.String("settings")
	if cfg.SettingsFile != "" {
		path = cfg.SettingsFile
	}
	if path == "" {
		return nil
	}
	if err := c.DumpSettings(path); err != nil {
		return err
	}
	fmt.Printf("Session saved to %s\n", path)
	return nil
}

var whoamiCommand = &cli.Command{
	Name:   "whoami",
	Usage:  "Show the logged-in account",
	Action: whoamiAction,
}

func whoamiAction(ctx context.Context, cmd *cli.Command) error {
	c, _, err := buildClient(cmd)
	if err != nil {
		return err
	}
	if !c.IsLoggedIn() {
		return fmt.Errorf("not logged in; run 'igclient login' first")
	}
	facade := resources.New(c, newLogger(cmd.Bool("debug")))
	user, err := facade.Account.CurrentUser()
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d)\n", user.Username, user.Pk)
	if user.FullName != "" {
		fmt.Printf("  name: %s\n", user.FullName)
	}
	fmt.Printf("  followers: %d, following: %d, posts: %d\n",
		user.FollowerCount, user.FollowingCount, user.MediaCount)
	return nil
}

var settingsCommand = &cli.Command{
	Name:  "settings",
	Usage: "Dump or restore the session snapshot",
	Commands: []*cli.Command{
		{
			Name:      "dump",
			Usage:     "Write the current session snapshot to a file",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "encrypt",
					Usage: "encrypt the snapshot with a passphrase",
				},
			},
			Action: settingsDumpAction,
		},
		{
			Name:      "load",
			Usage:     "Restore a session snapshot and verify it",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "encrypt",
					Usage: "the snapshot is encrypted",
				},
			},
			Action: settingsLoadAction,
		},
	},
}

func settingsDumpAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: igclient settings dump <file>")
	}
	c, _, err := buildClient(cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("encrypt") {
		passphrase, perr := promptPassword("snapshot")
		if perr != nil {
			return perr
		}
		return c.DumpSettingsEncrypted(path, passphrase)
	}
	return c.DumpSettings(path)
}

func settingsLoadAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: igclient settings load <file>")
	}
	c, _, err := buildClient(cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("encrypt") {
		passphrase, perr := promptPassword("snapshot")
		if perr != nil {
			return perr
		}
		if err := c.LoadSettingsEncrypted(path, passphrase); err != nil {
			return err
		}
	} else if err := c.LoadSettings(path); err != nil {
		return err
	}
	if c.IsLoggedIn() {
		fmt.Printf("Restored session for user id %d\n", c.UserID())
	} else {
		fmt.Println("Snapshot restored, but it holds no login")
	}
	return nil
}

func promptPassword(label string) (string, error) {
	fmt.Printf("Password for %s: ", label)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func promptLine(label string) (string, error) {
	fmt.Print(label)
	var line string
	if _, err := fmt.Scanln(&line); err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
