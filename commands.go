package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"github.com/FACorreiaa/gearguard/internal/api"
	"github.com/FACorreiaa/gearguard/internal/api/accounts"
	"github.com/FACorreiaa/gearguard/internal/api/password"
	"github.com/FACorreiaa/gearguard/internal/container"
)

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) writeJSON(v any) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// reportError prints violations one per line to stdout and anything else to
// stderr. Both exit non-zero.
func (c *cli) reportError(err error) int {
	var verr *api.ValidationError
	if !errors.As(err, &verr) {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitFailure
	}
	for _, v := range verr.Violations {
		if v.Field != "" {
			fmt.Fprintf(c.stdout, "%s: %s: %s\n", v.Field, v.Code, v.Message)
		} else {
			fmt.Fprintf(c.stdout, "%s: %s\n", v.Code, v.Message)
		}
	}
	return exitFailure
}

func parseNoArgs(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK, false
		}
		return exitUsage, false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "Unexpected arguments: %v\n", fs.Args())
		return exitUsage, false
	}
	return 0, true
}

func policyCmd(ctx context.Context, c *cli, deps *container.Container, args []string) int {
	if code, ok := parseNoArgs(c.flagSet("policy"), args); !ok {
		return code
	}
	return c.writeJSON(deps.Passwords.PolicyInfo(ctx))
}

func scoreCmd(ctx context.Context, c *cli, deps *container.Container, args []string) int {
	if code, ok := parseNoArgs(c.flagSet("score"), args); !ok {
		return code
	}
	pw, err := c.readSecret("Password: ")
	if err != nil {
		return c.reportError(err)
	}
	return c.writeJSON(deps.Passwords.Score(ctx, pw))
}

func generateCmd(ctx context.Context, c *cli, deps *container.Container, args []string) int {
	fs := c.flagSet("generate")
	defaults := password.DefaultGenerateOptions()
	length := fs.Int("length", defaults.Length, "Password length")
	count := fs.Int("count", 1, "Number of passwords to generate")
	noUpper := fs.Bool("no-upper", false, "Leave out uppercase letters")
	noLower := fs.Bool("no-lower", false, "Leave out lowercase letters")
	noDigits := fs.Bool("no-digits", false, "Leave out digits")
	noSpecial := fs.Bool("no-special", false, "Leave out special characters")
	ambiguous := fs.Bool("allow-ambiguous", false, "Allow look-alike characters such as l, 1, O and 0")
	special := fs.String("special", "", "Special characters to draw from (default: the policy's)")
	if code, ok := parseNoArgs(fs, args); !ok {
		return code
	}
	if *count < 1 {
		fmt.Fprintln(c.stderr, "Error: -count must be at least 1")
		return exitUsage
	}

	opts := password.GenerateOptions{
		Length:            *length,
		Uppercase:         !*noUpper,
		Lowercase:         !*noLower,
		Digits:            !*noDigits,
		Special:           !*noSpecial,
		ExcludeAmbiguous:  !*ambiguous,
		SpecialCharacters: *special,
	}
	for i := 0; i < *count; i++ {
		pw, err := deps.Passwords.Generate(ctx, opts)
		if err != nil {
			return c.reportError(err)
		}
		fmt.Fprintln(c.stdout, pw)
	}
	return exitOK
}

func validateCmd(ctx context.Context, c *cli, deps *container.Container, args []string) int {
	fs := c.flagSet("validate")
	username := fs.String("username", "", "Username to check similarity against")
	email := fs.String("email", "", "Email to check similarity against")
	if code, ok := parseNoArgs(fs, args); !ok {
		return code
	}

	pw, err := c.readSecret("Password: ")
	if err != nil {
		return c.reportError(err)
	}
	var user *api.UserIdentity
	if *username != "" || *email != "" {
		user = &api.UserIdentity{Username: *username, Email: *email}
	}
	if err := deps.Passwords.Validate(ctx, pw, user); err != nil {
		return c.reportError(err)
	}
	fmt.Fprintln(c.stdout, "OK")
	return exitOK
}

func breachCmd(ctx context.Context, c *cli, deps *container.Container, args []string) int {
	if code, ok := parseNoArgs(c.flagSet("breach"), args); !ok {
		return code
	}
	if !c.cfg.Breach.Enabled {
		fmt.Fprintln(c.stderr, "Error: breach checking is disabled (set breach.enabled)")
		return exitFailure
	}
	pw, err := c.readSecret("Password: ")
	if err != nil {
		return c.reportError(err)
	}
	if deps.Passwords.IsBreached(ctx, pw) {
		fmt.Fprintln(c.stdout, "BREACHED")
		return exitFailure
	}
	fmt.Fprintln(c.stdout, "not found")
	return exitOK
}

func registerCmd(ctx context.Context, c *cli, deps *container.Container, args []string) int {
	fs := c.flagSet("register")
	var params accounts.RegisterParams
	fs.StringVar(&params.Username, "username", "", "Username (required)")
	fs.StringVar(&params.Email, "email", "", "Email address")
	fs.StringVar(&params.Role, "role", "", "Role: admin, manager or technician")
	fs.StringVar(&params.FullName, "full-name", "", "Full name (defaults to the username)")
	fs.StringVar(&params.Avatar, "avatar", "", "Reference to an uploaded avatar")
	dryRun := fs.Bool("dry-run", false, "Validate and hash without saving")
	if code, ok := parseNoArgs(fs, args); !ok {
		return code
	}

	var err error
	if params.Password, err = c.readSecret("Password: "); err != nil {
		return c.reportError(err)
	}
	if params.PasswordConfirm, err = c.readSecret("Confirm password: "); err != nil {
		return c.reportError(err)
	}

	user, err := deps.Accounts.Register(ctx, params, accounts.RegisterOptions{Commit: !*dryRun})
	if err != nil {
		return c.reportError(err)
	}
	return c.writeJSON(user)
}

func syncProfilesCmd(ctx context.Context, c *cli, deps *container.Container, args []string) int {
	if code, ok := parseNoArgs(c.flagSet("sync-profiles"), args); !ok {
		return code
	}
	report, err := deps.Accounts.SyncAllProfiles(ctx)
	if code := c.writeJSON(report); code != exitOK {
		return code
	}
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}
