package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	isAdmin() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Enroll(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	Logout(ctx context.Context) error
	AdminLogin(ctx context.Context) error
	AdminUsers(ctx context.Context) error
	AdminDelete(ctx context.Context, args []string) error
	AdminResetFactor(ctx context.Context, args []string) error
	AdminUnlock(ctx context.Context, args []string) error
	AdminStats(ctx context.Context) error
	AdminEvents(ctx context.Context) error
	AdminPolicy(ctx context.Context) error
	AdminSetPolicy(ctx context.Context) error
	AdminLogout(ctx context.Context) error
}

// runREPL reads a line from the provided scanner, parses the first token
// as the command, and dispatches to methods on 'a'. Unknown commands are
// reported back to the user. The loop exits on scanner EOF, context
// cancellation, or when the user types "exit" or "quit".
//
// Command availability depends on state:
//
//	Not logged in:
//	  - help             — show available commands
//	  - register         — create an account
//	  - login            — authenticate (password, then factor if required)
//	  - admin            — enter the admin console
//	  - exit | quit      — leave the program
//
//	Logged in:
//	  - enroll           — enroll the second factor
//	  - changepw         — change the account password
//	  - logout           — log out
//
//	Admin console:
//	  - users            — list accounts
//	  - delete <name>    — remove an account
//	  - resetfactor <name> — clear an account's factor enrollment
//	  - unlock <name>    — clear an account's lockout
//	  - stats            — account population summary
//	  - events           — recent audit events
//	  - policy           — show the security policy
//	  - setpolicy        — edit the security policy interactively
//	  - logout           — leave the admin console
//
// Any errors returned by command handlers are reported here with a single
// line; handlers keep their own prompts and success output.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}

		printlnFn(fmt.Sprintf("av %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		var err error

		switch cmd {
		case "help":
			switch {
			case a.isAdmin():
				printlnFn("Available commands: users, delete, resetfactor, unlock, stats, events, policy, setpolicy, logout, exit")
			case a.isLoggedIn():
				printlnFn("Available commands: enroll, changepw, logout, exit")
			default:
				printlnFn("Available commands: register, login, admin, exit")
			}

		case "register":
			err = a.Register(ctx)

		case "login":
			err = a.Login(ctx)

		case "enroll":
			err = a.Enroll(ctx)

		case "changepw":
			err = a.ChangePassword(ctx)

		case "admin":
			err = a.AdminLogin(ctx)

		case "users":
			err = a.AdminUsers(ctx)

		case "delete":
			err = a.AdminDelete(ctx, args)

		case "resetfactor":
			err = a.AdminResetFactor(ctx, args)

		case "unlock":
			err = a.AdminUnlock(ctx, args)

		case "stats":
			err = a.AdminStats(ctx)

		case "events":
			err = a.AdminEvents(ctx)

		case "policy":
			err = a.AdminPolicy(ctx)

		case "setpolicy":
			err = a.AdminSetPolicy(ctx)

		case "logout":
			if a.isAdmin() {
				err = a.AdminLogout(ctx)
			} else {
				err = a.Logout(ctx)
			}

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
