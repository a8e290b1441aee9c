// Package cli is the interactive operator and user front end. It drives
// the login state machine command by command and exposes the admin
// surface behind a separate admin login.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/authvault/internal/admin"
	"github.com/dmitrijs2005/authvault/internal/engine"
)

type App struct {
	engine *engine.Engine
	admin  *admin.Service
	reader *bufio.Reader

	userName     string
	sessionToken string
	adminMode    bool
}

func NewApp(eng *engine.Engine, adminService *admin.Service) *App {
	return &App{
		engine: eng,
		admin:  adminService,
		reader: bufio.NewReader(os.Stdin),
	}
}

func (a *App) isLoggedIn() bool {
	return a.sessionToken != ""
}

func (a *App) isAdmin() bool {
	return a.adminMode
}

func (a *App) getStatus() string {
	switch {
	case a.adminMode:
		return "(admin)"
	case a.userName != "":
		return fmt.Sprintf("(%s)", a.userName)
	default:
		return ""
	}
}

func (a *App) Run(ctx context.Context) {
	printlnFn("Welcome to AuthVault CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
