package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/authvault/internal/app"
	"github.com/dmitrijs2005/authvault/internal/buildinfo"
	"github.com/dmitrijs2005/authvault/internal/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	a, err := app.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	a.Run(ctx)

}
