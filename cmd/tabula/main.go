// Command tabula asks questions about local spreadsheets from the terminal,
// using the same router, tools and sandbox as the server.
//
// Configuration comes from the file given with --config (or TABULA_CONFIG)
// and TABULA_* environment variables; a .env file in the working directory
// is loaded first.
package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tabula"),
		kong.Description("Ask questions about tables."),
		kong.UsageOnError(),
		kongVars(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
