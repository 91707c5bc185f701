// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config string `short:"c" type:"path" env:"TABULA_CONFIG" help:"Config file path (YAML or TOML)"`

	Ask     AskCmd     `cmd:"" help:"Ask a question about a CSV or XLSX table"`
	Route   RouteCmd   `cmd:"" help:"Show which tool a question would be routed to"`
	Exec    ExecCmd    `cmd:"" help:"Run a JavaScript fragment against a table in the local sandbox"`
	Tools   ToolsCmd   `cmd:"" help:"List the registered tools"`
	Version VersionCmd `cmd:"" help:"Show version information" default:"1"`
}

// AskCmd runs a full analysis.
type AskCmd struct {
	Question string `arg:"" help:"Question to ask"`
	File     string `short:"f" type:"existingfile" help:"Table file (.csv, .tsv or .xlsx)"`
	Sheet    string `help:"Worksheet name for .xlsx files (default: first sheet)"`
	Tool     string `short:"t" help:"Force a tool instead of routing"`
	JSON     bool   `help:"Print the analysis as JSON"`
	Quiet    bool   `short:"q" help:"Do not print progress events"`
}

// RouteCmd classifies a question without running a tool.
type RouteCmd struct {
	Question string `arg:"" help:"Question to classify"`
	File     string `short:"f" type:"existingfile" help:"Table file (.csv, .tsv or .xlsx)"`
	Sheet    string `help:"Worksheet name for .xlsx files"`
	Keywords bool   `short:"k" help:"Use the keyword classifier only"`
}

// ExecCmd runs a code fragment with df bound to a table.
type ExecCmd struct {
	Code  string `arg:"" type:"existingfile" help:"JavaScript file with the fragment body"`
	File  string `short:"f" type:"existingfile" help:"Table file (.csv, .tsv or .xlsx)"`
	Sheet string `help:"Worksheet name for .xlsx files"`
}

// ToolsCmd lists tools.
type ToolsCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
