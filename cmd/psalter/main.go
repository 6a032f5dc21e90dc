// Command psalter resolves references to the 1773 metrical psalter from the
// command line or serves them over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/psalter/core/reference"
	"github.com/FocuswithJustin/psalter/internal/api"
)

const version = "1.0.0"

// Globals are flags shared by every command.
type Globals struct {
	Config    string `help:"Path to TOML config file" type:"path" env:"PSALTER_CONFIG"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (json, text)"`
}

// CLI defines the command-line interface for psalter.
type CLI struct {
	Globals

	Parse   ParseCmd   `cmd:"" help:"Parse a psalm reference without contacting the source"`
	Lookup  LookupCmd  `cmd:"" help:"Resolve a psalm reference to verse texts"`
	Max     MaxCmd     `cmd:"" help:"Print the highest verse number of a psalm"`
	Verse   VerseCmd   `cmd:"" help:"Print the text of one verse"`
	Serve   ServeCmd   `cmd:"" help:"Start REST API server"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// ParseCmd parses a reference and prints the outcome.
type ParseCmd struct {
	Text []string `arg:"" help:"Reference text, e.g. \"Psalm 118: 1, 2 en 5\""`
}

func (c *ParseCmd) Run(ctx *kong.Context) error {
	return printJSON(ctx.Stdout, reference.Parse(strings.Join(c.Text, " ")))
}

// LookupCmd runs the full lookup and prints the envelope.
type LookupCmd struct {
	Text []string `arg:"" help:"Reference text"`
}

func (c *LookupCmd) Run(ctx *kong.Context, g *Globals) error {
	a, err := newApp(g, ctx.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	env, err := a.service.Lookup(context.Background(), strings.Join(c.Text, " "))
	if err != nil {
		return err
	}
	return printJSON(ctx.Stdout, env)
}

// MaxCmd prints the verse count of a psalm.
type MaxCmd struct {
	Psalm int `arg:"" help:"Psalm number (1-150)"`
}

func (c *MaxCmd) Run(ctx *kong.Context, g *Globals) error {
	a, err := newApp(g, ctx.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	max, err := a.service.MaxVerse(context.Background(), c.Psalm)
	if err != nil {
		return err
	}
	return printJSON(ctx.Stdout, api.MaxVerseResponse{
		Psalm:   c.Psalm,
		MaxVers: max,
		Bron:    a.service.SourceURL(c.Psalm),
	})
}

// VerseCmd prints one verse.
type VerseCmd struct {
	Psalm int `arg:"" help:"Psalm number (1-150)"`
	Verse int `arg:"" help:"Verse number"`
}

func (c *VerseCmd) Run(ctx *kong.Context, g *Globals) error {
	a, err := newApp(g, ctx.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.service.Verse(context.Background(), c.Psalm, c.Verse)
	if err != nil {
		return err
	}
	return printJSON(ctx.Stdout, api.VerseResponse{
		Psalm: c.Psalm,
		Vers:  c.Verse,
		Tekst: text,
		Bron:  a.service.SourceURL(c.Psalm),
	})
}

// ServeCmd starts the REST API.
type ServeCmd struct {
	Port int `help:"HTTP server port (overrides config)"`
}

func (c *ServeCmd) Run(ctx *kong.Context, g *Globals) error {
	a, err := newApp(g, ctx.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.apiConfig()
	if c.Port != 0 {
		cfg.Port = c.Port
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return api.NewServer(cfg, a.service, a.metrics.Handler()).ListenAndServe(sigCtx)
}

type VersionCmd struct{}

func (c *VersionCmd) Run(ctx *kong.Context) error {
	fmt.Fprintf(ctx.Stdout, "psalter version %s\n", version)
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// newParser builds the kong parser. Tests pass their own writers.
func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("psalter"),
		kong.Description("Psalter - 1773 metrical psalm lookup"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Bind(&cli.Globals),
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	err = ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
