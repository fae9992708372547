// Command report builds one arena ranking report, or resolves one player's
// kungfu, and prints the result.
//
//	report                       build a report and print it as text
//	report -format json          print the report as JSON
//	report -server S -name N     resolve one player
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"html"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/jianghu-hub/arena-hub/internal/app"
	"github.com/jianghu-hub/arena-hub/internal/application/ranking"
	"github.com/jianghu-hub/arena-hub/internal/interface/telegram/presenter"
)

type options struct {
	server string
	name   string
	format string
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "", "server of the player to resolve")
	flag.StringVar(&opts.name, "name", "", "role name of the player to resolve")
	flag.StringVar(&opts.format, "format", "text", "output format: text, html or json")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if (opts.server == "") != (opts.name == "") {
		return errors.New("-server and -name must be given together")
	}
	switch opts.format {
	case "text", "html", "json":
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}

	var (
		reports  *ranking.ReportService
		resolver *ranking.Resolver
		p        *presenter.ReportPresenter
	)
	fxApp := fx.New(
		app.Core,
		fx.NopLogger,
		fx.Populate(&reports, &resolver, &p),
	)
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = fxApp.Stop(stopCtx)
	}()

	if opts.server != "" {
		attr, err := resolver.ResolveName(ctx, opts.server, opts.name)
		if err != nil {
			return err
		}
		switch opts.format {
		case "json":
			return writeJSON(out, attr)
		case "html":
			_, err = fmt.Fprintln(out, p.FormatAttribution(attr))
		default:
			_, err = fmt.Fprintln(out, plain(p.FormatAttribution(attr)))
		}
		return err
	}

	report, err := reports.Build(ctx)
	if err != nil {
		return err
	}
	switch opts.format {
	case "json":
		return writeJSON(out, report)
	case "html":
		_, err = fmt.Fprintln(out, p.FormatReport(report).Text)
	default:
		_, err = fmt.Fprintln(out, plain(p.FormatReport(report).Text))
	}
	return err
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// plain strips the chat markup for terminal output.
func plain(s string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(s, ""))
}
