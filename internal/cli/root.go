// Package cli wires the cobra command surface onto the crawl engine:
// a positional start URL, --pretty/--config/--log-level flags, and
// the exit-code contract from §6 (0 success, 2 invalid arguments,
// 1 runtime failure).
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bk-ru/parser/internal/build"
	"github.com/bk-ru/parser/internal/config"
	"github.com/bk-ru/parser/internal/engine"
	"github.com/bk-ru/parser/internal/obslog"
	"github.com/spf13/cobra"
)

const (
	ExitSuccess         = 0
	ExitInvalidArgument = 2
	ExitRuntimeFailure  = 1
)

var (
	pretty     bool
	configFile string
	logLevel   string
)

// NewRootCmd builds the site-parser command. It is a constructor
// rather than a package-level var so tests can build a fresh command
// (and fresh flag state) per case.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "site-parser <start-url>",
		Short: "Harvest emails and phone numbers reachable from a start URL.",
		Long: `site-parser crawls the pages reachable from a single start URL,
staying within its registered domain, and prints a deduplicated JSON
result of every email address and phone number it found.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.FullVersion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], stdout, stderr)
		},
	}

	root.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON result")
	root.Flags().StringVar(&configFile, "config", "", "path to a TOML or JSON CrawlConfig file")
	root.Flags().StringVar(&logLevel, "log-level", "INFO", "DEBUG, INFO, WARNING, or ERROR")

	return root
}

func run(cmd *cobra.Command, startURL string, stdout, stderr io.Writer) error {
	if _, err := obslog.ParseLevel(logLevel); err != nil {
		return &argumentError{cause: err}
	}

	effectiveConfigFile := configFile
	if effectiveConfigFile == "" {
		effectiveConfigFile = os.Getenv("PARSER_CONFIG_FILE")
	}

	cfg, err := config.Load(effectiveConfigFile, nil)
	if err != nil {
		return &argumentError{cause: err}
	}

	rec, err := obslog.New(logLevel)
	if err != nil {
		return &argumentError{cause: err}
	}
	defer rec.Sync()

	result, err := engine.ParseSite(startURL, cfg, rec)
	if err != nil {
		return &runtimeError{cause: err}
	}

	encoder := json.NewEncoder(stdout)
	if pretty {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(result); err != nil {
		return &runtimeError{cause: err}
	}
	return nil
}

// argumentError and runtimeError distinguish the two non-zero exit
// codes Execute maps cobra's returned error onto.
type argumentError struct{ cause error }

func (e *argumentError) Error() string { return e.cause.Error() }
func (e *argumentError) Unwrap() error { return e.cause }

type runtimeError struct{ cause error }

func (e *runtimeError) Error() string { return e.cause.Error() }
func (e *runtimeError) Unwrap() error { return e.cause }

// Execute runs root against os.Args-derived input and returns the
// process exit code the spec's CLI surface requires.
func Execute(root *cobra.Command, stderr io.Writer) int {
	err := root.Execute()
	switch err.(type) {
	case nil:
		return ExitSuccess
	case *argumentError:
		fmt.Fprintln(stderr, err)
		return ExitInvalidArgument
	case *runtimeError:
		fmt.Fprintln(stderr, err)
		return ExitRuntimeFailure
	default:
		fmt.Fprintln(stderr, err)
		return ExitInvalidArgument
	}
}
