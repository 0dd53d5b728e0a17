// Package cli implements the taxonomy command line tool, which runs imports
// against a configured store without starting the HTTP server.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/config"
	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
	"github.com/JonMunkholm/VehicleTaxonomy/internal/filesource"
	"github.com/JonMunkholm/VehicleTaxonomy/internal/logging"
	"github.com/JonMunkholm/VehicleTaxonomy/internal/store"
)

// ErrRejected is returned when the file itself was rejected. The report has
// already been written to stdout.
var ErrRejected = errors.New("import rejected")

type options struct {
	configPath  string
	storeDriver string
	logLevel    string
}

func (o *options) register(flags *pflag.FlagSet) {
	flags.StringVarP(&o.configPath, "config", "c", "", "Configuration file to read from (yaml, toml or json).")
	flags.StringVar(&o.storeDriver, "store", "", "Store driver override: memory, postgres or dynamo.")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level override: debug, info, warn or error.")
}

// NewRootCommand builds the command tree. Reports go to stdout and logs to
// stderr so that output can be piped.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	rc := &cobra.Command{
		Use:   "taxonomy",
		Short: "Import vehicle taxonomy CSV files",
		Long: `Reads a vehicle taxonomy CSV from a local path or an s3://bucket/key URL
and loads new makes, models and variants into the configured store.

Configuration comes from the environment, optionally layered over a
config file given with --config.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(rc.PersistentFlags())

	rc.AddCommand(newImportCommand(opts, core.ImportModeRun, stdout, stderr))
	rc.AddCommand(newImportCommand(opts, core.ImportModeValidate, stdout, stderr))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func newImportCommand(opts *options, mode core.ImportMode, stdout, stderr io.Writer) *cobra.Command {
	use, short := "import <file|s3://bucket/key>", "Import a taxonomy file"
	if mode == core.ImportModeValidate {
		use, short = "validate <file|s3://bucket/key>", "Check a taxonomy file without writing anything"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runImport(c.Context(), opts, args[0], mode, stdout, stderr)
		},
	}
}

func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.storeDriver != "" {
		cfg.Store.Driver = opts.storeDriver
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return cfg, nil
}

func runImport(ctx context.Context, opts *options, location string, mode core.ImportMode, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logging.SetupWriter(stderr, cfg.Logging.Level, cfg.Logging.Format)

	var sess *session.Session
	if cfg.Store.Driver == config.DriverDynamo || strings.HasPrefix(location, "s3://") {
		if sess, err = store.NewAWSSession(cfg.AWS); err != nil {
			return err
		}
	}

	var s3client s3iface.S3API
	if sess != nil {
		s3client = s3.New(sess)
	}
	src, err := filesource.Resolve(location, s3client)
	if err != nil {
		return err
	}

	opened, err := store.Open(ctx, cfg, sess)
	if err != nil {
		return err
	}
	defer opened.Close()

	service := core.NewService(opened.Store, cfg.ServiceConfig())
	resp, err := service.RunImport(ctx, src, mode)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if !resp.IsValid {
		return ErrRejected
	}
	return nil
}
