// Package main implements the command-line interface as specified in
// section 6 of the design specification: the monitor and upload
// subcommands of the sequencing-run upload daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gurre/seqrun-upload/config"
	"github.com/gurre/seqrun-upload/logging"
	"github.com/gurre/seqrun-upload/orchestrator"
	"github.com/gurre/seqrun-upload/s3store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("expected a subcommand: monitor or upload")
	}

	switch os.Args[1] {
	case "monitor":
		return runMonitor(os.Args[2:])
	case "upload":
		return runUpload(os.Args[2:])
	default:
		return fmt.Errorf("unknown subcommand %q: expected monitor or upload", os.Args[1])
	}
}

// runMonitor implements `monitor --profile_name <str> --config <path>
// [--dry_run]` from section 6.
func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	profileName := fs.String("profile_name", "", "AWS profile name")
	configPath := fs.String("config", "", "path to the JSON monitor config")
	dryRun := fs.Bool("dry_run", false, "classify and log planned uploads without uploading")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if *configPath == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closeLog()

	ctx := context.Background()
	client, err := newS3Client(ctx, *profileName)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	o := orchestrator.New(cfg, client, logger, *dryRun, false)

	if iamClient, err := s3store.NewIAMClient(ctx, *profileName); err == nil {
		if stsClient, err := s3store.NewSTSClient(ctx, *profileName); err == nil {
			o.WithCredentialChecker(iamClient, stsClient)
		}
	}

	return o.RunMonitor(ctx)
}

// runUpload implements `upload --profile_name <str> --local_path <dir>
// --bucket <str> [--remote_path <str=/>] [--skip_check] [--cores
// <int=host CPU count>] [--threads <int=8>]` from section 6. It also
// requires --log_dir, the directory for the state log and log file.
func runUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	profileName := fs.String("profile_name", "", "AWS profile name")
	localPath := fs.String("local_path", "", "local run directory to upload")
	bucket := fs.String("bucket", "", "destination bucket")
	remotePath := fs.String("remote_path", "/", "destination key prefix")
	skipCheck := fs.Bool("skip_check", false, "bypass is-run/is-complete checks")
	cores := fs.Int("cores", runtime.NumCPU(), "number of shard workers")
	threads := fs.Int("threads", 8, "number of per-shard upload workers")
	logDir := fs.String("log_dir", "", "directory for the state log and lock file")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if *localPath == "" {
		return fmt.Errorf("--local_path is required")
	}
	if *bucket == "" {
		return fmt.Errorf("--bucket is required")
	}
	if *logDir == "" {
		return fmt.Errorf("--log_dir is required")
	}

	cfg := &config.Config{LogDir: *logDir, MaxCores: *cores, MaxThreads: *threads}

	logger, closeLog, err := logging.New(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closeLog()

	ctx := context.Background()
	client, err := newS3Client(ctx, *profileName)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	o := orchestrator.New(cfg, client, logger, false, *skipCheck)
	return o.RunUpload(ctx, *localPath, *bucket, *remotePath, *cores, *threads)
}

func newS3Client(ctx context.Context, profileName string) (*s3.Client, error) {
	return s3store.NewClient(ctx, profileName)
}
