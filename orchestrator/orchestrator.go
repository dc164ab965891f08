// Package orchestrator implements the Orchestrator specified in section 4.8
// of the design specification: it ties together Lock, RunDiscovery, the
// Uploader and StateLog, and the notification poster into the monitor-mode
// and upload-mode flows.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gurre/seqrun-upload/config"
	"github.com/gurre/seqrun-upload/discovery"
	"github.com/gurre/seqrun-upload/lockfile"
	"github.com/gurre/seqrun-upload/metrics"
	"github.com/gurre/seqrun-upload/notify"
	"github.com/gurre/seqrun-upload/runenum"
	"github.com/gurre/seqrun-upload/s3store"
	"github.com/gurre/seqrun-upload/statelog"
	"github.com/gurre/seqrun-upload/uploader"
)

// RunStatus tracks the outcome of processing one run for notification
// routing and dry-run/progress reporting, mirroring the teacher's
// per-worker status tracking adapted to per-run granularity.
type RunStatus struct {
	RunID     string
	Completed bool
	Uploaded  int
	Failed    int
}

// Orchestrator holds the dependencies needed to run monitor-mode and
// upload-mode flows.
type Orchestrator struct {
	cfg       *config.Config
	client    s3store.Client
	iamClient s3store.IAMClient
	stsClient s3store.STSClient
	logger    *slog.Logger
	poster    *notify.Poster
	dryRun    bool
	skipCheck bool
}

// New creates an Orchestrator. dryRun performs discovery and classification
// only (section 6's `monitor --dry_run`). skipCheck bypasses the is-run/
// is-complete checks in upload-mode (section 6's `upload --skip_check`).
func New(cfg *config.Config, client s3store.Client, logger *slog.Logger, dryRun, skipCheck bool) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		poster:    notify.NewPoster(logger),
		dryRun:    dryRun,
		skipCheck: skipCheck,
	}
}

// WithCredentialChecker enables the optional IAM pre-flight permission
// check from section 4.8 step 2: RunMonitor simulates s3:PutObject for the
// resolved principal against every configured bucket before ListBuckets/
// HeadBucket, surfacing a clearer error when the permission is missing.
// Callers that don't invoke this keep the bucket-reachability check alone.
func (o *Orchestrator) WithCredentialChecker(iamClient s3store.IAMClient, stsClient s3store.STSClient) *Orchestrator {
	o.iamClient = iamClient
	o.stsClient = stsClient
	return o
}

// RunMonitor implements the monitor-mode flow from section 4.8 steps 1-8.
func (o *Orchestrator) RunMonitor(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	if err := os.MkdirAll(o.cfg.LogDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	lockPath := filepath.Join(o.cfg.LogDir, "s3_upload.lock")
	lock, err := lockfile.Acquire(lockPath)
	if err != nil {
		if err == lockfile.ErrHeld {
			o.logger.Info("lock already held, exiting")
			return nil
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Release()

	buckets := make([]string, 0, len(o.cfg.Monitor))
	for _, m := range o.cfg.Monitor {
		buckets = append(buckets, m.Bucket)
	}
	if o.iamClient != nil && o.stsClient != nil {
		if err := s3store.CheckPutObjectPermission(ctx, o.stsClient, o.iamClient, buckets); err != nil {
			return fmt.Errorf("environment check failed: %w", err)
		}
	}

	if err := s3store.VerifyAccess(ctx, o.client, buckets); err != nil {
		return fmt.Errorf("environment check failed: %w", err)
	}

	store := statelog.NewStore(filepath.Join(o.cfg.LogDir, "uploads"))

	var partials, news []plannedRun
	for _, entry := range o.cfg.Monitor {
		for _, root := range entry.MonitoredDirectories {
			newRuns, partialRuns, err := discovery.Scan(root, store, entry.CompiledSampleRegex(), o.logger)
			if err != nil {
				o.logger.Error("failed to scan monitored directory", "dir", root, "error", err)
				continue
			}
			for _, c := range newRuns {
				news = append(news, plannedRun{candidate: c, entry: entry, parentPath: ensureTrailingSlash(root)})
			}
			for _, c := range partialRuns {
				partials = append(partials, plannedRun{candidate: c, entry: entry, parentPath: ensureTrailingSlash(root)})
			}
		}
	}

	if len(partials) == 0 && len(news) == 0 {
		o.logger.Info("no candidate runs found")
		return nil
	}

	var succeeded, failed []string

	// Partial runs precede new runs per section 4.8 step 5: finish
	// in-flight work before starting new runs.
	for _, plan := range append(partials, news...) {
		status, err := o.processRun(ctx, store, plan)
		if err != nil {
			o.logger.Error("run processing failed", "run_id", plan.candidate.RunID, "error", err)
			if !o.dryRun {
				failed = append(failed, plan.candidate.RunID)
			}
			continue
		}
		// A dry run never uploads anything, so its Completed=false carries
		// no failure meaning: it must not reach notify as a failed run.
		if o.dryRun {
			continue
		}
		if status.Completed {
			succeeded = append(succeeded, status.RunID)
		} else {
			failed = append(failed, status.RunID)
		}
	}

	if !o.dryRun {
		o.notify(ctx, succeeded, failed)
	}

	return nil
}

// plannedRun pairs a classified candidate with the monitor entry and
// parent path needed to build a RunUploadPlan (section 3).
type plannedRun struct {
	candidate  discovery.Candidate
	entry      config.MonitorEntry
	parentPath string
}

// RunUpload implements the upload-mode flow from section 4.8: skip Lock
// and RunDiscovery, optionally skip the is-run/is-complete checks, run
// steps 6a-6e for the one directory.
func (o *Orchestrator) RunUpload(ctx context.Context, localPath, bucket, remotePath string, cores, threads int) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	if !o.skipCheck {
		if _, err := os.Stat(filepath.Join(localPath, "RunInfo.xml")); err != nil {
			return fmt.Errorf("not a recognized run directory: %w", err)
		}
		if !discovery.IsComplete(localPath) {
			return fmt.Errorf("run directory is not complete: no termination marker present")
		}
	}

	store := statelog.NewStore(filepath.Join(o.cfg.LogDir, "uploads"))
	runID := filepath.Base(localPath)

	state, uploadedPaths, err := store.ClassifyFromLog(runID)
	if err != nil {
		return fmt.Errorf("failed to classify from state log: %w", err)
	}
	if state == statelog.Uploaded {
		o.logger.Info("run already uploaded, nothing to do", "run_id", runID)
		return nil
	}

	cand := discovery.Candidate{Path: localPath, RunID: runID, UploadedPaths: uploadedPaths}
	plan := plannedRun{
		candidate: cand,
		entry: config.MonitorEntry{
			Bucket:     bucket,
			RemotePath: remotePath,
		},
		parentPath: ensureTrailingSlash(filepath.Dir(localPath)),
	}

	_, err = o.processRunWithShards(ctx, store, plan, cores, threads)
	return err
}

// processRun implements section 4.8 steps 6a-6e for one candidate using
// the configured cores/threads, defaulting to the Orchestrator's own
// config values.
func (o *Orchestrator) processRun(ctx context.Context, store statelog.Interface, plan plannedRun) (RunStatus, error) {
	return o.processRunWithShards(ctx, store, plan, o.cfg.MaxCores, o.cfg.MaxThreads)
}

func (o *Orchestrator) processRunWithShards(ctx context.Context, store statelog.Interface, plan plannedRun, cores, threads int) (RunStatus, error) {
	runID := plan.candidate.RunID
	runDir := plan.candidate.Path

	files, err := runenum.Enumerate(runDir, nil)
	if err != nil {
		return RunStatus{}, fmt.Errorf("failed to enumerate %s: %w", runDir, err)
	}

	// Step 6b: if partial, subtract already-uploaded paths from the full
	// local file list.
	var pending []runenum.FileEntry
	if plan.candidate.UploadedPaths != nil {
		for _, f := range files {
			if _, done := plan.candidate.UploadedPaths[f.Path]; !done {
				pending = append(pending, f)
			}
		}
	} else {
		pending = files
	}

	localPaths := make([]string, len(files))
	for i, f := range files {
		localPaths[i] = f.Path
	}

	if o.dryRun {
		o.logger.Info("dry run: planned upload", "run_id", runID, "bucket", plan.entry.Bucket, "remote_path", plan.entry.RemotePath, "file_count", len(pending))
		return RunStatus{RunID: runID, Completed: false}, nil
	}

	shards := runenum.Partition(pending, cores)

	m := metrics.New()

	stopProgress := o.reportProgress(runID, len(pending), m)
	result, err := uploader.Upload(ctx, o.client, shards, plan.entry.Bucket, plan.entry.RemotePath, plan.parentPath, threads, m)
	stopProgress()
	if err != nil {
		return RunStatus{}, fmt.Errorf("uploader failed for run %s: %w", runID, err)
	}

	rec, err := store.MergeAndWrite(runID, runDir, localPaths, result.Successes, result.Failures)
	if err != nil {
		return RunStatus{}, fmt.Errorf("failed to merge state log for run %s: %w", runID, err)
	}

	report := m.GenerateReport(runID)
	o.logger.Info("run processed", "run_id", runID, "report", report.String())

	return RunStatus{
		RunID:     runID,
		Completed: rec.Completed,
		Uploaded:  len(result.Successes),
		Failed:    len(result.Failures),
	}, nil
}

// reportProgress logs a snapshot of m's counters every 5 seconds while a
// run's upload is in flight, the same ticker-driven shape the teacher used
// to report restore progress. It returns a stop function that must be
// called once the upload completes; stop blocks until the reporting
// goroutine has exited.
func (o *Orchestrator) reportProgress(runID string, totalFiles int, m *metrics.Metrics) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				report := m.GenerateReport(runID)
				o.logger.Info("upload in progress", "run_id", runID, "total_files", totalFiles, "uploaded", report.FilesUploaded, "failed", report.FilesFailed, "bytes", report.BytesUploaded)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

// notify implements section 4.8 step 7: post at most two notifications.
// If both webhooks are absent, skip silently. If only one is configured,
// both message types route to it.
func (o *Orchestrator) notify(ctx context.Context, succeeded, failed []string) {
	logWebhook := o.cfg.SlackLogWebhook
	alertWebhook := o.cfg.SlackAlertWebhook

	if logWebhook == "" && alertWebhook == "" {
		return
	}

	if len(succeeded) > 0 {
		target := logWebhook
		if target == "" {
			target = alertWebhook
		}
		o.poster.Post(ctx, target, notify.FormatMessage(succeeded, nil))
	}

	if len(failed) > 0 {
		target := alertWebhook
		if target == "" {
			target = logWebhook
		}
		o.poster.Post(ctx, target, notify.FormatMessage(nil, failed))
	}
}

func ensureTrailingSlash(path string) string {
	if path == "" {
		return path
	}
	if path[len(path)-1] != '/' {
		return path + "/"
	}
	return path
}
