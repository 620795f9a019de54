package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-variants/internal/database"
	"media-variants/internal/encoder"
	"media-variants/internal/filesystem"
	"media-variants/internal/logging"
	"media-variants/internal/mediatypes"
	"media-variants/internal/metrics"
	"media-variants/internal/retry"
	"media-variants/internal/variant"
)

var (
	// ErrUnsupported marks an asset that is not a supported source type.
	ErrUnsupported = errors.New("unsupported source type")
	// ErrMissingSource marks an asset whose source file is gone.
	ErrMissingSource = errors.New("source file missing")
	// ErrNoDerivative means no enabled derivative of an original is on disk.
	ErrNoDerivative = errors.New("no enabled derivative on disk")
)

// Outcome classifies a run.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomePartial            Outcome = "partial"
	OutcomeFailed             Outcome = "failed"
	OutcomePending            Outcome = "pending"
	OutcomeNoop               Outcome = "noop"
	OutcomeEnvironmentFailure Outcome = "environment-failure"
	OutcomeSkippedMissing     Outcome = "skipped-missing-source"
	OutcomeSkippedUnsupported Outcome = "skipped-unsupported"
)

// Skipped reports whether the run left the state untouched.
func (o Outcome) Skipped() bool {
	return o == OutcomeSkippedMissing || o == OutcomeSkippedUnsupported
}

// Encoder produces derivative files.
type Encoder interface {
	Encode(ctx context.Context, req encoder.Request) encoder.Result
	Preflight(kind mediatypes.Kind) error
}

// Store loads assets and persists their state.
type Store interface {
	GetAsset(ctx context.Context, id int64) (mediatypes.Asset, error)
	GetAssetByPath(ctx context.Context, path string) (mediatypes.Asset, error)
	GetState(ctx context.Context, assetID int64) (variant.State, error)
	SaveState(ctx context.Context, assetID int64, state variant.State) error
}

// Retrier schedules and cancels deferred runs.
type Retrier interface {
	Schedule(ctx context.Context, assetID int64, attempt int) (bool, error)
	Cancel(ctx context.Context, assetID int64) error
}

// Swapper promotes a derivative to be the asset's primary file.
type Swapper interface {
	Promote(ctx context.Context, asset mediatypes.Asset, state variant.State, key variant.FormatKey) (variant.State, mediatypes.Asset, error)
	RemoveOriginal(ctx context.Context, path string, counterparts []string) error
}

// Locker serializes runs per asset.
type Locker interface {
	LockAsset(ctx context.Context, assetID int64) (func(), error)
}

// Config holds the run-independent settings.
type Config struct {
	MediaDir        string
	Settings        variant.Settings
	DeleteOriginals bool
	// Order is the delivery preference order, used to pick the derivative
	// promoted on a swap.
	Order []variant.FormatKey
}

// Options controls one run.
type Options struct {
	// AllowRetry hands unsatisfied targets to the retry scheduler.
	AllowRetry bool
	// Force re-encodes targets that are already satisfied.
	Force bool
	// Attempt is the retry attempt being executed; 0 for a direct run.
	Attempt int
}

// Report describes what a run did.
type Report struct {
	AssetID   int64
	Path      string
	Outcome   Outcome
	Created   []variant.FormatKey
	Failed    []variant.FormatKey
	Satisfied []variant.FormatKey
	Stale     []variant.FormatKey
	Poster    string
	Promoted  variant.FormatKey
	Pending   bool
	Duration  time.Duration
}

// Err maps skip outcomes to sentinel errors for callers that treat them as
// failures of the request.
func (r Report) Err() error {
	switch r.Outcome {
	case OutcomeSkippedUnsupported:
		return fmt.Errorf("asset %d (%s): %w", r.AssetID, r.Path, ErrUnsupported)
	case OutcomeSkippedMissing:
		return fmt.Errorf("asset %d (%s): %w", r.AssetID, r.Path, ErrMissingSource)
	}
	return nil
}

// Orchestrator runs derivative passes.
type Orchestrator struct {
	cfg     Config
	enc     Encoder
	store   Store
	retrier Retrier
	swapper Swapper
	locks   Locker

	now    func() time.Time
	exists func(string) bool
}

// New wires an Orchestrator. swapper may be nil when originals are kept.
func New(cfg Config, enc Encoder, store Store, retrier Retrier, swapper Swapper, locks Locker) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		enc:     enc,
		store:   store,
		retrier: retrier,
		swapper: swapper,
		locks:   locks,
		now:     time.Now,
		exists:  filesystem.Exists,
	}
}

// Run locks the asset, runs Process on its stored state and persists the
// result. Skipped runs and canceled runs persist nothing.
func (o *Orchestrator) Run(ctx context.Context, assetID int64, opts Options) (Report, error) {
	unlock, err := o.locks.LockAsset(ctx, assetID)
	if err != nil {
		return Report{AssetID: assetID}, fmt.Errorf("lock asset %d: %w", assetID, err)
	}
	defer unlock()

	asset, err := o.store.GetAsset(ctx, assetID)
	if err != nil {
		return Report{AssetID: assetID}, err
	}
	state, err := o.store.GetState(ctx, assetID)
	if err != nil {
		return Report{AssetID: assetID, Path: asset.Path}, err
	}

	next, report := o.Process(ctx, asset, state, opts)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if report.Outcome.Skipped() {
		return report, nil
	}
	if err := o.store.SaveState(ctx, assetID, next); err != nil {
		return report, err
	}
	return report, nil
}

// Process runs one pass over asset and returns the new state. The input
// state is not modified.
func (o *Orchestrator) Process(ctx context.Context, asset mediatypes.Asset, state variant.State, opts Options) (_ variant.State, report Report) {
	start := o.now()
	report = Report{AssetID: asset.ID, Path: asset.Path}
	defer func() {
		report.Duration = o.now().Sub(start)
		metrics.OrchestratorRunsTotal.WithLabelValues(string(report.Outcome)).Inc()
		metrics.OrchestratorRunDuration.Observe(report.Duration.Seconds())
	}()

	kind := mediatypes.SourceKind(asset.Path, asset.MimeType)
	if kind == mediatypes.KindOther {
		logging.Debug("Asset %d (%s) is not a supported source, skipping", asset.ID, asset.Path)
		report.Outcome = OutcomeSkippedUnsupported
		return state, report
	}
	if !o.exists(asset.Path) {
		logging.Warn("Asset %d source %s is missing, skipping", asset.ID, asset.Path)
		report.Outcome = OutcomeSkippedMissing
		return state, report
	}

	next := state.Clone()
	report.Stale = next.Reconcile(o.cfg.MediaDir, o.exists)
	for _, key := range report.Stale {
		logging.Info("Asset %d: %s variant file is gone, dropping record", asset.ID, key)
	}

	specs := o.cfg.Settings.SpecsFor(kind)
	now := o.now()

	if err := o.enc.Preflight(kind); err != nil {
		o.recordEnvironmentFailure(ctx, asset, &next, specs, now, err)
		report.Outcome = OutcomeEnvironmentFailure
		return next, report
	}

	for _, spec := range specs {
		if !spec.Enabled {
			next.Forget(spec.Key)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		switch o.ensure(ctx, asset, &next, spec, opts.Force, now) {
		case created:
			report.Created = append(report.Created, spec.Key)
		case failed:
			report.Failed = append(report.Failed, spec.Key)
		case satisfied:
			report.Satisfied = append(report.Satisfied, spec.Key)
		}
	}

	if kind == mediatypes.KindVideo {
		report.Poster = o.poster(ctx, asset, &next, opts.Force, now)
	}

	next.LastAttempt = now.Unix()
	next.PendingRetry = unsatisfied(next, specs)
	report.Pending = next.PendingRetry
	o.updateRetry(ctx, asset.ID, &next, opts)

	if o.cfg.DeleteOriginals && o.swapper != nil {
		o.promote(ctx, &asset, &next, kind, &report)
	}

	report.Outcome = classify(len(report.Created), len(report.Failed), len(report.Satisfied), next.PendingRetry)
	logging.Info("Asset %d processed: %s (created %v, failed %v)", asset.ID, report.Outcome, report.Created, report.Failed)
	return next, report
}

// RetireOriginal deletes an original that published documents no longer
// reference. A registered asset is handled under its lock the same way a
// swap is: the preferred derivative becomes its primary file, the state
// records the original and any pending retry is dropped. A file with no
// asset row is removed only when an enabled derivative is on disk.
func (o *Orchestrator) RetireOriginal(ctx context.Context, path string) error {
	if o.swapper == nil {
		return fmt.Errorf("%s: original deletion is disabled", path)
	}

	asset, err := o.store.GetAssetByPath(ctx, path)
	if errors.Is(err, database.ErrNotFound) {
		return o.swapper.RemoveOriginal(ctx, path, o.cfg.Settings.Counterparts(path))
	}
	if err != nil {
		return err
	}

	unlock, err := o.locks.LockAsset(ctx, asset.ID)
	if err != nil {
		return fmt.Errorf("lock asset %d: %w", asset.ID, err)
	}
	defer unlock()

	// A run may have swapped the asset while we waited for the lock.
	asset, err = o.store.GetAsset(ctx, asset.ID)
	if err != nil {
		return err
	}
	if asset.Path != path {
		return o.swapper.RemoveOriginal(ctx, path, o.cfg.Settings.Counterparts(path))
	}

	state, err := o.store.GetState(ctx, asset.ID)
	if err != nil {
		return err
	}
	kind := mediatypes.SourceKind(asset.Path, asset.MimeType)
	key, ok := o.chooseSwap(state, kind)
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNoDerivative)
	}

	next, _, err := o.swapper.Promote(ctx, asset, state, key)
	if err != nil {
		return err
	}
	next.PendingRetry = false
	next.RetryAttempts = 0
	if o.retrier != nil {
		if err := o.retrier.Cancel(ctx, asset.ID); err != nil {
			logging.Error("Asset %d: %v", asset.ID, err)
		}
	}
	if err := o.store.SaveState(ctx, asset.ID, next); err != nil {
		return err
	}
	if o.exists(path) {
		return fmt.Errorf("asset %d now served from %s but %s could not be removed", asset.ID, key, path)
	}
	return nil
}

type targetResult int

const (
	satisfied targetResult = iota
	created
	failed
)

// ensure brings one enabled target to a satisfied or failed state.
func (o *Orchestrator) ensure(ctx context.Context, asset mediatypes.Asset, st *variant.State, spec variant.TargetFormatSpec, force bool, now time.Time) targetResult {
	dest := variant.DerivativePath(asset.Path, spec.Key)
	if !force {
		if rel, ok := st.Variants[spec.Key]; ok {
			st.SetVariant(spec.Key, rel)
			return satisfied
		}
		if o.exists(dest) {
			logging.Debug("Asset %d: adopting existing %s", asset.ID, dest)
			st.SetVariant(spec.Key, variant.RelPath(o.cfg.MediaDir, dest))
			return satisfied
		}
	}

	res := o.enc.Encode(ctx, encoder.Request{Source: asset.Path, Dest: dest, Spec: spec})
	if res.Success {
		st.SetVariant(spec.Key, variant.RelPath(o.cfg.MediaDir, dest))
		return created
	}
	logging.Warn("Asset %d: %s encode failed: %s", asset.ID, spec.Key, firstLine(res.Output))
	st.SetError(spec.Key, variant.NewErrorRecord(now, res.Command, res.Output))
	return failed
}

// poster produces the auxiliary poster frame. It never affects retries.
func (o *Orchestrator) poster(ctx context.Context, asset mediatypes.Asset, st *variant.State, force bool, now time.Time) string {
	spec := o.cfg.Settings.PosterSpec()
	if !spec.Enabled {
		st.Forget(variant.FormatPoster)
		return ""
	}
	if ctx.Err() != nil {
		return ""
	}
	switch o.ensure(ctx, asset, st, spec, force, now) {
	case created:
		return "created"
	case failed:
		return "failed"
	default:
		return "satisfied"
	}
}

func (o *Orchestrator) recordEnvironmentFailure(ctx context.Context, asset mediatypes.Asset, st *variant.State, specs []variant.TargetFormatSpec, now time.Time, cause error) {
	command := ""
	var envErr *encoder.EnvironmentError
	if errors.As(cause, &envErr) {
		command = envErr.Command
	}
	rec := variant.NewErrorRecord(now, command, "[environment] "+cause.Error())

	for _, spec := range specs {
		switch {
		case !spec.Enabled:
			st.Forget(spec.Key)
		case !st.Has(spec.Key):
			st.SetError(spec.Key, rec)
		}
	}

	st.LastAttempt = now.Unix()
	st.PendingRetry = false
	st.RetryAttempts = 0
	if o.retrier != nil {
		if err := o.retrier.Cancel(ctx, asset.ID); err != nil {
			logging.Error("Asset %d: %v", asset.ID, err)
		}
	}
	logging.Error("Asset %d: encoding environment unavailable: %v", asset.ID, cause)
}

func (o *Orchestrator) updateRetry(ctx context.Context, assetID int64, st *variant.State, opts Options) {
	if o.retrier == nil {
		return
	}
	if !st.PendingRetry || !opts.AllowRetry {
		if err := o.retrier.Cancel(ctx, assetID); err != nil {
			logging.Error("Asset %d: %v", assetID, err)
		}
		if !st.PendingRetry {
			st.RetryAttempts = 0
		}
		return
	}

	attempt := opts.Attempt + 1
	queued, err := o.retrier.Schedule(ctx, assetID, attempt)
	switch {
	case errors.Is(err, retry.ErrExhausted):
		logging.Warn("Asset %d: giving up automatic retries after %d attempts; reprocess to try again", assetID, opts.Attempt)
	case err != nil:
		logging.Error("Asset %d: %v", assetID, err)
	case queued:
		st.RetryAttempts = attempt
	}
}

func (o *Orchestrator) promote(ctx context.Context, asset *mediatypes.Asset, st *variant.State, kind mediatypes.Kind, report *Report) {
	key, ok := o.chooseSwap(*st, kind)
	if !ok {
		return
	}
	next, promoted, err := o.swapper.Promote(ctx, *asset, *st, key)
	if err != nil {
		logging.Warn("Asset %d: primary swap to %s refused: %v", asset.ID, key, err)
		return
	}
	*st = next
	*asset = promoted
	report.Promoted = key
	report.Path = promoted.Path

	// The source is gone; nothing further can be derived from it.
	st.PendingRetry = false
	st.RetryAttempts = 0
	report.Pending = false
	if o.retrier != nil {
		if err := o.retrier.Cancel(ctx, asset.ID); err != nil {
			logging.Error("Asset %d: %v", asset.ID, err)
		}
	}
}

// chooseSwap picks the first preferred enabled target whose derivative is
// on disk.
func (o *Orchestrator) chooseSwap(st variant.State, kind mediatypes.Kind) (variant.FormatKey, bool) {
	candidates := append(variant.PreferenceFor(kind, o.cfg.Order), variant.TargetsFor(kind)...)
	for _, key := range candidates {
		if !o.cfg.Settings.Enabled[key] {
			continue
		}
		rel, ok := st.Variants[key]
		if ok && o.exists(variant.AbsPath(o.cfg.MediaDir, rel)) {
			return key, true
		}
	}
	return "", false
}

func unsatisfied(st variant.State, specs []variant.TargetFormatSpec) bool {
	for _, spec := range specs {
		if spec.Enabled && !st.Has(spec.Key) {
			return true
		}
	}
	return false
}

func classify(nCreated, nFailed, nSatisfied int, pending bool) Outcome {
	switch {
	case nCreated > 0 && nFailed > 0:
		return OutcomePartial
	case nFailed > 0 && nSatisfied > 0:
		return OutcomePartial
	case nFailed > 0:
		return OutcomeFailed
	case pending:
		return OutcomePending
	case nCreated > 0:
		return OutcomeSuccess
	default:
		return OutcomeNoop
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
