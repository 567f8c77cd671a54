package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/ghprofile/internal/model"
)

// ErrConnectivity is the failure reason of a failed connectivity gate.
var ErrConnectivity = errors.New("GitHub API is not reachable")

// ProfileUpdater performs the profile operations. *updater.Updater implements it.
type ProfileUpdater interface {
	VerifyConnectivity(ctx context.Context) bool
	AuthenticatedLogin(ctx context.Context) model.Outcome
	UpdateBio(ctx context.Context, text string) model.Outcome
	UpdateReadme(ctx context.Context, repository, localPath string) model.Outcome
}

// IdentityRotator requests a new anonymizing identity. *tor.Transport implements it.
type IdentityRotator interface {
	RotateIdentity(ctx context.Context) error
	ControlAddress() string
}

// Plan describes what one run should change.
type Plan struct {
	// Bio is the new bio; empty skips the bio step.
	Bio string

	// ReadmePath is the local README file; empty skips the README step.
	ReadmePath string

	// Repository holds the README; empty means the user's profile repository.
	Repository string

	// GateURL names the connectivity gate endpoint in the report.
	GateURL string
}

// NewRunPipeline assembles the steps of a run:
// gate, identity check, bio, README, then rotation when rotator is non-nil.
func NewRunPipeline(u ProfileUpdater, rotator IdentityRotator, plan Plan, opts ...Option) *Pipeline {
	p := New(opts...)

	p.AddStep(NewConnectivityStep(u, plan.GateURL))
	p.AddStep(NewIdentityStep(u))
	if plan.Bio != "" {
		p.AddStep(NewBioStep(u, plan.Bio))
	}
	if plan.ReadmePath != "" {
		p.AddStep(NewReadmeStep(u, plan.Repository, plan.ReadmePath))
	}
	if rotator != nil {
		p.AddFinalStep(NewRotateStep(rotator, WithRotateLogger(p.logger)))
	}
	return p
}

// record stores o and turns it into the step's error.
func record(report *model.RunReport, o model.Outcome) error {
	report.Record(o)
	switch {
	case o.OK():
		return nil
	case o.Fatal():
		return fmt.Errorf("%w: %w", ErrHalt, &StepError{Outcome: o})
	default:
		return &StepError{Outcome: o}
	}
}

// ConnectivityStep is the pre-flight gate. Its failure halts the run.
type ConnectivityStep struct {
	updater ProfileUpdater
	target  string
}

// NewConnectivityStep creates the gate step; target names the probed endpoint.
func NewConnectivityStep(u ProfileUpdater, target string) *ConnectivityStep {
	return &ConnectivityStep{updater: u, target: target}
}

// Name returns the step name.
func (s *ConnectivityStep) Name() string {
	return string(model.StepConnectivity)
}

// Do executes the gate.
func (s *ConnectivityStep) Do(ctx context.Context, report *model.RunReport) error {
	if !s.updater.VerifyConnectivity(ctx) {
		kind := model.FailureConnectivity
		reason := ErrConnectivity
		if err := ctx.Err(); err != nil {
			kind = model.FailureCancelled
			reason = err
		}
		return record(report, model.Failure(model.StepConnectivity, kind, s.target, reason))
	}
	return record(report, model.Success(model.StepConnectivity, model.ActionVerified, s.target))
}

// IdentityStep checks which account the token belongs to.
// It is informational: a failure is recorded but never fails the run.
type IdentityStep struct {
	updater ProfileUpdater
}

// NewIdentityStep creates the identity check step.
func NewIdentityStep(u ProfileUpdater) *IdentityStep {
	return &IdentityStep{updater: u}
}

// Name returns the step name.
func (s *IdentityStep) Name() string {
	return string(model.StepIdentity)
}

// Do executes the identity check.
func (s *IdentityStep) Do(ctx context.Context, report *model.RunReport) error {
	o := s.updater.AuthenticatedLogin(ctx)
	if err := record(report, o); err != nil && o.Fatal() {
		return err
	}
	return nil
}

// BioStep sets the profile bio.
type BioStep struct {
	updater ProfileUpdater
	bio     string
}

// NewBioStep creates the bio step.
func NewBioStep(u ProfileUpdater, bio string) *BioStep {
	return &BioStep{updater: u, bio: bio}
}

// Name returns the step name.
func (s *BioStep) Name() string {
	return string(model.StepBio)
}

// Do executes the bio update.
func (s *BioStep) Do(ctx context.Context, report *model.RunReport) error {
	return record(report, s.updater.UpdateBio(ctx, s.bio))
}

// ReadmeStep updates or creates the profile README.
type ReadmeStep struct {
	updater    ProfileUpdater
	repository string
	localPath  string
}

// NewReadmeStep creates the README step.
func NewReadmeStep(u ProfileUpdater, repository, localPath string) *ReadmeStep {
	return &ReadmeStep{updater: u, repository: repository, localPath: localPath}
}

// Name returns the step name.
func (s *ReadmeStep) Name() string {
	return string(model.StepReadme)
}

// Do executes the README update.
func (s *ReadmeStep) Do(ctx context.Context, report *model.RunReport) error {
	return record(report, s.updater.UpdateReadme(ctx, s.repository, s.localPath))
}

// RotateStep requests a new Tor identity at the end of the run.
// Its failure is recorded as a ProxyControlFailure and never returned.
type RotateStep struct {
	rotator IdentityRotator
	logger  *slog.Logger
}

// RotateStepOption configures a RotateStep.
type RotateStepOption func(*RotateStep)

// WithRotateLogger sets the logger of the rotation step.
func WithRotateLogger(logger *slog.Logger) RotateStepOption {
	return func(s *RotateStep) {
		s.logger = logger
	}
}

// NewRotateStep creates the rotation step.
func NewRotateStep(rotator IdentityRotator, opts ...RotateStepOption) *RotateStep {
	s := &RotateStep{rotator: rotator}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Name returns the step name.
func (s *RotateStep) Name() string {
	return string(model.StepRotate)
}

// Do executes the rotation.
func (s *RotateStep) Do(ctx context.Context, report *model.RunReport) error {
	target := s.rotator.ControlAddress()
	if err := s.rotator.RotateIdentity(ctx); err != nil {
		s.logger.Warn("identity rotation failed, run result unchanged", "control", target, "error", err)
		report.Record(model.Failure(model.StepRotate, model.FailureProxyControl, target, err))
		return nil
	}
	report.Record(model.Success(model.StepRotate, model.ActionRotated, target))
	return nil
}
