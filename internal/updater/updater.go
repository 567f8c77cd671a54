package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/ghprofile/internal/model"
	"github.com/nao1215/ghprofile/internal/profileapi"
	"github.com/nao1215/ghprofile/internal/transport"
)

// Defaults for commit messages and the remote document path.
const (
	DefaultDocumentPath  = "README.md"
	DefaultCreateMessage = "Initialize README via ghprofile"
	DefaultUpdateMessage = "Update README via ghprofile"
)

// API is the remote profile API the updater drives.
// *profileapi.Client implements it.
type API interface {
	AuthenticatedUser(ctx context.Context) (string, error)
	Bio(ctx context.Context) (string, error)
	EditBio(ctx context.Context, bio string) error
	GetRepository(ctx context.Context, owner, repo string) error
	GetDocument(ctx context.Context, owner, repo, path string) (*profileapi.RemoteDocument, error)
	CreateDocument(ctx context.Context, owner, repo, path, message string, content []byte) error
	UpdateDocument(ctx context.Context, owner, repo, path, message string, content []byte, versionToken string) error
}

var _ API = (*profileapi.Client)(nil)

// Updater updates one user's profile. It is bound to one transport for its
// whole lifetime; every step returns a model.Outcome instead of an error.
type Updater struct {
	api       API
	transport transport.Transport
	username  string
	logger    *slog.Logger

	gateURL       string
	documentPath  string
	createMessage string
	updateMessage string
	dryRun        bool
	normalizeBio  bool
}

// Option configures an Updater.
type Option func(*Updater)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Updater) {
		u.logger = logger
	}
}

// WithGateURL sets the endpoint probed by VerifyConnectivity.
func WithGateURL(url string) Option {
	return func(u *Updater) {
		u.gateURL = url
	}
}

// WithDocumentPath sets the path of the README inside the repository.
func WithDocumentPath(path string) Option {
	return func(u *Updater) {
		u.documentPath = path
	}
}

// WithCommitMessages sets the commit messages used to create and update
// the README. Empty values keep the defaults.
func WithCommitMessages(create, update string) Option {
	return func(u *Updater) {
		if create != "" {
			u.createMessage = create
		}
		if update != "" {
			u.updateMessage = update
		}
	}
}

// WithDryRun makes every step read remote state and report what it would
// change, without writing.
func WithDryRun(dryRun bool) Option {
	return func(u *Updater) {
		u.dryRun = dryRun
	}
}

// WithBioNormalization sends the bio in Unicode NFC instead of exactly as
// given. Off by default, so a bio reads back byte for byte.
func WithBioNormalization(enabled bool) Option {
	return func(u *Updater) {
		u.normalizeBio = enabled
	}
}

// New creates an updater for username that calls api and probes
// connectivity through tr.
func New(api API, tr transport.Transport, username string, opts ...Option) *Updater {
	u := &Updater{
		api:           api,
		transport:     tr,
		username:      username,
		gateURL:       profileapi.DefaultBaseURL,
		documentPath:  DefaultDocumentPath,
		createMessage: DefaultCreateMessage,
		updateMessage: DefaultUpdateMessage,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = slog.New(slog.DiscardHandler)
	}
	return u
}

// DryRun reports whether the updater is in dry-run mode.
func (u *Updater) DryRun() bool {
	return u.dryRun
}

// VerifyConnectivity issues one unauthenticated GET to the gate endpoint
// through the bound transport and reports whether it answered 200.
func (u *Updater) VerifyConnectivity(ctx context.Context) bool {
	resp, err := u.transport.Get(ctx, u.gateURL)
	if err != nil {
		u.logger.Error("Failed to connect to GitHub API", "url", u.gateURL, "transport", u.transport.Name(), "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck // best effort drain

	if resp.StatusCode != http.StatusOK {
		u.logger.Error("Failed to connect to GitHub API", "url", u.gateURL, "status", resp.StatusCode)
		return false
	}

	u.logger.Info("GitHub API connectivity verified", "transport", u.transport.Name())
	return true
}

// AuthenticatedLogin resolves the login the token belongs to and warns when
// it differs from the configured username.
func (u *Updater) AuthenticatedLogin(ctx context.Context) model.Outcome {
	login, err := u.api.AuthenticatedUser(ctx)
	if err != nil {
		u.logger.Warn("Failed to resolve authenticated user", "error", err)
		return u.remoteFailure(model.StepIdentity, u.username, err)
	}

	if !strings.EqualFold(login, u.username) {
		u.logger.Warn("Token belongs to a different user",
			"username", u.username,
			"authenticated_as", login,
		)
	} else {
		u.logger.Debug("Token verified", "login", login)
	}
	return model.Success(model.StepIdentity, model.ActionVerified, login)
}

// UpdateBio sets the profile bio to text. A rejected edit is not retried.
func (u *Updater) UpdateBio(ctx context.Context, text string) model.Outcome {
	bio := text
	if u.normalizeBio {
		bio = NormalizeBio(text)
	}
	target := u.username

	if u.dryRun {
		current, err := u.api.Bio(ctx)
		if err != nil {
			u.logger.Error("Failed to read bio", "error", err)
			return u.remoteFailure(model.StepBio, target, err)
		}
		if current == bio {
			u.logger.Info("Bio already up to date", "bio", bio)
			return withBytes(model.Success(model.StepBio, model.ActionUnchanged, target), bio)
		}
		u.logger.Info("Dry run: bio would change", "from", current, "to", bio)
		o := withBytes(model.Success(model.StepBio, model.ActionDryRun, target), bio)
		o.Diff = Diff(current+"\n", bio+"\n", "bio")
		return o
	}

	if err := u.api.EditBio(ctx, bio); err != nil {
		u.logger.Error("Failed to update bio", "error", err)
		return u.remoteFailure(model.StepBio, target, err)
	}

	u.logger.Info("Successfully updated bio", "bio", bio)
	return withBytes(model.Success(model.StepBio, model.ActionUpdated, target), bio)
}

// UpdateReadme makes the README of repository match the local file:
// the document is updated with its version token when it exists and
// created when the API reports it missing. Any other failure to fetch the
// document fails the step without a create attempt.
//
// repository is "name" (owned by the configured user) or "owner/name".
// The local file is read before any remote call.
func (u *Updater) UpdateReadme(ctx context.Context, repository, localPath string) model.Outcome {
	owner, repo := u.splitRepository(repository)
	target := fmt.Sprintf("%s/%s:%s", owner, repo, u.documentPath)

	content, err := LoadDocument(localPath)
	if err != nil {
		u.logger.Error("README file not found", "path", localPath, "error", err)
		return model.Failure(model.StepReadme, model.FailureLocalIO, target, err)
	}

	if err := u.api.GetRepository(ctx, owner, repo); err != nil {
		u.logger.Error("Failed to update README", "repository", owner+"/"+repo, "error", err)
		return u.remoteFailure(model.StepReadme, target, err)
	}

	doc, err := u.api.GetDocument(ctx, owner, repo, u.documentPath)
	switch {
	case err == nil:
		return u.updateExisting(ctx, owner, repo, target, doc, content)
	case errors.Is(err, profileapi.ErrNotFound):
		return u.createMissing(ctx, owner, repo, target, content)
	default:
		u.logger.Error("Failed to fetch README", "target", target, "error", err)
		return u.remoteFailure(model.StepReadme, target, err)
	}
}

func (u *Updater) updateExisting(ctx context.Context, owner, repo, target string, doc *profileapi.RemoteDocument, content string) model.Outcome {
	if doc.ContentKnown && doc.Content == content {
		u.logger.Info("README already up to date", "target", target)
		return withBytes(model.Success(model.StepReadme, model.ActionUnchanged, target), content)
	}

	if u.dryRun {
		u.logger.Info("Dry run: README would be updated", "target", target, "size", humanize.Bytes(uint64(len(content))))
		o := withBytes(model.Success(model.StepReadme, model.ActionDryRun, target), content)
		if doc.ContentKnown {
			o.Diff = Diff(doc.Content, content, u.documentPath)
		}
		return o
	}

	u.logger.Debug("Updating README", "target", target, "sha", doc.VersionToken, "contentKnown", doc.ContentKnown)
	err := u.api.UpdateDocument(ctx, owner, repo, u.documentPath, u.updateMessage, []byte(content), doc.VersionToken)
	if err != nil {
		u.logger.Error("Failed to update README", "target", target, "error", err)
		return u.remoteFailure(model.StepReadme, target, err)
	}

	u.logger.Info("Successfully updated README", "target", target, "size", humanize.Bytes(uint64(len(content))))
	return withBytes(model.Success(model.StepReadme, model.ActionUpdated, target), content)
}

func (u *Updater) createMissing(ctx context.Context, owner, repo, target, content string) model.Outcome {
	if u.dryRun {
		u.logger.Info("Dry run: README would be created", "target", target, "size", humanize.Bytes(uint64(len(content))))
		o := withBytes(model.Success(model.StepReadme, model.ActionDryRun, target), content)
		o.Diff = Diff("", content, u.documentPath)
		return o
	}

	err := u.api.CreateDocument(ctx, owner, repo, u.documentPath, u.createMessage, []byte(content))
	if err != nil {
		u.logger.Error("Failed to create README", "target", target, "error", err)
		return u.remoteFailure(model.StepReadme, target, err)
	}

	u.logger.Info("Successfully created README", "target", target, "size", humanize.Bytes(uint64(len(content))))
	return withBytes(model.Success(model.StepReadme, model.ActionCreated, target), content)
}

// RepositoryName returns the "owner/name" form of repository.
func (u *Updater) RepositoryName(repository string) string {
	owner, repo := u.splitRepository(repository)
	return owner + "/" + repo
}

// splitRepository resolves "name" or "owner/name". An empty repository
// means the user's profile repository, which is named after the user.
func (u *Updater) splitRepository(repository string) (owner, repo string) {
	if owner, repo, ok := strings.Cut(repository, "/"); ok && owner != "" && repo != "" {
		return owner, repo
	}
	if repository == "" {
		return u.username, u.username
	}
	return u.username, repository
}

// remoteFailure maps an API error to an outcome. Cancellation is reported
// as such so the run stops; everything else is a remote rejection.
func (u *Updater) remoteFailure(step model.StepName, target string, err error) model.Outcome {
	if errors.Is(err, context.Canceled) {
		return model.Failure(step, model.FailureCancelled, target, err)
	}
	o := model.Failure(step, model.FailureRemoteRejection, target, err)
	if status, message := profileapi.Classify(err); status != 0 {
		o.Reason = fmt.Sprintf("%d %s", status, message)
	}
	return o
}

func withBytes(o model.Outcome, content string) model.Outcome {
	o.Bytes = len(content)
	return o
}
