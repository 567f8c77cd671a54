package profileapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"

	"github.com/nao1215/ghprofile/internal/transport"
)

// DefaultBaseURL is the public GitHub REST API endpoint.
const DefaultBaseURL = "https://api.github.com/"

// userAgent identifies ghprofile to the API.
const userAgent = "ghprofile"

// ErrNotFound is returned when the requested remote object does not exist (HTTP 404).
var ErrNotFound = errors.New("remote object not found")

// ErrNotAFile is returned when a document path names a directory.
var ErrNotAFile = errors.New("remote path is not a file")

// RemoteDocument is a file stored in a repository.
type RemoteDocument struct {
	// Path is the path inside the repository, e.g. "README.md".
	Path string

	// Content is the decoded file content. It is only meaningful when
	// ContentKnown is set.
	Content string

	// ContentKnown is false when the API listed the file without content,
	// as it does for files over 1 MB.
	ContentKnown bool

	// VersionToken is the blob SHA that must accompany an update.
	VersionToken string
}

// Client talks to the GitHub REST API on behalf of one authenticated user.
// All requests go through the HTTP client of the transport it was built
// with, so a Tor transport anonymizes API traffic too.
type Client struct {
	gh      *github.Client
	baseURL string
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (GitHub Enterprise, tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New builds a client whose requests are routed by tr and authenticated
// with token.
func New(tr transport.Transport, token string, opts ...Option) (*Client, error) {
	c := &Client{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL %q: %w", c.baseURL, err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	c.baseURL = base.String()

	c.gh = github.NewClient(transport.WithBearerToken(tr.HTTPClient(), token))
	c.gh.BaseURL = base
	c.gh.UserAgent = userAgent
	return c, nil
}

// BaseURL returns the normalized API root, always ending in "/".
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AuthenticatedUser returns the login the token belongs to.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", c.wrap("get authenticated user", err)
	}
	return user.GetLogin(), nil
}

// Bio returns the authenticated user's current bio.
func (c *Client) Bio(ctx context.Context) (string, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", c.wrap("get bio", err)
	}
	return user.GetBio(), nil
}

// EditBio replaces the authenticated user's bio.
func (c *Client) EditBio(ctx context.Context, bio string) error {
	if _, _, err := c.gh.Users.Edit(ctx, &github.User{Bio: github.String(bio)}); err != nil {
		return c.wrap("edit bio", err)
	}
	return nil
}

// GetRepository checks that owner/repo exists and is visible to the token.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) error {
	if _, _, err := c.gh.Repositories.Get(ctx, owner, repo); err != nil {
		return c.wrap("get repository "+owner+"/"+repo, err)
	}
	return nil
}

// GetDocument fetches the file at path. A missing file yields ErrNotFound;
// every other failure is returned as is, wrapped. Content the API does not
// inline leaves ContentKnown unset but still carries the version token.
func (c *Client) GetDocument(ctx context.Context, owner, repo, path string) (*RemoteDocument, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, c.wrap("get "+path, err)
	}
	if file == nil {
		return nil, fmt.Errorf("get %s: %w", path, ErrNotAFile)
	}

	doc := &RemoteDocument{
		Path:         file.GetPath(),
		VersionToken: file.GetSHA(),
	}
	content, err := file.GetContent()
	switch {
	case err == nil:
		doc.Content = content
		doc.ContentKnown = true
	case doc.VersionToken == "":
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	default:
		c.logger.Debug("Document content not available", "path", path, "encoding", file.GetEncoding(), "error", err)
	}
	return doc, nil
}

// CreateDocument creates a new file. It fails if the file already exists.
func (c *Client) CreateDocument(ctx context.Context, owner, repo, path, message string, content []byte) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
	}
	if _, _, err := c.gh.Repositories.CreateFile(ctx, owner, repo, path, opts); err != nil {
		return c.wrap("create "+path, err)
	}
	return nil
}

// UpdateDocument replaces an existing file. versionToken must be the SHA
// returned by GetDocument; a stale token is rejected by the API.
func (c *Client) UpdateDocument(ctx context.Context, owner, repo, path, message string, content []byte, versionToken string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		SHA:     github.String(versionToken),
	}
	if _, _, err := c.gh.Repositories.UpdateFile(ctx, owner, repo, path, opts); err != nil {
		return c.wrap("update "+path, err)
	}
	return nil
}

// wrap annotates err with op, maps 404 to ErrNotFound and logs the
// classified failure at Debug; callers decide how loud the failure is.
func (c *Client) wrap(op string, err error) error {
	status, message := Classify(err)
	c.logger.Debug("GitHub API call failed", "op", op, "status", status, "message", message)

	if status == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Classify extracts the HTTP status code and API message from err.
// status is 0 when err did not come from an HTTP response.
func Classify(err error) (status int, message string) {
	if err == nil {
		return 0, ""
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return statusOf(rateErr.Response), "rate limited: " + rateErr.Message
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return statusOf(abuseErr.Response), "secondary rate limit: " + abuseErr.Message
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		return statusOf(respErr.Response), respErr.Message
	}

	return 0, err.Error()
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
