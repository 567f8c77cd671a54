package updater

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/ghprofile/internal/githubtest"
	"github.com/nao1215/ghprofile/internal/model"
	"github.com/nao1215/ghprofile/internal/profileapi"
	"github.com/nao1215/ghprofile/internal/transport"
)

const testToken = "ghp_updatertesttoken"

func newTestUpdater(t *testing.T, srv *githubtest.Server, token string, opts ...Option) *Updater {
	t.Helper()

	tr := transport.NewDirect(5*time.Second, nil)
	api, err := profileapi.New(tr, token, profileapi.WithBaseURL(srv.URL()))
	if err != nil {
		t.Fatalf("profileapi.New failed: %v", err)
	}
	opts = append([]Option{WithGateURL(srv.URL())}, opts...)
	return New(api, tr, "octocat", opts...)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "README.md")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

func TestVerifyConnectivity(t *testing.T) {
	t.Parallel()

	t.Run("200 passes the gate", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		u := newTestUpdater(t, srv, testToken)
		if !u.VerifyConnectivity(context.Background()) {
			t.Error("expected gate to pass")
		}
		if srv.CallCount("GET /") != 1 {
			t.Errorf("calls = %v", srv.Calls())
		}
	})

	t.Run("503 fails the gate", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		srv.FailWith(http.MethodGet, "/", http.StatusServiceUnavailable)

		var buf bytes.Buffer
		u := newTestUpdater(t, srv, testToken, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
		if u.VerifyConnectivity(context.Background()) {
			t.Error("expected gate to fail")
		}
		if !strings.Contains(buf.String(), "Failed to connect to GitHub API") {
			t.Errorf("expected failure log, got %q", buf.String())
		}
	})

	t.Run("unreachable endpoint fails the gate", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		u := newTestUpdater(t, srv, testToken, WithGateURL("http://127.0.0.1:1/"))
		if u.VerifyConnectivity(context.Background()) {
			t.Error("expected gate to fail")
		}
	})
}

func TestAuthenticatedLogin(t *testing.T) {
	t.Parallel()

	t.Run("matching login", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		o := newTestUpdater(t, srv, testToken).AuthenticatedLogin(context.Background())
		if !o.OK() || o.Target != "octocat" {
			t.Errorf("unexpected outcome: %+v", o)
		}
	})

	t.Run("different login warns but succeeds", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "hubot", testToken)
		var buf bytes.Buffer
		u := newTestUpdater(t, srv, testToken, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

		o := u.AuthenticatedLogin(context.Background())
		if !o.OK() || o.Target != "hubot" {
			t.Errorf("unexpected outcome: %+v", o)
		}
		if !strings.Contains(buf.String(), "different user") {
			t.Errorf("expected mismatch warning, got %q", buf.String())
		}
	})

	t.Run("bad token", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		o := newTestUpdater(t, srv, "ghp_bad").AuthenticatedLogin(context.Background())
		if o.Kind != model.FailureRemoteRejection {
			t.Errorf("Kind = %v, expected RemoteRejection", o.Kind)
		}
	})
}

func TestUpdateBio(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		u := newTestUpdater(t, srv, testToken)

		o := u.UpdateBio(context.Background(), "Hello")
		if !o.OK() || o.Action != model.ActionUpdated {
			t.Fatalf("unexpected outcome: %+v", o)
		}
		if srv.Bio() != "Hello" {
			t.Errorf("bio = %q, expected Hello", srv.Bio())
		}
		if o.Bytes != len("Hello") {
			t.Errorf("Bytes = %d", o.Bytes)
		}
	})

	t.Run("decomposed bio reads back unchanged", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		u := newTestUpdater(t, srv, testToken)

		const bio = "Cafe\u0301"
		if o := u.UpdateBio(context.Background(), bio); !o.OK() {
			t.Fatalf("unexpected outcome: %+v", o)
		}
		if srv.Bio() != bio {
			t.Errorf("bio = %q, expected %q", srv.Bio(), bio)
		}

		dry := newTestUpdater(t, srv, testToken, WithDryRun(true))
		if o := dry.UpdateBio(context.Background(), bio); o.Action != model.ActionUnchanged {
			t.Errorf("Action = %q, expected unchanged", o.Action)
		}
	})

	t.Run("normalization is opt-in", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		u := newTestUpdater(t, srv, testToken, WithBioNormalization(true))

		if o := u.UpdateBio(context.Background(), "Cafe\u0301"); !o.OK() {
			t.Fatalf("unexpected outcome: %+v", o)
		}
		if srv.Bio() != "Caf\u00e9" {
			t.Errorf("bio = %q, expected composed form", srv.Bio())
		}
	})

	t.Run("rejection is not retried", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		u := newTestUpdater(t, srv, "ghp_bad")

		o := u.UpdateBio(context.Background(), "Hello")
		if o.Kind != model.FailureRemoteRejection {
			t.Fatalf("Kind = %v, expected RemoteRejection", o.Kind)
		}
		if !strings.HasPrefix(o.Reason, "401") {
			t.Errorf("Reason = %q", o.Reason)
		}
		if n := srv.CallCount("PATCH /user"); n != 1 {
			t.Errorf("PATCH calls = %d, expected 1", n)
		}
	})

	t.Run("too long bio is rejected", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		u := newTestUpdater(t, srv, testToken)

		o := u.UpdateBio(context.Background(), strings.Repeat("x", 200))
		if o.Kind != model.FailureRemoteRejection {
			t.Errorf("Kind = %v, expected RemoteRejection", o.Kind)
		}
	})

	t.Run("dry run does not write", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		srv.SetBio("Old")
		u := newTestUpdater(t, srv, testToken, WithDryRun(true))

		o := u.UpdateBio(context.Background(), "New")
		if !o.OK() || o.Action != model.ActionDryRun {
			t.Fatalf("unexpected outcome: %+v", o)
		}
		if !strings.Contains(o.Diff, "+New") {
			t.Errorf("Diff = %q", o.Diff)
		}
		if srv.Bio() != "Old" || srv.CallCount("PATCH") != 0 {
			t.Error("dry run must not write")
		}

		if o := u.UpdateBio(context.Background(), "Old"); o.Action != model.ActionUnchanged {
			t.Errorf("Action = %q, expected unchanged", o.Action)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		u := newTestUpdater(t, srv, testToken)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if o := u.UpdateBio(ctx, "Hello"); o.Kind != model.FailureCancelled {
			t.Errorf("Kind = %v, expected Cancelled", o.Kind)
		}
	})
}

func TestUpdateReadme(t *testing.T) {
	t.Parallel()

	t.Run("create then update without duplication", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		srv.AddRepository("octocat", "octocat")
		u := newTestUpdater(t, srv, testToken)
		ctx := context.Background()

		first := u.UpdateReadme(ctx, "octocat", writeFile(t, "# v1\n"))
		if !first.OK() || first.Action != model.ActionCreated {
			t.Fatalf("first run: %+v", first)
		}
		if first.Target != "octocat/octocat:README.md" {
			t.Errorf("Target = %q", first.Target)
		}

		second := u.UpdateReadme(ctx, "octocat", writeFile(t, "# v2\n"))
		if !second.OK() || second.Action != model.ActionUpdated {
			t.Fatalf("second run: %+v", second)
		}

		if got, _ := srv.File("octocat", "octocat", "README.md"); got != "# v2\n" {
			t.Errorf("content = %q", got)
		}
		if n := srv.CallCount("PUT /repos/octocat/octocat/contents/README.md"); n != 2 {
			t.Errorf("PUT calls = %d, expected 2", n)
		}
	})

	t.Run("identical content is left untouched", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		srv.PutFile("octocat", "octocat", "README.md", "# same\n")
		u := newTestUpdater(t, srv, testToken)

		o := u.UpdateReadme(context.Background(), "octocat", writeFile(t, "# same\n"))
		if !o.OK() || o.Action != model.ActionUnchanged {
			t.Fatalf("unexpected outcome: %+v", o)
		}
		if srv.CallCount("PUT") != 0 {
			t.Error("unchanged content must not be written")
		}
	})

	t.Run("large remote file is updated with its version token", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		srv.PutFile("octocat", "octocat", "README.md", "# big\n")
		srv.WithholdContent("octocat", "octocat", "README.md")
		u := newTestUpdater(t, srv, testToken)

		o := u.UpdateReadme(context.Background(), "octocat", writeFile(t, "# big\n"))
		if !o.OK() || o.Action != model.ActionUpdated {
			t.Fatalf("unexpected outcome: %+v", o)
		}
		if n := srv.CallCount("PUT /repos/octocat/octocat/contents/README.md"); n != 1 {
			t.Errorf("PUT calls = %d, expected 1", n)
		}
	})

	t.Run("missing local file makes no remote call", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		u := newTestUpdater(t, srv, testToken)

		o := u.UpdateReadme(context.Background(), "octocat", filepath.Join(t.TempDir(), "missing.md"))
		if o.Kind != model.FailureLocalIO {
			t.Fatalf("Kind = %v, expected LocalIOFailure", o.Kind)
		}
		if calls := srv.Calls(); len(calls) != 0 {
			t.Errorf("expected no remote call, got %v", calls)
		}
	})

	t.Run("missing repository", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		u := newTestUpdater(t, srv, testToken)

		o := u.UpdateReadme(context.Background(), "nope", writeFile(t, "x"))
		if o.Kind != model.FailureRemoteRejection {
			t.Fatalf("Kind = %v, expected RemoteRejection", o.Kind)
		}
		if srv.CallCount("GET /repos/octocat/nope/contents") != 0 || srv.CallCount("PUT") != 0 {
			t.Errorf("unexpected calls: %v", srv.Calls())
		}
	})

	t.Run("fetch error other than not found does not create", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		srv.AddRepository("octocat", "octocat")
		srv.FailWith(http.MethodGet, "/repos/octocat/octocat/contents/README.md", http.StatusForbidden)
		u := newTestUpdater(t, srv, testToken)

		o := u.UpdateReadme(context.Background(), "octocat", writeFile(t, "x"))
		if o.Kind != model.FailureRemoteRejection {
			t.Fatalf("Kind = %v, expected RemoteRejection", o.Kind)
		}
		if srv.CallCount("PUT") != 0 {
			t.Error("must not attempt create after a non-404 fetch error")
		}
	})

	t.Run("rejected write", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		srv.AddRepository("octocat", "octocat")
		srv.FailWith(http.MethodPut, "/repos/octocat/octocat/contents/README.md", http.StatusUnprocessableEntity)
		u := newTestUpdater(t, srv, testToken)

		o := u.UpdateReadme(context.Background(), "octocat", writeFile(t, "x"))
		if o.Kind != model.FailureRemoteRejection {
			t.Errorf("Kind = %v, expected RemoteRejection", o.Kind)
		}
	})

	t.Run("dry run reports a diff and does not write", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		srv.PutFile("octocat", "octocat", "README.md", "line one\n")
		u := newTestUpdater(t, srv, testToken, WithDryRun(true))

		o := u.UpdateReadme(context.Background(), "octocat", writeFile(t, "line two\n"))
		if !o.OK() || o.Action != model.ActionDryRun {
			t.Fatalf("unexpected outcome: %+v", o)
		}
		if !strings.Contains(o.Diff, "-line one") || !strings.Contains(o.Diff, "+line two") {
			t.Errorf("Diff = %q", o.Diff)
		}
		if srv.CallCount("PUT") != 0 {
			t.Error("dry run must not write")
		}
	})

	t.Run("owner/name repository and custom path", func(t *testing.T) {
		t.Parallel()

		srv := githubtest.NewServer(t, "octocat", testToken)
		srv.AddRepository("octo-org", ".github")
		u := newTestUpdater(t, srv, testToken,
			WithDocumentPath("profile/README.md"),
			WithCommitMessages("", "custom update"),
		)

		o := u.UpdateReadme(context.Background(), "octo-org/.github", writeFile(t, "org\n"))
		if !o.OK() || o.Action != model.ActionCreated {
			t.Fatalf("unexpected outcome: %+v", o)
		}
		if _, ok := srv.File("octo-org", ".github", "profile/README.md"); !ok {
			t.Error("expected file in octo-org/.github")
		}
	})
}

func TestSplitRepository(t *testing.T) {
	t.Parallel()

	u := New(nil, nil, "octocat")
	testCases := []struct {
		in, owner, repo string
	}{
		{"", "octocat", "octocat"},
		{"profile", "octocat", "profile"},
		{"org/profile", "org", "profile"},
		{"/profile", "octocat", "/profile"},
	}
	for _, tc := range testCases {
		owner, repo := u.splitRepository(tc.in)
		if owner != tc.owner || repo != tc.repo {
			t.Errorf("splitRepository(%q) = %q, %q; expected %q, %q", tc.in, owner, repo, tc.owner, tc.repo)
		}
		if got := u.RepositoryName(tc.in); got != tc.owner+"/"+tc.repo {
			t.Errorf("RepositoryName(%q) = %q", tc.in, got)
		}
	}
}
