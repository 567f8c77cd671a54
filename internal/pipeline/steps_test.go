package pipeline

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/ghprofile/internal/githubtest"
	"github.com/nao1215/ghprofile/internal/model"
	"github.com/nao1215/ghprofile/internal/profileapi"
	"github.com/nao1215/ghprofile/internal/transport"
	"github.com/nao1215/ghprofile/internal/updater"
)

const testToken = "ghp_pipelinetesttoken"

// fakeRotator records rotation requests.
type fakeRotator struct {
	err   error
	calls int
}

func (f *fakeRotator) RotateIdentity(_ context.Context) error {
	f.calls++
	return f.err
}

func (f *fakeRotator) ControlAddress() string {
	return "127.0.0.1:9051"
}

func newRealUpdater(t *testing.T, srv *githubtest.Server) *updater.Updater {
	t.Helper()

	tr := transport.NewDirect(5*time.Second, nil)
	api, err := profileapi.New(tr, testToken, profileapi.WithBaseURL(srv.URL()))
	if err != nil {
		t.Fatalf("profileapi.New failed: %v", err)
	}
	return updater.New(api, tr, "octocat", updater.WithGateURL(srv.URL()))
}

func writeReadme(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "README.md")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write README: %v", err)
	}
	return path
}

func TestNewRunPipeline(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		plan     Plan
		rotator  IdentityRotator
		expected []string
	}{
		{
			name:     "empty run",
			plan:     Plan{},
			expected: []string{"connectivity", "identity"},
		},
		{
			name:     "bio only",
			plan:     Plan{Bio: "Hello"},
			expected: []string{"connectivity", "identity", "bio"},
		},
		{
			name:     "everything with rotation",
			plan:     Plan{Bio: "Hello", ReadmePath: "README.md"},
			rotator:  &fakeRotator{},
			expected: []string{"connectivity", "identity", "bio", "readme", "rotate-identity"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := NewRunPipeline(nil, tc.rotator, tc.plan)
			names := p.StepNames()
			if len(names) != len(tc.expected) {
				t.Fatalf("StepNames() = %v, expected %v", names, tc.expected)
			}
			for i := range names {
				if names[i] != tc.expected[i] {
					t.Errorf("StepNames()[%d] = %q, expected %q", i, names[i], tc.expected[i])
				}
			}
		})
	}
}

// TestRunScenarioHello is the reference scenario: bio "Hello", a README
// file, no anonymizer, and no README in the remote repository.
func TestRunScenarioHello(t *testing.T) {
	t.Parallel()

	srv := githubtest.NewServer(t, "octocat", testToken)
	srv.AddRepository("octocat", "octocat")

	plan := Plan{Bio: "Hello", ReadmePath: writeReadme(t, "# Hi there\n"), GateURL: srv.URL()}
	p := NewRunPipeline(newRealUpdater(t, srv), nil, plan)

	report := model.NewRunReport("octocat")
	if err := p.Execute(context.Background(), report); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	report.Finish()

	if srv.Bio() != "Hello" {
		t.Errorf("bio = %q, expected Hello", srv.Bio())
	}
	if got, ok := srv.File("octocat", "octocat", "README.md"); !ok || got != "# Hi there\n" {
		t.Errorf("README = %q, %v", got, ok)
	}
	if o, _ := report.Outcome(model.StepReadme); o.Action != model.ActionCreated {
		t.Errorf("readme action = %q, expected created", o.Action)
	}
	if report.Successes() != 2 {
		t.Errorf("Successes() = %d, expected 2", report.Successes())
	}
	if _, ok := report.Outcome(model.StepRotate); ok {
		t.Error("no rotation without anonymizer")
	}
	if !report.Succeeded() || report.State != model.StateDone {
		t.Errorf("expected successful run, state %q", report.State)
	}

	// The gate comes first, then the informational login lookup, then the
	// writes. Only a missing README (404) leads to the create.
	want := []string{
		"GET /",
		"GET /user",
		"PATCH /user",
		"GET /repos/octocat/octocat",
		"GET /repos/octocat/octocat/contents/README.md",
		"PUT /repos/octocat/octocat/contents/README.md",
	}
	if calls := srv.Calls(); !slices.Equal(calls, want) {
		t.Errorf("calls = %v\nwant    %v", calls, want)
	}
}

func TestRunFailedGateBlocksEverything(t *testing.T) {
	t.Parallel()

	srv := githubtest.NewServer(t, "octocat", testToken)
	srv.AddRepository("octocat", "octocat")
	srv.FailWith(http.MethodGet, "/", http.StatusServiceUnavailable)

	rotator := &fakeRotator{}
	plan := Plan{Bio: "Hello", ReadmePath: writeReadme(t, "x"), GateURL: srv.URL()}
	p := NewRunPipeline(newRealUpdater(t, srv), rotator, plan)

	report := model.NewRunReport("octocat")
	err := p.Execute(context.Background(), report)
	report.Finish()

	if !errors.Is(err, ErrHalt) {
		t.Errorf("expected ErrHalt, got %v", err)
	}
	if calls := srv.Calls(); len(calls) != 1 {
		t.Errorf("expected only the gate request, got %v", calls)
	}
	if rotator.calls != 0 {
		t.Error("rotation must not run after a failed gate")
	}
	if report.State != model.StateFailed || report.Succeeded() {
		t.Errorf("expected failed run, state %q", report.State)
	}
	o, _ := report.Outcome(model.StepConnectivity)
	if o.Kind != model.FailureConnectivity {
		t.Errorf("gate kind = %v", o.Kind)
	}
}

func TestRunRotationFailureDoesNotChangeResult(t *testing.T) {
	t.Parallel()

	srv := githubtest.NewServer(t, "octocat", testToken)
	rotator := &fakeRotator{err: errors.New("connection refused")}

	p := NewRunPipeline(newRealUpdater(t, srv), rotator, Plan{Bio: "Hello", GateURL: srv.URL()})

	report := model.NewRunReport("octocat")
	if err := p.Execute(context.Background(), report); err != nil {
		t.Fatalf("rotation failure must not escape: %v", err)
	}
	report.Finish()

	if rotator.calls != 1 {
		t.Errorf("rotation calls = %d, expected 1", rotator.calls)
	}
	o, ok := report.Outcome(model.StepRotate)
	if !ok || o.Kind != model.FailureProxyControl {
		t.Errorf("rotate outcome = %+v", o)
	}
	if bio, _ := report.Outcome(model.StepBio); !bio.OK() {
		t.Error("bio outcome must stay a success")
	}
	if !report.Succeeded() {
		t.Error("run must still succeed")
	}
}

func TestRunRotationAfterUpdateFailure(t *testing.T) {
	t.Parallel()

	for _, failFast := range []bool{false, true} {
		srv := githubtest.NewServer(t, "octocat", testToken)
		srv.FailWith(http.MethodPatch, "/user", http.StatusUnprocessableEntity)
		rotator := &fakeRotator{}

		plan := Plan{Bio: "Hello", ReadmePath: filepath.Join(t.TempDir(), "missing.md"), GateURL: srv.URL()}
		p := NewRunPipeline(newRealUpdater(t, srv), rotator, plan, WithContinueOnError(!failFast))

		report := model.NewRunReport("octocat")
		if err := p.Execute(context.Background(), report); err == nil {
			t.Errorf("failFast=%v: expected error", failFast)
		}
		report.Finish()

		if rotator.calls != 1 {
			t.Errorf("failFast=%v: rotation calls = %d, expected 1", failFast, rotator.calls)
		}
		if state := report.State; state != model.StateDone {
			t.Errorf("failFast=%v: State = %q, expected Done", failFast, state)
		}

		_, readmeRan := report.Outcome(model.StepReadme)
		if failFast && readmeRan {
			t.Error("fail-fast must skip the README step")
		}
		if !failFast {
			o, _ := report.Outcome(model.StepReadme)
			if o.Kind != model.FailureLocalIO {
				t.Errorf("readme kind = %v, expected LocalIOFailure", o.Kind)
			}
		}
	}
}

func TestRunEmptyPlan(t *testing.T) {
	t.Parallel()

	srv := githubtest.NewServer(t, "octocat", testToken)
	p := NewRunPipeline(newRealUpdater(t, srv), nil, Plan{GateURL: srv.URL()})

	report := model.NewRunReport("octocat")
	if err := p.Execute(context.Background(), report); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	report.Finish()

	if srv.CallCount("PATCH") != 0 || srv.CallCount("PUT") != 0 {
		t.Errorf("empty run must not write: %v", srv.Calls())
	}
	if !report.Succeeded() {
		t.Error("empty run must succeed")
	}
}
