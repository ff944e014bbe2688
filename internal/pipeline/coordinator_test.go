package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/agent"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client/clienttest"
	evctx "github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/context"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/store"
)

func TestMain(m *testing.M) {
	logging.Discard()
	// genai pulls in opencensus, whose view worker starts at package init
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fixture struct {
	store *store.Store
	gw    *clienttest.Gateway
	coord *Coordinator
	nb    *domain.Notebook
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SummaryTriggerTokens = 0
	return cfg
}

// resilient wraps gw with the production retry loop and millisecond backoff.
func resilient(gw client.Gateway) client.Gateway {
	return client.NewResilient(gw, client.Options{
		Retry: client.RetryConfig{MaxRetries: 3, RetryDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond},
	})
}

func newFixture(t *testing.T, r clienttest.Responder, cfg Config) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "evoc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, gw: clienttest.New(r)}
	f.coord = New(st, resilient(f.gw), evctx.NewHeuristicBudgeter(), cfg)
	t.Cleanup(f.coord.Close)

	f.nb = f.newNotebook(t)
	return f
}

func (f *fixture) newNotebook(t *testing.T) *domain.Notebook {
	t.Helper()
	ctx := context.Background()
	p := &domain.ProblemSpec{
		Title:       "Travelling salesman",
		Description: "Visit 20 cities exactly once and return to the start.",
		Type:        domain.ProblemOptimization,
		Objectives:  []string{"minimize travel distance"},
	}
	require.NoError(t, f.store.CreateProblem(ctx, p))
	nb, err := f.store.CreateNotebook(ctx, p.ID, "tsp")
	require.NoError(t, err)
	return nb
}

func (f *fixture) activeTypes(t *testing.T, notebookID string) []domain.CellType {
	t.Helper()
	cells, err := f.store.ListActive(context.Background(), notebookID)
	require.NoError(t, err)
	var out []domain.CellType
	for _, c := range cells {
		out = append(out, c.Type)
	}
	return out
}

func (f *fixture) runFor(t *testing.T, agentID string) domain.AgentRun {
	t.Helper()
	runs, err := f.store.LatestRuns(context.Background(), f.nb.ID)
	require.NoError(t, err)
	run, ok := runs[agentID]
	require.True(t, ok, "no run for %s", agentID)
	return run
}

func pipelineTypes(n int) []domain.CellType {
	all := []domain.CellType{
		domain.CellProblemAnalysis,
		domain.CellIndividualRepresentation,
		domain.CellFitness,
		domain.CellCrossover,
		domain.CellMutation,
		domain.CellSelection,
		domain.CellToolboxRegistration,
	}
	return all[:n]
}

func roleNames() []string {
	var out []string
	for _, r := range agent.Roles() {
		out = append(out, r.String())
	}
	return out
}

func TestFullPipelineCompletes(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	st, err := f.coord.Run(ctx, f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
	assert.Equal(t, 7, st.Stage)
	assert.Empty(t, st.Agent)

	cells, err := f.store.ListActive(ctx, f.nb.ID)
	require.NoError(t, err)
	require.Len(t, cells, 7)
	for i, c := range cells {
		assert.Equal(t, pipelineTypes(7)[i], c.Type)
		assert.Equal(t, 1, c.Version)
		assert.Equal(t, i+1, c.Position)
		assert.Equal(t, clienttest.Code(c.AgentID), c.Code)
	}

	if diff := cmp.Diff(roleNames(), f.gw.Roles()); diff != "" {
		t.Errorf("agent call order (-want +got):\n%s", diff)
	}

	status, err := f.store.GetNotebookStatus(ctx, f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NotebookCompleted, status)

	runs, err := f.store.ListRuns(ctx, f.nb.ID)
	require.NoError(t, err)
	require.Len(t, runs, 7)
	for i, r := range runs {
		assert.Equal(t, domain.RunSucceeded, r.Status)
		assert.Equal(t, i+1, r.Iteration)
		assert.Equal(t, st.SessionID, r.SessionID)
		assert.NotEmpty(t, r.CellID)
		assert.Positive(t, r.TokenUsage)
	}
}

func TestEachAgentSeesEveryEarlierCell(t *testing.T) {
	f := newFixture(t, nil, testConfig())

	_, err := f.coord.Run(context.Background(), f.nb.ID)
	require.NoError(t, err)

	calls := f.gw.Calls()
	require.Len(t, calls, 7)
	for i, call := range calls {
		assert.Contains(t, call.Prompt, "PROBLEM DESCRIPTION:")
		for j, ct := range pipelineTypes(7) {
			tag := "[" + string(ct) + "]"
			if j < i {
				assert.Contains(t, call.Prompt, tag, "call %d should see %s", i+1, ct)
			} else {
				assert.NotContains(t, call.Prompt, tag, "call %d should not see %s", i+1, ct)
			}
		}
	}
}

func TestTransientErrorRetriedWithinStage(t *testing.T) {
	// calls 3 and 4 fail; the fitness stage succeeds on its second retry
	r := clienttest.FailOn(clienttest.DEAP, clienttest.Transient("model overloaded"), 3, 4)
	f := newFixture(t, r, testConfig())
	ctx := context.Background()

	st, err := f.coord.Run(ctx, f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
	assert.Equal(t, 9, f.gw.CallCount())

	versions, err := f.store.ListVersions(ctx, f.nb.ID, domain.CellFitness)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	run := f.runFor(t, "fitness_function")
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Equal(t, float64(3), run.Metadata["gateway_attempts"])
	assert.Equal(t, float64(2), run.Metadata["gateway_retries"])
	assert.Equal(t, float64(0), run.Metadata["parse_retries"])
	assert.Equal(t, 2, st.Retries["fitness_function"])

	runs, err := f.store.ListRuns(ctx, f.nb.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 7)
}

func TestCancelBetweenStages(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	ids := make(chan string, 1)
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 4 {
			// crossover is in flight; it must still be committed
			assert.NoError(t, f.coord.Cancel(ctx, <-ids))
		}
	}

	id, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)
	ids <- id

	st, err := f.coord.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, st.State)
	assert.Equal(t, 4, st.Stage)
	assert.Equal(t, 4, f.gw.CallCount())
	assert.Equal(t, pipelineTypes(4), f.activeTypes(t, f.nb.ID))

	for _, ct := range pipelineTypes(7)[4:] {
		_, err := f.store.GetActive(ctx, f.nb.ID, ct)
		assert.ErrorIs(t, err, store.ErrNotFound)
	}

	status, err := f.store.GetNotebookStatus(ctx, f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NotebookEvolving, status)

	assert.ErrorIs(t, f.coord.Cancel(ctx, id), ErrInvalidTransition)
	assert.ErrorIs(t, f.coord.Resume(ctx, id), ErrInvalidTransition)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	ids := make(chan string, 1)
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 2 {
			assert.NoError(t, f.coord.Pause(<-ids))
		}
	}

	id, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)
	ids <- id

	st, err := f.coord.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaused, st.State)
	assert.Equal(t, 2, st.Stage)
	assert.Equal(t, "fitness_function", st.Agent)
	assert.Equal(t, pipelineTypes(2), f.activeTypes(t, f.nb.ID))

	_, err = f.coord.Start(ctx, f.nb.ID)
	assert.ErrorIs(t, err, ErrNotebookBusy)

	require.NoError(t, f.coord.Resume(ctx, id))
	st, err = f.coord.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
	assert.Equal(t, 7, f.gw.CallCount())
	assert.Equal(t, pipelineTypes(7), f.activeTypes(t, f.nb.ID))
}

func TestCancelWhilePaused(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	ids := make(chan string, 1)
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 1 {
			assert.NoError(t, f.coord.Pause(<-ids))
		}
	}
	id, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)
	ids <- id
	_, err = f.coord.Wait(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.coord.Cancel(ctx, id))
	st, err := f.coord.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, st.State)

	// the notebook is free again
	_, err = f.coord.Run(ctx, f.nb.ID)
	require.NoError(t, err)
}

func TestResumeAfterRestart(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	ids := make(chan string, 1)
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 3 {
			assert.NoError(t, f.coord.Pause(<-ids))
		}
	}
	id, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)
	ids <- id
	_, err = f.coord.Wait(ctx, id)
	require.NoError(t, err)
	f.coord.Close()

	gw := clienttest.New(nil)
	restarted := New(f.store, gw, evctx.NewHeuristicBudgeter(), testConfig())
	defer restarted.Close()

	st, err := restarted.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaused, st.State)
	assert.Equal(t, 3, st.Stage)

	require.NoError(t, restarted.Resume(ctx, id))
	st, err = restarted.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
	assert.Equal(t, roleNames()[3:], gw.Roles())
	assert.Equal(t, pipelineTypes(7), f.activeTypes(t, f.nb.ID))
}

func TestParseErrorRetriedWithCorrection(t *testing.T) {
	r := func(n int, req client.Request) (string, error) {
		if n == 1 {
			return clienttest.Unparseable(n, req)
		}
		return clienttest.DEAP(n, req)
	}
	f := newFixture(t, r, testConfig())

	st, err := f.coord.Run(context.Background(), f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
	assert.Equal(t, 8, f.gw.CallCount())

	calls := f.gw.Calls()
	assert.NotContains(t, calls[0].Prompt, "CORRECTION:")
	assert.Contains(t, calls[1].Prompt, "CORRECTION:")
	assert.Equal(t, "problem_analyser", calls[1].Role)

	run := f.runFor(t, "problem_analyser")
	assert.Equal(t, float64(1), run.Metadata["parse_retries"])
	assert.Equal(t, float64(2), run.Metadata["gateway_attempts"])
	assert.Equal(t, 1, st.Retries["problem_analyser"])
}

func TestParseRetriesExhaustedFailsPipeline(t *testing.T) {
	r := func(n int, req client.Request) (string, error) {
		if req.Role == "fitness_function" {
			return clienttest.Unparseable(n, req)
		}
		return clienttest.DEAP(n, req)
	}
	f := newFixture(t, r, testConfig())
	ctx := context.Background()

	st, err := f.coord.Run(ctx, f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, st.State)
	assert.Equal(t, 2, st.Stage)
	assert.Contains(t, st.Reason, "fitness_function")
	assert.Contains(t, st.Reason, "unusable model output")
	assert.Equal(t, 5, f.gw.CallCount())
	assert.Equal(t, pipelineTypes(2), f.activeTypes(t, f.nb.ID))

	run := f.runFor(t, "fitness_function")
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, "I am not sure how to write this yet.", run.Output)
	assert.Equal(t, float64(2), run.Metadata["parse_retries"])
	assert.Empty(t, run.CellID)
}

func TestFatalGatewayErrorFailsImmediately(t *testing.T) {
	r := clienttest.FailOn(clienttest.DEAP, clienttest.Fatal("invalid api key"), 2)
	f := newFixture(t, r, testConfig())

	st, err := f.coord.Run(context.Background(), f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, st.State)
	assert.Equal(t, 1, st.Stage)
	assert.Contains(t, st.Reason, "invalid api key")
	assert.Equal(t, 2, f.gw.CallCount())
	assert.Equal(t, pipelineTypes(1), f.activeTypes(t, f.nb.ID))
}

func TestTransientRetriesExhaustedFailsPipeline(t *testing.T) {
	r := clienttest.FailOn(clienttest.DEAP, clienttest.Transient("timeout"), 1, 2, 3, 4)
	f := newFixture(t, r, testConfig())

	st, err := f.coord.Run(context.Background(), f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, st.State)
	assert.Equal(t, 0, st.Stage)
	assert.Contains(t, st.Reason, "gave up after 4 attempts")
	assert.Equal(t, 4, f.gw.CallCount())

	run := f.runFor(t, "problem_analyser")
	assert.Equal(t, float64(4), run.Metadata["gateway_attempts"])
}

func TestSessionLookups(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	_, err := f.coord.Status(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.coord.Cancel(ctx, "missing"), ErrSessionNotFound)
	assert.ErrorIs(t, f.coord.Pause("missing"), ErrSessionNotFound)
	assert.ErrorIs(t, f.coord.Resume(ctx, "missing"), ErrSessionNotFound)

	_, err = f.coord.Start(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	st, err := f.coord.Run(ctx, f.nb.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.coord.Pause(st.SessionID), ErrInvalidTransition)
	assert.ErrorIs(t, f.coord.Cancel(ctx, st.SessionID), ErrInvalidTransition)
}

func TestNotebookBusyWhileRunning(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	release := make(chan struct{})
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 1 {
			<-release
		}
	}

	id, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)

	_, err = f.coord.Start(ctx, f.nb.ID)
	assert.ErrorIs(t, err, ErrNotebookBusy)
	_, err = f.coord.RegenerateCell(ctx, f.nb.ID, domain.CellFitness, "")
	assert.ErrorIs(t, err, ErrNotebookBusy)

	st, err := f.coord.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, st.State)
	assert.Equal(t, "problem_analyser", st.Agent)

	close(release)
	st, err = f.coord.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
}

func TestSummariesKeepOneCurrent(t *testing.T) {
	cfg := testConfig()
	cfg.SummaryTriggerTokens = 20
	f := newFixture(t, nil, cfg)
	ctx := context.Background()

	st, err := f.coord.Run(ctx, f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
	assert.Contains(t, f.gw.Roles(), evctx.SummaryRole)

	total, current, err := f.store.CountSummaries(ctx, f.nb.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	assert.Equal(t, 1, current)

	// summarization never produces cells
	assert.Equal(t, pipelineTypes(7), f.activeTypes(t, f.nb.ID))
}

func TestSummarizationFailureIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.SummaryTriggerTokens = 20
	r := func(n int, req client.Request) (string, error) {
		if req.Role == evctx.SummaryRole {
			return "", clienttest.Fatal("summaries disabled")
		}
		return clienttest.DEAP(n, req)
	}
	f := newFixture(t, r, cfg)

	st, err := f.coord.Run(context.Background(), f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
}

func TestContextTruncationRecorded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxContextTokens = 250
	f := newFixture(t, nil, cfg)

	st, err := f.coord.Run(context.Background(), f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)

	run := f.runFor(t, "code_integration")
	assert.Equal(t, true, run.Metadata["truncated"])
	assert.LessOrEqual(t, run.Metadata["context_tokens"], float64(250))
	assert.NotEmpty(t, run.Metadata["dropped"])

	last := f.gw.Calls()[6].Prompt
	assert.Contains(t, last, "PROBLEM DESCRIPTION:")
	assert.Contains(t, last, "[selection]")
}

func TestStopsOnClose(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	started := make(chan struct{})
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 2 {
			close(started)
			<-f.coord.baseCtx.Done()
		}
	}
	id, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)
	<-started
	f.coord.Close()

	st, err := f.coord.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, st.State)
	assert.Equal(t, "coordinator shut down", st.Reason)
	assert.Equal(t, 2, f.gw.CallCount())
	assert.Equal(t, pipelineTypes(1), f.activeTypes(t, f.nb.ID))
}

func TestWaitHonoursContext(t *testing.T) {
	f := newFixture(t, nil, testConfig())

	release := make(chan struct{})
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 1 {
			<-release
		}
	}
	id, err := f.coord.Start(context.Background(), f.nb.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.coord.Wait(ctx, id)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
	_, err = f.coord.Wait(context.Background(), id)
	require.NoError(t, err)
}

func TestCancelAfterRestart(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	ids := make(chan string, 1)
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 2 {
			assert.NoError(t, f.coord.Pause(<-ids))
		}
	}
	id, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)
	ids <- id
	_, err = f.coord.Wait(ctx, id)
	require.NoError(t, err)
	f.coord.Close()

	restarted := New(f.store, clienttest.New(nil), evctx.NewHeuristicBudgeter(), testConfig())
	defer restarted.Close()

	require.NoError(t, restarted.Cancel(ctx, id))
	st, err := restarted.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, st.State)
	assert.Equal(t, 2, st.Stage)

	err = restarted.Cancel(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelDuringLastStageCompletes(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	ids := make(chan string, 1)
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 7 {
			assert.NoError(t, f.coord.Cancel(ctx, <-ids))
		}
	}

	id, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)
	ids <- id

	st, err := f.coord.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
	assert.Equal(t, 7, st.Stage)
	assert.Equal(t, pipelineTypes(7), f.activeTypes(t, f.nb.ID))

	status, err := f.store.GetNotebookStatus(ctx, f.nb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NotebookCompleted, status)

	cp, err := f.store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, cp.State)
}

func TestCancelFromAnotherCoordinator(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()

	other := New(f.store, clienttest.New(nil), evctx.NewHeuristicBudgeter(), testConfig())
	defer other.Close()

	ids := make(chan string, 1)
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 2 {
			assert.NoError(t, other.Cancel(ctx, <-ids))
		}
	}

	id, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)
	ids <- id

	st, err := f.coord.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, st.State)
	assert.Equal(t, 2, st.Stage)
	assert.Equal(t, 2, f.gw.CallCount())
	assert.Equal(t, pipelineTypes(2), f.activeTypes(t, f.nb.ID))

	cp, err := f.store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, cp.State)
	assert.True(t, cp.CancelRequested)

	assert.ErrorIs(t, other.Cancel(ctx, id), ErrInvalidTransition)
}

func runningCheckpoint(t *testing.T, f *fixture) string {
	t.Helper()
	cp := &store.Session{
		ID:         "orphan",
		NotebookID: f.nb.ID,
		State:      domain.StateRunning,
		Stage:      3,
		Retries:    map[string]int{},
	}
	require.NoError(t, f.store.SaveSession(context.Background(), cp))
	return cp.ID
}

func TestResumeLiveSessionRefused(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	ctx := context.Background()
	id := runningCheckpoint(t, f)

	assert.ErrorIs(t, f.coord.Resume(ctx, id), ErrSessionActive)
	assert.Equal(t, 0, f.gw.CallCount())

	// the notebook was never claimed
	next, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)
	st, err := f.coord.Wait(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
}

func TestCancelStaleRunningCheckpoint(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = time.Millisecond
	f := newFixture(t, nil, cfg)
	ctx := context.Background()
	id := runningCheckpoint(t, f)

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, f.coord.Cancel(ctx, id))
	st, err := f.coord.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, st.State)
	assert.Equal(t, 3, st.Stage)

	cp, err := f.store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, cp.State)
	assert.False(t, cp.CancelRequested)
	assert.Equal(t, 0, f.gw.CallCount())
}

func TestHeartbeatKeepsSessionLive(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	f := newFixture(t, nil, cfg)
	ctx := context.Background()

	other := New(f.store, clienttest.New(nil), evctx.NewHeuristicBudgeter(), cfg)
	defer other.Close()

	ids := make(chan string, 1)
	f.gw.BeforeReturn = func(call int, _ client.Request) {
		if call == 1 {
			// outlives three heartbeat intervals; the ticker keeps the checkpoint fresh
			time.Sleep(150 * time.Millisecond)
			assert.ErrorIs(t, other.Resume(ctx, <-ids), ErrSessionActive)
		}
	}

	id, err := f.coord.Start(ctx, f.nb.ID)
	require.NoError(t, err)
	ids <- id

	st, err := f.coord.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
}
