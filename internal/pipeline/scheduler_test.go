package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/madrecon/internal/artifact"
	"github.com/nao1215/madrecon/internal/model"
	"github.com/nao1215/madrecon/internal/toolexec"
	"github.com/nao1215/madrecon/internal/tools"
)

// fakeInvoker is an Invoker that writes canned artifacts without spawning
// processes. It mimics the adapter: absent tools get a marker next to the
// intended artifact.
type fakeInvoker struct {
	// outputs maps an artifact file name, or else a tool ID, to stdout.
	outputs map[string]string

	// absent tools are reported as not installed.
	absent map[tools.ID]bool

	// delay is slept inside every invocation.
	delay time.Duration

	mu        sync.Mutex
	calls     []toolexec.Invocation
	running   atomic.Int32
	max       atomic.Int32
	completed atomic.Int32
	perTool   map[tools.ID]*int32
	toolMax   map[tools.ID]int32
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		outputs: make(map[string]string),
		absent:  make(map[tools.ID]bool),
		perTool: make(map[tools.ID]*int32),
		toolMax: make(map[tools.ID]int32),
	}
}

func (f *fakeInvoker) Invoke(_ context.Context, inv toolexec.Invocation) model.InvocationResult {
	n := f.running.Add(1)
	for {
		m := f.max.Load()
		if n <= m || f.max.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, inv)
	counter, ok := f.perTool[inv.Tool]
	if !ok {
		counter = new(int32)
		f.perTool[inv.Tool] = counter
	}
	*counter++
	if *counter > f.toolMax[inv.Tool] {
		f.toolMax[inv.Tool] = *counter
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		*counter--
		f.mu.Unlock()
		f.running.Add(-1)
		f.completed.Add(1)
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.absent[inv.Tool] {
		marker := filepath.Join(filepath.Dir(inv.Output), artifact.MissingName(string(inv.Tool)))
		_ = artifact.WriteFile(marker, []byte(string(inv.Tool)+" is not installed\n")) //nolint:errcheck // test helper
		return model.InvocationResult{Tool: inv.Tool, Outcome: model.OutcomeToolAbsent, Artifact: marker}
	}

	out, ok := f.outputs[filepath.Base(inv.Output)]
	if !ok {
		out = f.outputs[string(inv.Tool)]
	}
	_ = artifact.WriteFile(inv.Output, []byte(out)) //nolint:errcheck // test helper
	return model.InvocationResult{Tool: inv.Tool, Outcome: model.OutcomeSuccess, Artifact: inv.Output, Args: inv.Args}
}

// called returns the tools invoked, in call order.
func (f *fakeInvoker) called() []tools.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]tools.ID, len(f.calls))
	for i, c := range f.calls {
		ids[i] = c.Tool
	}
	return ids
}

// call returns the first invocation of tool.
func (f *fakeInvoker) call(tool tools.ID) (toolexec.Invocation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.Tool == tool {
			return c, true
		}
	}
	return toolexec.Invocation{}, false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func invocations(dir string, ids ...tools.ID) []toolexec.Invocation {
	invs := make([]toolexec.Invocation, len(ids))
	for i, id := range ids {
		invs[i] = toolexec.Invocation{
			Tool:   id,
			Output: filepath.Join(dir, artifact.Name(string(id), "example.com", string(rune('a'+i)))),
		}
	}
	return invs
}

// TestSchedulerRunStage tests ordering and the worker budget.
func TestSchedulerRunStage(t *testing.T) {
	t.Parallel()

	t.Run("results keep invocation order", func(t *testing.T) {
		t.Parallel()

		fake := newFakeInvoker()
		fake.absent[tools.Amass] = true
		s := NewScheduler(fake, WithSchedulerLogger(discardLogger()))

		ids := []tools.ID{tools.Subfinder, tools.Amass, tools.Assetfinder}
		results := s.RunStage(context.Background(), invocations(t.TempDir(), ids...), 3)

		if len(results) != len(ids) {
			t.Fatalf("got %d results, expected %d", len(results), len(ids))
		}
		for i, id := range ids {
			if results[i].Tool != id {
				t.Errorf("results[%d].Tool = %s, expected %s", i, results[i].Tool, id)
			}
		}
		if results[1].Outcome != model.OutcomeToolAbsent {
			t.Errorf("expected amass to be absent, got %v", results[1].Outcome)
		}
	})

	t.Run("never exceeds the budget", func(t *testing.T) {
		t.Parallel()

		fake := newFakeInvoker()
		fake.delay = 20 * time.Millisecond
		s := NewScheduler(fake, WithSchedulerLogger(discardLogger()))

		ids := make([]tools.ID, 10)
		for i := range ids {
			ids[i] = tools.Nuclei
		}
		results := s.RunStage(context.Background(), invocations(t.TempDir(), ids...), 3)

		if len(results) != 10 {
			t.Fatalf("got %d results, expected 10", len(results))
		}
		if got := fake.max.Load(); got > 3 {
			t.Errorf("max concurrency = %d, expected at most 3", got)
		}
		if got := fake.completed.Load(); got != 10 {
			t.Errorf("completed = %d, expected 10", got)
		}
	})

	t.Run("fewer invocations than budget run concurrently", func(t *testing.T) {
		t.Parallel()

		const n = 3
		var arrived sync.WaitGroup
		arrived.Add(n)
		all := make(chan struct{})
		go func() {
			arrived.Wait()
			close(all)
		}()

		var sawAll atomic.Int32
		gate := invokerFunc(func(_ context.Context, inv toolexec.Invocation) model.InvocationResult {
			arrived.Done()
			select {
			case <-all:
				sawAll.Add(1)
			case <-time.After(5 * time.Second):
			}
			return model.InvocationResult{Tool: inv.Tool}
		})

		s := NewScheduler(gate, WithSchedulerLogger(discardLogger()))
		s.RunStage(context.Background(), invocations(t.TempDir(), tools.Dnsx, tools.Naabu, tools.Nuclei), 8)

		if sawAll.Load() != n {
			t.Errorf("expected all %d invocations to overlap, %d did", n, sawAll.Load())
		}
	})

	t.Run("non-positive budget runs serially", func(t *testing.T) {
		t.Parallel()

		fake := newFakeInvoker()
		fake.delay = 5 * time.Millisecond
		s := NewScheduler(fake, WithSchedulerLogger(discardLogger()))

		results := s.RunStage(context.Background(), invocations(t.TempDir(), tools.Gau, tools.Gau, tools.Gau), 0)
		if len(results) != 3 {
			t.Fatalf("got %d results, expected 3", len(results))
		}
		if got := fake.max.Load(); got != 1 {
			t.Errorf("max concurrency = %d, expected 1", got)
		}
	})
}

// invokerFunc adapts a function to the Invoker interface.
type invokerFunc func(ctx context.Context, inv toolexec.Invocation) model.InvocationResult

func (f invokerFunc) Invoke(ctx context.Context, inv toolexec.Invocation) model.InvocationResult {
	return f(ctx, inv)
}

// TestSchedulerRun tests lanes, the barrier and the merge step.
func TestSchedulerRun(t *testing.T) {
	t.Parallel()

	t.Run("merge runs after every invocation settled", func(t *testing.T) {
		t.Parallel()

		fake := newFakeInvoker()
		fake.delay = 10 * time.Millisecond
		s := NewScheduler(fake, WithSchedulerLogger(discardLogger()))

		invs := invocations(t.TempDir(), tools.Subfinder, tools.Assetfinder, tools.Amass, tools.Subfinder)
		var runningAtMerge, completedAtMerge int32
		sr := &model.StageReport{Name: "enumerate"}

		err := s.Run(context.Background(), Stage{
			Name:  "enumerate",
			Lanes: []Lane{{Name: "enumerate", Budget: 2, Invocations: invs}},
			Merge: func(results []model.InvocationResult) ([]string, error) {
				runningAtMerge = fake.running.Load()
				completedAtMerge = fake.completed.Load()
				if len(results) != len(invs) {
					t.Errorf("merge saw %d results, expected %d", len(results), len(invs))
				}
				return []string{"merged.txt"}, nil
			},
		}, sr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if runningAtMerge != 0 {
			t.Errorf("%d invocations still running at merge", runningAtMerge)
		}
		if completedAtMerge != int32(len(invs)) {
			t.Errorf("%d invocations completed at merge, expected %d", completedAtMerge, len(invs))
		}
		if len(sr.Results) != len(invs) || len(sr.Merged) != 1 {
			t.Errorf("unexpected stage report: %+v", sr)
		}
	})

	t.Run("each lane keeps its own budget", func(t *testing.T) {
		t.Parallel()

		fake := newFakeInvoker()
		fake.delay = 15 * time.Millisecond
		s := NewScheduler(fake, WithSchedulerLogger(discardLogger()))

		dir := t.TempDir()
		archive := invocations(dir, tools.Gau, tools.Gau, tools.Gau, tools.Gau)
		crawl := invocations(filepath.Join(dir), tools.Katana, tools.Katana, tools.Katana)
		for i := range crawl {
			crawl[i].Output = filepath.Join(dir, artifact.Name("katana", "example.com", string(rune('k'+i))))
		}

		sr := &model.StageReport{}
		err := s.Run(context.Background(), Stage{
			Name: "archive_crawl",
			Lanes: []Lane{
				{Name: "archive", Budget: 2, Invocations: archive},
				{Name: "crawl", Budget: 1, Invocations: crawl},
			},
		}, sr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := fake.toolMax[tools.Gau]; got > 2 {
			t.Errorf("archive lane ran %d at once, budget 2", got)
		}
		if got := fake.toolMax[tools.Katana]; got != 1 {
			t.Errorf("crawl lane ran %d at once, budget 1", got)
		}
		if len(sr.Results) != 7 {
			t.Fatalf("got %d results, expected 7", len(sr.Results))
		}
		if sr.Results[0].Tool != tools.Gau || sr.Results[6].Tool != tools.Katana {
			t.Error("expected results in lane order")
		}
	})

	t.Run("merge error is returned", func(t *testing.T) {
		t.Parallel()

		s := NewScheduler(newFakeInvoker(), WithSchedulerLogger(discardLogger()))
		err := s.Run(context.Background(), Stage{
			Name:  "x",
			Lanes: []Lane{{Budget: 1, Invocations: invocations(t.TempDir(), tools.Gf)}},
			Merge: func(_ []model.InvocationResult) ([]string, error) {
				return nil, artifact.ErrSelfMerge
			},
		}, &model.StageReport{})
		if err == nil {
			t.Fatal("expected merge error")
		}
	})
}
