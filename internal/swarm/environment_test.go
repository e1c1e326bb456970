package swarm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/nidhogg/swarmfield/internal/store"
)

// Package-level shared state, set by TestMain. All tests run against one
// postgres container; each test truncates the tables it touches.
var (
	testStore *store.Store
	startErr  error
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("swarmfield_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		startErr = fmt.Errorf("start postgres: %w", err)
		os.Exit(m.Run())
	}
	defer container.Terminate(ctx)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		startErr = fmt.Errorf("pg connection string: %w", err)
		os.Exit(m.Run())
	}

	st, err := store.New(ctx, dsn, zap.NewNop())
	if err != nil {
		startErr = fmt.Errorf("connect: %w", err)
		os.Exit(m.Run())
	}
	defer st.Close()
	if err := st.Migrate(ctx, "../../migrations"); err != nil {
		startErr = fmt.Errorf("migrate: %w", err)
		os.Exit(m.Run())
	}

	testStore = st
	os.Exit(m.Run())
}

func testEnv(t *testing.T) *Environment {
	t.Helper()
	if testStore == nil {
		t.Skipf("postgres container unavailable: %v", startErr)
	}
	ctx := context.Background()
	for _, table := range []string{"concepts", "facts", "tasks"} {
		if _, err := testStore.Pool().Exec(ctx, "TRUNCATE "+table+" RESTART IDENTITY"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return NewEnvironment(testStore.Pool(), zap.NewNop())
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestReinforceConceptAccumulates(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	if err := env.ReinforceConcept(ctx, "fusion", 1.0); err != nil {
		t.Fatalf("reinforce: %v", err)
	}
	if err := env.ReinforceConcept(ctx, "fusion", 0.5); err != nil {
		t.Fatalf("reinforce: %v", err)
	}

	concepts, err := env.StrongestConcepts(ctx, 5)
	if err != nil {
		t.Fatalf("strongest: %v", err)
	}
	if len(concepts) != 1 {
		t.Fatalf("got %d concepts, want 1", len(concepts))
	}
	if !almostEqual(concepts[0].Pheromone, 1.5) {
		t.Fatalf("pheromone = %v, want 1.5", concepts[0].Pheromone)
	}
}

func TestReinforceConceptRejectsBadInput(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	if err := env.ReinforceConcept(ctx, "", 1.0); err == nil {
		t.Error("empty name accepted")
	}
	if err := env.ReinforceConcept(ctx, "x", 0); err == nil {
		t.Error("zero weight accepted")
	}
	if err := env.ReinforceConcept(ctx, "x", -1); err == nil {
		t.Error("negative weight accepted")
	}
}

func TestStrongestConceptsOrderingAndLimit(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	for name, w := range map[string]float64{"a": 1.0, "b": 3.0, "c": 2.0} {
		if err := env.ReinforceConcept(ctx, name, w); err != nil {
			t.Fatalf("reinforce %s: %v", name, err)
		}
	}

	concepts, err := env.StrongestConcepts(ctx, 2)
	if err != nil {
		t.Fatalf("strongest: %v", err)
	}
	if len(concepts) != 2 {
		t.Fatalf("got %d concepts, want 2", len(concepts))
	}
	if concepts[0].Name != "b" || concepts[1].Name != "c" {
		t.Fatalf("order = %s, %s; want b, c", concepts[0].Name, concepts[1].Name)
	}
}

func TestEvaporateDecays(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if err := env.ReinforceConcept(ctx, name, 1.0); err != nil {
			t.Fatalf("reinforce: %v", err)
		}
	}

	pruned, err := env.Evaporate(ctx, 0.1)
	if err != nil {
		t.Fatalf("evaporate: %v", err)
	}
	if pruned != 0 {
		t.Fatalf("pruned = %d, want 0", pruned)
	}

	concepts, err := env.StrongestConcepts(ctx, 5)
	if err != nil {
		t.Fatalf("strongest: %v", err)
	}
	total := 0.0
	for _, c := range concepts {
		total += c.Pheromone
	}
	if !almostEqual(total, 2.7) {
		t.Fatalf("total after decay = %v, want 2.7", total)
	}
}

func TestEvaporatePrunesFadedConcepts(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	if err := env.ReinforceConcept(ctx, "strong", 5.0); err != nil {
		t.Fatalf("reinforce: %v", err)
	}
	if err := env.ReinforceConcept(ctx, "faint", 0.011); err != nil {
		t.Fatalf("reinforce: %v", err)
	}

	// 0.011 * 0.9 = 0.0099, below the prune threshold.
	pruned, err := env.Evaporate(ctx, 0.1)
	if err != nil {
		t.Fatalf("evaporate: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}

	concepts, err := env.StrongestConcepts(ctx, 5)
	if err != nil {
		t.Fatalf("strongest: %v", err)
	}
	if len(concepts) != 1 || concepts[0].Name != "strong" {
		t.Fatalf("surviving concepts = %+v", concepts)
	}
}

func TestEvaporateRejectsRate(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	for _, rate := range []float64{0, 1, -0.5, 1.5} {
		if _, err := env.Evaporate(ctx, rate); err == nil {
			t.Errorf("rate %v accepted", rate)
		}
	}
}

func TestFactLedger(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	id, err := env.AddFact(ctx, "perovskite cells degrade under humidity", "agent_1")
	if err != nil {
		t.Fatalf("add fact: %v", err)
	}
	if id == 0 {
		t.Fatal("fact id = 0")
	}
	if _, err := env.AddFact(ctx, "sodium-ion batteries avoid lithium supply risk", "agent_2"); err != nil {
		t.Fatalf("add fact: %v", err)
	}

	facts, err := env.Facts(ctx, "batteries", 5)
	if err != nil {
		t.Fatalf("query facts: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("got %d facts, want 1", len(facts))
	}
	if facts[0].SourceAgentID != "agent_2" {
		t.Fatalf("source = %q, want agent_2", facts[0].SourceAgentID)
	}

	all, err := env.Facts(ctx, "", 5)
	if err != nil {
		t.Fatalf("query facts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d facts, want 2", len(all))
	}
	// Newest first.
	if all[0].Content != "sodium-ion batteries avoid lithium supply risk" {
		t.Fatalf("first fact = %q", all[0].Content)
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	id, err := env.AddTask(ctx, "survey fusion startups", "system_initializer")
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	tasks, err := env.AvailableTasks(ctx, 5)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != id {
		t.Fatalf("available tasks = %+v", tasks)
	}
	if tasks[0].Status != TaskPending {
		t.Fatalf("status = %s, want %s", tasks[0].Status, TaskPending)
	}

	if err := env.ClaimTask(ctx, id, "agent_1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// A claimed task is no longer offered.
	tasks, err = env.AvailableTasks(ctx, 5)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("claimed task still offered: %+v", tasks)
	}

	if err := env.CompleteTask(ctx, id, "agent_1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestClaimTaskIsExclusive(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	id, err := env.AddTask(ctx, "contested task", "system_initializer")
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	if err := env.ClaimTask(ctx, id, "agent_1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := env.ClaimTask(ctx, id, "agent_2"); !errors.Is(err, ErrTaskUnavailable) {
		t.Fatalf("second claim err = %v, want ErrTaskUnavailable", err)
	}
}

func TestCompleteTaskRequiresOwnership(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	id, err := env.AddTask(ctx, "owned task", "system_initializer")
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if err := env.ClaimTask(ctx, id, "agent_1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := env.CompleteTask(ctx, id, "agent_2"); !errors.Is(err, ErrTaskNotOwned) {
		t.Fatalf("err = %v, want ErrTaskNotOwned", err)
	}
	// The rightful owner still can.
	if err := env.CompleteTask(ctx, id, "agent_1"); err != nil {
		t.Fatalf("owner complete: %v", err)
	}
	// Completing twice drops the second attempt.
	if err := env.CompleteTask(ctx, id, "agent_1"); !errors.Is(err, ErrTaskNotOwned) {
		t.Fatalf("double complete err = %v, want ErrTaskNotOwned", err)
	}
}

func TestCompletedTaskInvisibleToOtherAgents(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	t1, err := env.AddTask(ctx, "research X", "system_initializer")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	t2, err := env.AddTask(ctx, "research Y", "system_initializer")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := env.ClaimTask(ctx, t1, "agent_1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := env.CompleteTask(ctx, t1, "agent_1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	tasks, err := env.AvailableTasks(ctx, 5)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != t2 {
		t.Fatalf("available tasks = %+v, want only task %d", tasks, t2)
	}
}

func TestEvaporateAfterRepeatedReinforcement(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := env.ReinforceConcept(ctx, "cats", 1.0); err != nil {
			t.Fatalf("reinforce: %v", err)
		}
	}
	if _, err := env.Evaporate(ctx, 0.1); err != nil {
		t.Fatalf("evaporate: %v", err)
	}

	concepts, err := env.StrongestConcepts(ctx, 1)
	if err != nil {
		t.Fatalf("strongest: %v", err)
	}
	if len(concepts) != 1 || !almostEqual(concepts[0].Pheromone, 2.7) {
		t.Fatalf("concepts = %+v, want cats at 2.7", concepts)
	}
}

func TestAvailableTasksOldestFirst(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	first, err := env.AddTask(ctx, "first", "system_initializer")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := env.AddTask(ctx, "second", "system_initializer"); err != nil {
		t.Fatalf("add: %v", err)
	}

	tasks, err := env.AvailableTasks(ctx, 1)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != first {
		t.Fatalf("head of queue = %+v, want task %d", tasks, first)
	}
}
