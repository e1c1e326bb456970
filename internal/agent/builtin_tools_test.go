package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeSearcher struct {
	lastQuery string
	result    string
	err       error
}

func (s *fakeSearcher) Search(_ context.Context, query string, _ int) (string, error) {
	s.lastQuery = query
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

func swarmToolRegistry(t *testing.T) (*ToolRegistry, *fakeEnv, *fakeMemories, *fakeSearcher) {
	t.Helper()
	reg := NewToolRegistry()
	env := newFakeEnv()
	mem := &fakeMemories{}
	searcher := &fakeSearcher{result: "search hit"}
	RegisterSwarmTools(reg, "agent_1", env, mem, searcher)
	return reg, env, mem, searcher
}

func TestSwarmToolDefinitions(t *testing.T) {
	reg, _, _, _ := swarmToolRegistry(t)

	names := map[string]bool{}
	for _, d := range reg.Definitions() {
		names[d.Function.Name] = true
	}
	for _, want := range []string{
		"web_search", "add_memory", "search_memory",
		"reinforce_concept", "strongest_concepts",
		"add_fact", "query_facts",
		"add_task", "list_tasks", "complete_task",
	} {
		if !names[want] {
			t.Errorf("tool %q not registered", want)
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	reg, _, _, _ := swarmToolRegistry(t)

	_, err := reg.Execute(context.Background(), "teleport", "{}")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
}

func TestWebSearchTool(t *testing.T) {
	reg, _, _, searcher := swarmToolRegistry(t)

	out, err := reg.Execute(context.Background(), "web_search", `{"query":"fusion energy"}`)
	if err != nil {
		t.Fatalf("web_search: %v", err)
	}
	if out != "search hit" {
		t.Fatalf("out = %q", out)
	}
	if searcher.lastQuery != "fusion energy" {
		t.Fatalf("query = %q", searcher.lastQuery)
	}
}

func TestReinforceConceptToolDefaultWeight(t *testing.T) {
	reg, env, _, _ := swarmToolRegistry(t)

	if _, err := reg.Execute(context.Background(), "reinforce_concept", `{"concept":"batteries"}`); err != nil {
		t.Fatalf("reinforce_concept: %v", err)
	}
	if env.reinforced["batteries"] != 1.0 {
		t.Fatalf("weight = %v, want 1.0", env.reinforced["batteries"])
	}

	if _, err := reg.Execute(context.Background(), "reinforce_concept", `{"concept":"batteries","weight":2.5}`); err != nil {
		t.Fatalf("reinforce_concept: %v", err)
	}
	if env.reinforced["batteries"] != 3.5 {
		t.Fatalf("accumulated weight = %v, want 3.5", env.reinforced["batteries"])
	}
}

func TestAddFactToolStampsAgent(t *testing.T) {
	reg, env, _, _ := swarmToolRegistry(t)

	out, err := reg.Execute(context.Background(), "add_fact", `{"content":"water is wet"}`)
	if err != nil {
		t.Fatalf("add_fact: %v", err)
	}
	if !strings.Contains(out, "recorded") {
		t.Fatalf("out = %q", out)
	}
	if len(env.facts) != 1 || env.facts[0] != "water is wet" {
		t.Fatalf("facts = %v", env.facts)
	}
}

func TestMemoryTools(t *testing.T) {
	reg, _, mem, _ := swarmToolRegistry(t)
	ctx := context.Background()

	if _, err := reg.Execute(ctx, "add_memory", `{"content":"remember this"}`); err != nil {
		t.Fatalf("add_memory: %v", err)
	}
	if len(mem.appended) != 1 || mem.appended[0] != "remember this" {
		t.Fatalf("appended = %v", mem.appended)
	}

	out, err := reg.Execute(ctx, "search_memory", `{"query":"nothing"}`)
	if err != nil {
		t.Fatalf("search_memory: %v", err)
	}
	if !strings.Contains(out, "No memories found") {
		t.Fatalf("out = %q", out)
	}

	mem.results = []string{"old lesson"}
	out, err = reg.Execute(ctx, "search_memory", `{"query":"lesson"}`)
	if err != nil {
		t.Fatalf("search_memory: %v", err)
	}
	if out != "old lesson" {
		t.Fatalf("out = %q", out)
	}
}

func TestToolRejectsMalformedArguments(t *testing.T) {
	reg, _, _, _ := swarmToolRegistry(t)

	if _, err := reg.Execute(context.Background(), "add_fact", `{not json`); err == nil {
		t.Fatal("expected parse error")
	}
}
