package dag

import (
	"reflect"
	"testing"

	"github.com/buildguard/buildguard-cli/internal/api"
)

func testCatalog() *Catalog {
	return NewCatalog([]api.Feature{
		{ID: "f1", Name: "build_duration", Active: true, Node: "timing"},
		{ID: "f2", Name: "flaky_rate", Active: true, Node: "history"},
		{ID: "f3", Name: "test_count", Active: true, Node: "timing"},
		{ID: "f4", Name: "churn", Active: false, Node: "diff"},
	})
}

func testDAG() *api.FeatureDAG {
	return &api.FeatureDAG{
		Nodes: []api.DAGNode{
			{ID: "ingest", Label: "Ingest", Features: nil},
			{ID: "timing", Label: "Timing", Features: []string{"build_duration", "test_count"}},
			{ID: "history", Label: "History", Features: []string{"flaky_rate"}},
			{ID: "diff", Label: "Diff", Features: []string{"churn"}},
		},
		ExecutionLevels: []api.ExecutionLevel{
			{Level: 0, Nodes: []string{"ingest"}},
			{Level: 1, Nodes: []string{"timing", "diff"}},
			{Level: 2, Nodes: []string{"history"}},
		},
		TotalFeatures: 4,
	}
}

func TestSelection_ToggleIdempotent(t *testing.T) {
	s := NewSelection("f1", "f2")

	s.Toggle("f3")
	s.Toggle("f3")

	want := []string{"f1", "f2"}
	if got := s.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}

	// Toggling an existing member twice restores it too.
	s.Toggle("f1")
	s.Toggle("f1")
	if got := s.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() after double toggle = %v, want %v", got, want)
	}
}

func TestSelection_OrderIndependent(t *testing.T) {
	a := NewSelection("f1", "f2", "f3")
	b := NewSelection("f3", "f1", "f2")

	if !reflect.DeepEqual(a.IDs(), b.IDs()) {
		t.Errorf("insertion order leaked: %v vs %v", a.IDs(), b.IDs())
	}
}

func TestSelection_ToggleNameUnknownIsNoop(t *testing.T) {
	c := testCatalog()
	s := NewSelection("f1")

	s.ToggleName(c, "no_such_feature")

	if got := s.IDs(); !reflect.DeepEqual(got, []string{"f1"}) {
		t.Errorf("unknown name mutated selection: %v", got)
	}

	// Nil catalog (not loaded yet) must not panic either.
	s.ToggleName(nil, "build_duration")
	if s.Len() != 1 {
		t.Errorf("nil catalog mutated selection")
	}
}

func TestSelection_ToggleNameTranslatesToID(t *testing.T) {
	c := testCatalog()
	s := NewSelection()

	s.ToggleName(c, "flaky_rate")

	if !s.Has("f2") {
		t.Errorf("expected f2 selected, got %v", s.IDs())
	}
}

func TestSelection_ApplyTemplateIdempotent(t *testing.T) {
	tmpl := api.FeatureTemplate{ID: "t1", Name: "defaults", FeatureIDs: []string{"f1", "f2"}}

	s := NewSelection("f3")
	s.ApplyTemplate(tmpl)
	once := s.IDs()

	s.ApplyTemplate(tmpl)
	twice := s.IDs()

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("template application not idempotent: %v vs %v", once, twice)
	}
	want := []string{"f1", "f2", "f3"}
	if !reflect.DeepEqual(twice, want) {
		t.Errorf("template union = %v, want %v", twice, want)
	}
}

func TestCatalog_NameFallsBackToRawID(t *testing.T) {
	c := testCatalog()

	if got := c.Name("f_unknown"); got != "f_unknown" {
		t.Errorf("Name() = %q, want raw id", got)
	}

	var nilCatalog *Catalog
	if got := nilCatalog.Name("f1"); got != "f1" {
		t.Errorf("nil catalog Name() = %q, want raw id", got)
	}
}

func TestActiveNodes(t *testing.T) {
	c := testCatalog()
	d := testDAG()

	tests := []struct {
		name     string
		selected []string
		want     []string
	}{
		{
			name:     "empty selection",
			selected: nil,
			want:     nil,
		},
		{
			name:     "single feature activates its node",
			selected: []string{"f2"},
			want:     []string{"history"},
		},
		{
			name:     "features sharing a node activate it once",
			selected: []string{"f1", "f3"},
			want:     []string{"timing"},
		},
		{
			name:     "unresolvable id activates nothing",
			selected: []string{"f_ghost"},
			want:     nil,
		},
		{
			name:     "full selection",
			selected: []string{"f1", "f2", "f4"},
			want:     []string{"diff", "history", "timing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active := ActiveNodes(d, c, NewSelection(tt.selected...))
			if len(active) != len(tt.want) {
				t.Fatalf("got %d active nodes %v, want %v", len(active), active, tt.want)
			}
			for _, id := range tt.want {
				if _, ok := active[id]; !ok {
					t.Errorf("missing active node %s", id)
				}
			}
		})
	}
}

func TestActiveNodes_NilDAG(t *testing.T) {
	c := testCatalog()
	active := ActiveNodes(nil, c, NewSelection("f1"))
	if len(active) != 0 {
		t.Errorf("expected empty set for unloaded DAG, got %v", active)
	}
}

func TestExecutionPlan_FiltersAndPreservesOrder(t *testing.T) {
	d := testDAG()
	active := map[string]struct{}{"timing": {}, "history": {}}

	plan := ExecutionPlan(d, active)

	if len(plan) != 2 {
		t.Fatalf("got %d levels, want 2: %v", len(plan), plan)
	}
	if plan[0].Level != 1 || plan[1].Level != 2 {
		t.Errorf("levels out of order: %v", plan)
	}
	if !reflect.DeepEqual(plan[0].Nodes, []string{"timing"}) {
		t.Errorf("level 1 nodes = %v, want [timing]", plan[0].Nodes)
	}
	if !reflect.DeepEqual(plan[1].Nodes, []string{"history"}) {
		t.Errorf("level 2 nodes = %v, want [history]", plan[1].Nodes)
	}
}

func TestExecutionPlan_EmptyActive(t *testing.T) {
	if plan := ExecutionPlan(testDAG(), nil); plan != nil {
		t.Errorf("expected nil plan, got %v", plan)
	}
}
