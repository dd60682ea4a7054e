package langflow

import (
	"testing"

	"github.com/zulandar/switchboard/internal/models"
)

func TestManager_CachesPerFlowName(t *testing.T) {
	m := NewManager(ManagerOpts{})
	flow := &models.Flow{Name: "a", URL: "http://a", FlowID: "f1"}

	first, err := m.Get(flow)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := m.Get(flow)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if first != second {
		t.Error("expected cached client to be reused")
	}

	other, err := m.Get(&models.Flow{Name: "b", URL: "http://b", FlowID: "f2"})
	if err != nil {
		t.Fatalf("get other: %v", err)
	}
	if other == first {
		t.Error("distinct flows must get distinct clients")
	}
}

func TestManager_Invalidate(t *testing.T) {
	m := NewManager(ManagerOpts{})
	flow := &models.Flow{Name: "a", URL: "http://a", FlowID: "f1"}

	first, _ := m.Get(flow)
	m.Invalidate("a")
	second, _ := m.Get(flow)
	if first == second {
		t.Error("expected a fresh client after invalidation")
	}

	// Invalidating an unknown flow is a no-op.
	m.Invalidate("missing")
}

func TestManager_NilFlow(t *testing.T) {
	m := NewManager(ManagerOpts{})
	if _, err := m.Get(nil); err == nil {
		t.Fatal("expected error for nil flow")
	}
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager(ManagerOpts{})
	flow := &models.Flow{Name: "a", URL: "http://a", FlowID: "f1"}

	first, _ := m.Get(flow)
	m.CloseAll()
	second, _ := m.Get(flow)
	if first == second {
		t.Error("expected a fresh client after CloseAll")
	}
}
