package flows

import (
	"testing"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openRegistryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Flow{}, &models.ChannelFlow{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(openRegistryTestDB(t))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return r
}

func TestNewRegistry_NilDB(t *testing.T) {
	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestCleanURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:7860", "http://localhost:7860"},
		{"<http://localhost:7860>", "http://localhost:7860"},
		{"<https://lf.example.com|lf.example.com>", "https://lf.example.com"},
		{"  <http://x>  ", "http://x"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := CleanURL(tt.in); got != tt.want {
			t.Errorf("CleanURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAdd_And_Get(t *testing.T) {
	r := newTestRegistry(t)

	created, err := r.Add("support", "<http://localhost:7860>", "flow-1", "sk-abc", "support bot", false)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !created {
		t.Fatal("expected created=true")
	}

	flow, err := r.Get("support")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if flow == nil {
		t.Fatal("expected flow")
	}
	if flow.URL != "http://localhost:7860" {
		t.Errorf("url not cleaned: %q", flow.URL)
	}
	if flow.Endpoint() != "http://localhost:7860/api/v1/run/flow-1" {
		t.Errorf("endpoint = %q", flow.Endpoint())
	}
}

func TestAdd_DuplicateName(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Add("support", "http://a", "f1", "", "", false); err != nil {
		t.Fatalf("first add: %v", err)
	}
	created, err := r.Add("support", "http://b", "f2", "", "", false)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if created {
		t.Fatal("duplicate name should not create")
	}

	// Original row untouched.
	flow, _ := r.Get("support")
	if flow.FlowID != "f1" {
		t.Errorf("flow id = %q, want f1", flow.FlowID)
	}
}

func TestDefault_Uniqueness(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Add("a", "http://a", "f1", "", "", true); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if _, err := r.Add("b", "http://b", "f2", "", "", true); err != nil {
		t.Fatalf("add b: %v", err)
	}

	def, err := r.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if def == nil || def.Name != "b" {
		t.Fatalf("default = %+v, want b", def)
	}

	// Exactly one default row.
	list, _ := r.List()
	defaults := 0
	for _, f := range list {
		if f.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Errorf("default count = %d, want 1", defaults)
	}

	ok, err := r.SetDefault("a")
	if err != nil || !ok {
		t.Fatalf("set default a: ok=%v err=%v", ok, err)
	}
	def, _ = r.Default()
	if def.Name != "a" {
		t.Errorf("default = %q, want a", def.Name)
	}

	ok, err = r.SetDefault("missing")
	if err != nil {
		t.Fatalf("set default missing: %v", err)
	}
	if ok {
		t.Error("set default on missing flow should report false")
	}
}

func TestUpdate(t *testing.T) {
	r := newTestRegistry(t)
	r.Add("a", "http://a", "f1", "k1", "old", false)

	url := "<http://b|b>"
	desc := "new"
	ok, err := r.Update("a", FlowUpdate{URL: &url, Description: &desc})
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}

	flow, _ := r.Get("a")
	if flow.URL != "http://b" {
		t.Errorf("url = %q", flow.URL)
	}
	if flow.Description != "new" {
		t.Errorf("description = %q", flow.Description)
	}
	if flow.FlowID != "f1" || flow.APIKey != "k1" {
		t.Error("untouched fields changed")
	}

	if ok, _ := r.Update("a", FlowUpdate{}); ok {
		t.Error("empty update should report false")
	}
	if ok, _ := r.Update("missing", FlowUpdate{Description: &desc}); ok {
		t.Error("update of missing flow should report false")
	}
}

func TestRemove_CascadesBindings(t *testing.T) {
	r := newTestRegistry(t)
	r.Add("a", "http://a", "f1", "", "", false)
	r.SetChannelFlow("C1", "a")
	r.SetChannelFlow("C2", "a")

	removed, err := r.Remove("a")
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}

	for _, ch := range []string{"C1", "C2"} {
		name, err := r.ChannelFlowName(ch)
		if err != nil {
			t.Fatalf("channel flow name: %v", err)
		}
		if name != "" {
			t.Errorf("binding for %s survived removal", ch)
		}
	}

	if removed, _ := r.Remove("a"); removed {
		t.Error("second remove should report false")
	}
}

func TestChannelBinding(t *testing.T) {
	r := newTestRegistry(t)
	r.Add("a", "http://a", "f1", "", "", false)
	r.Add("b", "http://b", "f2", "", "", false)

	ok, err := r.SetChannelFlow("C1", "missing")
	if err != nil {
		t.Fatalf("set channel flow: %v", err)
	}
	if ok {
		t.Error("binding to missing flow should report false")
	}

	if ok, _ := r.SetChannelFlow("C1", "a"); !ok {
		t.Fatal("bind C1 -> a")
	}
	// Rebinding replaces.
	if ok, _ := r.SetChannelFlow("C1", "b"); !ok {
		t.Fatal("rebind C1 -> b")
	}
	name, _ := r.ChannelFlowName("C1")
	if name != "b" {
		t.Errorf("binding = %q, want b", name)
	}

	removed, _ := r.RemoveChannelFlow("C1")
	if !removed {
		t.Error("expected binding removed")
	}
	if removed, _ := r.RemoveChannelFlow("C1"); removed {
		t.Error("second removal should report false")
	}
}

func TestResolveForChannel(t *testing.T) {
	r := newTestRegistry(t)

	// Nothing configured.
	flow, err := r.ResolveForChannel("C1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if flow != nil {
		t.Fatal("expected nil with no flows")
	}

	r.Add("def", "http://d", "fd", "", "", true)
	r.Add("special", "http://s", "fs", "", "", false)

	// Unbound channel falls to default.
	flow, _ = r.ResolveForChannel("C1")
	if flow == nil || flow.Name != "def" {
		t.Fatalf("resolve unbound = %+v, want def", flow)
	}

	// Bound channel gets its binding.
	r.SetChannelFlow("C1", "special")
	flow, _ = r.ResolveForChannel("C1")
	if flow == nil || flow.Name != "special" {
		t.Fatalf("resolve bound = %+v, want special", flow)
	}
}

func TestResolveForChannel_DanglingBindingFallsToDefault(t *testing.T) {
	r := newTestRegistry(t)
	r.Add("def", "http://d", "fd", "", "", true)
	r.Add("special", "http://s", "fs", "", "", false)
	r.SetChannelFlow("C1", "special")

	// Delete the bound flow out from under the binding via the registry's
	// own cascade-free path: simulate by removing then re-checking. Remove
	// cascades bindings, so instead delete the flow row directly.
	if err := openPathDelete(r, "special"); err != nil {
		t.Fatalf("delete flow row: %v", err)
	}

	flow, err := r.ResolveForChannel("C1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if flow == nil || flow.Name != "def" {
		t.Fatalf("resolve with dangling binding = %+v, want def", flow)
	}
}

// openPathDelete removes a flow row without touching channel bindings,
// leaving a dangling binding behind.
func openPathDelete(r *Registry, name string) error {
	return r.db.Where("name = ?", name).Delete(&models.Flow{}).Error
}
