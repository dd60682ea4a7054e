package bridge

import (
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/flows"
	"github.com/zulandar/switchboard/internal/langflow"
)

func newTestHandler(t *testing.T, admins []string) (*CommandHandler, *flows.Registry) {
	t.Helper()
	db := openBridgeTestDB(t)

	registry, err := flows.NewRegistry(db)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	h, err := NewCommandHandler(CommandHandlerOpts{
		Config:   &config.Config{Admins: admins},
		Registry: registry,
		Clients:  langflow.NewManager(langflow.ManagerOpts{}),
	})
	if err != nil {
		t.Fatalf("new command handler: %v", err)
	}
	return h, registry
}

func TestNewCommandHandler_MissingDeps(t *testing.T) {
	if _, err := NewCommandHandler(CommandHandlerOpts{}); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestExecute_Help(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	for _, input := range []string{"help", "HELP", ""} {
		reply := h.Execute("U1", "C1", input)
		if !strings.Contains(reply, "flows add") {
			t.Errorf("Execute(%q) should show help, got %q", input, reply)
		}
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	reply := h.Execute("U1", "C1", "frobnicate")
	if !strings.Contains(reply, "Unknown command") {
		t.Errorf("reply = %q", reply)
	}
}

func TestExecute_FlowsLifecycle(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	reply := h.Execute("U1", "C1", "flows")
	if !strings.Contains(reply, "No flows configured") {
		t.Errorf("empty listing = %q", reply)
	}

	reply = h.Execute("U1", "C1", `flows add support <http://localhost:7860> flow-1 sk-secret-key "Support bot"`)
	if !strings.Contains(reply, "added") {
		t.Fatalf("add = %q", reply)
	}

	// Duplicate name rejected.
	reply = h.Execute("U1", "C1", "flows add support http://x flow-2 sk-other")
	if !strings.Contains(reply, "already exists") {
		t.Errorf("duplicate add = %q", reply)
	}

	reply = h.Execute("U1", "C1", "flows")
	if !strings.Contains(reply, "support") {
		t.Errorf("listing = %q", reply)
	}

	// Info masks all but the last four key characters.
	reply = h.Execute("U1", "C1", "flows info support")
	if strings.Contains(reply, "sk-secret-key") {
		t.Errorf("info leaked the api key: %q", reply)
	}
	if !strings.Contains(reply, "****-key") {
		t.Errorf("info should show last four characters: %q", reply)
	}
	if !strings.Contains(reply, "Support bot") {
		t.Errorf("info should show quoted description: %q", reply)
	}

	reply = h.Execute("U1", "C1", "flows default support")
	if !strings.Contains(reply, "default") {
		t.Errorf("set default = %q", reply)
	}

	reply = h.Execute("U1", "C1", "flows remove support")
	if !strings.Contains(reply, "removed") {
		t.Errorf("remove = %q", reply)
	}
	reply = h.Execute("U1", "C1", "flows remove support")
	if !strings.Contains(reply, "No flow named") {
		t.Errorf("second remove = %q", reply)
	}
}

func TestExecute_FlowsUsageErrors(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	for _, input := range []string{
		"flows add onlyname",
		"flows add name http://x",
		"flows add name http://x f1",
		"flows remove",
		"flows default",
		"flows info",
	} {
		reply := h.Execute("U1", "C1", input)
		if !strings.Contains(reply, "Usage:") {
			t.Errorf("Execute(%q) = %q, want usage hint", input, reply)
		}
	}
}

func TestExecute_AdminGating(t *testing.T) {
	h, _ := newTestHandler(t, []string{"UADMIN"})

	mutations := []string{
		"flows add x http://x f1",
		"flows remove x",
		"flows default x",
		"channel set x",
		"channel reset",
	}
	for _, input := range mutations {
		reply := h.Execute("UPEON", "C1", input)
		if !strings.Contains(reply, "only admins") {
			t.Errorf("Execute(%q) by non-admin = %q", input, reply)
		}
	}

	// Reads stay open to everyone.
	if reply := h.Execute("UPEON", "C1", "flows"); strings.Contains(reply, "only admins") {
		t.Errorf("flows listing gated: %q", reply)
	}
	if reply := h.Execute("UPEON", "C1", "channel"); strings.Contains(reply, "only admins") {
		t.Errorf("channel info gated: %q", reply)
	}

	// The admin passes.
	if reply := h.Execute("UADMIN", "C1", "flows add x http://x f1 sk-x"); !strings.Contains(reply, "added") {
		t.Errorf("admin add = %q", reply)
	}
}

func TestExecute_FlowsAddRequiresAPIKey(t *testing.T) {
	h, registry := newTestHandler(t, nil)

	reply := h.Execute("U1", "C1", "flows add a http://x f1")
	if !strings.Contains(reply, "Usage:") {
		t.Fatalf("three-arg add = %q, want usage hint", reply)
	}

	// Nothing may be written for a malformed add.
	f, err := registry.Get("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if f != nil {
		t.Errorf("flow persisted without an api key: %+v", f)
	}
}

func TestExecute_ChannelRouting(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	h.Execute("U1", "C1", "flows add def http://d f1 sk-d")
	h.Execute("U1", "C1", "flows default def")
	h.Execute("U1", "C1", "flows add special http://s f2 sk-s")

	// Bare "channel" means info.
	reply := h.Execute("U1", "C1", "channel")
	if !strings.Contains(reply, "default flow `def`") {
		t.Errorf("channel info unbound = %q", reply)
	}

	reply = h.Execute("U1", "C1", "channel set special")
	if !strings.Contains(reply, "special") {
		t.Errorf("channel set = %q", reply)
	}

	reply = h.Execute("U1", "C1", "channel info")
	if !strings.Contains(reply, "routed to flow `special`") {
		t.Errorf("channel info bound = %q", reply)
	}

	reply = h.Execute("U1", "C1", "channel set missing")
	if !strings.Contains(reply, "No flow named") {
		t.Errorf("channel set missing = %q", reply)
	}

	// Reset reports what the channel falls back to.
	reply = h.Execute("U1", "C1", "channel reset")
	if !strings.Contains(reply, "def") {
		t.Errorf("channel reset = %q", reply)
	}
	reply = h.Execute("U1", "C1", "channel reset")
	if !strings.Contains(reply, "no explicit routing") {
		t.Errorf("second reset = %q", reply)
	}
}

func TestExecute_RemoveClearsBindings(t *testing.T) {
	h, registry := newTestHandler(t, nil)
	h.Execute("U1", "C1", "flows add a http://a f1 sk-a")
	h.Execute("U1", "C1", "channel set a")

	h.Execute("U1", "C1", "flows remove a")

	name, err := registry.ChannelFlowName("C1")
	if err != nil {
		t.Fatalf("channel flow name: %v", err)
	}
	if name != "" {
		t.Errorf("binding survived flow removal: %q", name)
	}
}

func TestTokenize(t *testing.T) {
	args := tokenize(`flows add x http://x f1 key "two words"`)
	if len(args) != 7 || args[6] != "two words" {
		t.Errorf("tokenize = %v", args)
	}

	// Unbalanced quotes fall back to whitespace splitting.
	args = tokenize(`flows add "broken`)
	if len(args) != 3 || args[2] != `"broken` {
		t.Errorf("fallback tokenize = %v", args)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "(none)"},
		{"abc", "****"},
		{"abcd", "****"},
		{"sk-1234567890", "****7890"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
