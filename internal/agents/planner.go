package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opsgate/sapguard/internal/domain/capability"
	"github.com/opsgate/sapguard/internal/domain/conversation"
	"github.com/opsgate/sapguard/internal/domain/testplan"
	"github.com/opsgate/sapguard/internal/domain/trace"
)

// Planner builds an HA test plan for a workspace by matching the catalog
// against the workspace's advertised capabilities.
type Planner struct {
	loader *CatalogLoader
	log    *slog.Logger
}

// NewPlanner creates the test planning capability.
func NewPlanner(loader *CatalogLoader, log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}
	return &Planner{loader: loader, log: log}
}

func (p *Planner) Name() string { return "test_planner" }

func (p *Planner) Description() string {
	return "Builds an HA test plan for a SAP workspace from the test catalog, " +
		"split into safe and destructive tests. Input: workspace_id, sap_sid, and " +
		"a capabilities map (e.g. hana, cluster, fencing)."
}

// Invoke matches every catalog entry against the workspace capabilities. A
// test applies when all of its prerequisites are enabled; the reason field
// records why it was included.
func (p *Planner) Invoke(ctx context.Context, msgs []conversation.Message, rc capability.RunContext) (*capability.Result, error) {
	obj := lastInput(msgs)
	workspaceID := inputString(obj, "workspace_id")
	if workspaceID == "" {
		return nil, fmt.Errorf("test_planner: workspace_id is required")
	}

	caps := make(map[string]bool)
	if raw, ok := obj["capabilities"].(map[string]any); ok {
		for k, v := range raw {
			if b, ok := v.(bool); ok {
				caps[k] = b
			}
		}
	}

	catalog, err := p.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("test_planner: %w", err)
	}

	tp := &testplan.TestPlan{
		WorkspaceID:  workspaceID,
		SAPSID:       inputString(obj, "sap_sid"),
		Capabilities: caps,
	}

	for _, entry := range catalog {
		reason, ok := applicability(entry, caps)
		if !ok {
			continue
		}
		entry.Reason = reason
		if entry.Destructive {
			tp.DestructiveTests = append(tp.DestructiveTests, entry)
		} else {
			tp.SafeTests = append(tp.SafeTests, entry)
		}
	}
	tp.Recompute()

	tr := trace.New(p.Name())
	tr.Record(trace.StepInfo{
		Phase:       trace.PhasePlanning,
		Kind:        trace.KindDecision,
		Agent:       p.Name(),
		Description: "test plan built",
		Input:       map[string]any{"workspace_id": workspaceID, "capabilities": caps},
		Output: map[string]any{
			"safe_tests":        len(tp.SafeTests),
			"destructive_tests": len(tp.DestructiveTests),
			"catalog_size":      len(catalog),
		},
	})

	env := testplan.DeriveEnvironment(workspaceID, "")
	var sb strings.Builder
	fmt.Fprintf(&sb, "Test plan for %s (env %s): %d tests, %d safe and %d destructive.\n",
		workspaceID, env, tp.TotalTests, len(tp.SafeTests), len(tp.DestructiveTests))
	for _, t := range tp.SafeTests {
		fmt.Fprintf(&sb, "- [safe] %s: %s (%s)\n", t.TestID, t.TestName, t.Reason)
	}
	for _, t := range tp.DestructiveTests {
		fmt.Fprintf(&sb, "- [destructive] %s: %s (%s)\n", t.TestID, t.TestName, t.Reason)
	}
	if env == "PRD" && len(tp.DestructiveTests) > 0 {
		sb.WriteString("Destructive tests cannot run in this environment.\n")
	}

	return &capability.Result{
		Content:    sb.String(),
		Trace:      tr,
		Structured: tp,
	}, nil
}

// applicability decides whether a catalog entry applies to a workspace with
// the given capability flags.
func applicability(t testplan.PlannedTest, caps map[string]bool) (string, bool) {
	if len(t.Requires) == 0 {
		return "applies to every workspace", true
	}
	for _, req := range t.Requires {
		if !caps[req] {
			return "", false
		}
	}
	return "workspace provides " + strings.Join(t.Requires, ", "), true
}
