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
	"github.com/opsgate/sapguard/internal/port/runner"
)

// defaultChecks are the read-only probes run when the caller names none.
var defaultChecks = []string{"system_status", "cluster_status", "replication_status"}

// Diagnostics runs read-only health probes against a workspace through the
// execution backend. It never runs anything destructive.
type Diagnostics struct {
	runner runner.JobRunner
	log    *slog.Logger
}

// NewDiagnostics creates the diagnostics capability.
func NewDiagnostics(r runner.JobRunner, log *slog.Logger) *Diagnostics {
	if log == nil {
		log = slog.Default()
	}
	return &Diagnostics{runner: r, log: log}
}

func (d *Diagnostics) Name() string { return "diagnostics" }

func (d *Diagnostics) Description() string {
	return "Runs read-only health checks against a SAP workspace: system status, " +
		"cluster state, and HANA replication. Input: workspace_id and an optional " +
		"list of checks."
}

// Invoke runs the requested checks one at a time. A failing check is reported
// in the summary and never stops the remaining checks.
func (d *Diagnostics) Invoke(ctx context.Context, msgs []conversation.Message, rc capability.RunContext) (*capability.Result, error) {
	obj := lastInput(msgs)
	workspaceID := inputString(obj, "workspace_id")
	if workspaceID == "" {
		return nil, fmt.Errorf("diagnostics: workspace_id is required")
	}

	checks := defaultChecks
	if raw, ok := obj["checks"].([]any); ok && len(raw) > 0 {
		checks = checks[:0:0]
		for _, c := range raw {
			if s, ok := c.(string); ok && s != "" {
				checks = append(checks, s)
			}
		}
	}

	tr := trace.New(d.Name())
	env := testplan.DeriveEnvironment(workspaceID, "")

	var sb strings.Builder
	fmt.Fprintf(&sb, "Diagnostics for %s (env %s):\n", workspaceID, env)

	reports := make(map[string]any, len(checks))
	failures := 0

	for _, check := range checks {
		step := tr.Record(trace.StepInfo{
			Phase:       trace.PhaseAnalysis,
			Kind:        trace.KindToolCall,
			Agent:       d.Name(),
			Description: "check " + check,
			Input:       map[string]any{"workspace_id": workspaceID, "check": check},
		})

		report, err := d.runner.RunJob(ctx, check, workspaceID, nil)
		if err != nil {
			failures++
			step.Error = err.Error()
			reports[check] = map[string]any{"status": "failed", "error": err.Error()}
			fmt.Fprintf(&sb, "- %s: FAILED (%v)\n", check, err)
			d.log.Warn("diagnostic check failed", "check", check, "workspace_id", workspaceID, "error", err)
			continue
		}

		step.Output = trace.Sanitize(report, trace.DefaultMaxItems)
		reports[check] = report
		if report.Error != "" {
			failures++
			fmt.Fprintf(&sb, "- %s: %s (%s)\n", check, report.Status, report.Error)
		} else {
			fmt.Fprintf(&sb, "- %s: %s\n", check, report.Status)
		}
	}

	if failures > 0 {
		fmt.Fprintf(&sb, "%d of %d checks reported problems.", failures, len(checks))
	} else {
		fmt.Fprintf(&sb, "All %d checks passed.", len(checks))
	}

	return &capability.Result{
		Content:    sb.String(),
		Trace:      tr,
		Structured: reports,
	}, nil
}
