package agents_test

import (
	"context"

	"github.com/opsgate/sapguard/internal/domain/conversation"
	"github.com/opsgate/sapguard/internal/port/runner"
)

// fakeRunner returns canned reports per job id.
type fakeRunner struct {
	reports map[string]*runner.Report
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) RunJob(_ context.Context, jobID, _ string, _ map[string]any) (*runner.Report, error) {
	f.calls = append(f.calls, jobID)
	if err, ok := f.errs[jobID]; ok {
		return nil, err
	}
	if r, ok := f.reports[jobID]; ok {
		return r, nil
	}
	return &runner.Report{Status: "success", Hosts: []string{"app01"}}, nil
}

func userMsg(content string) []conversation.Message {
	return []conversation.Message{{Role: "user", Content: content}}
}
