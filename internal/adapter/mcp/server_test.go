package mcp_test

import (
	"net/http/httptest"
	"testing"
	"time"

	sgmcp "github.com/opsgate/sapguard/internal/adapter/mcp"
	"github.com/opsgate/sapguard/internal/domain/capability"
	"github.com/opsgate/sapguard/internal/service"
)

func TestNewServer(t *testing.T) {
	s := sgmcp.NewServer("sapguard", "0.1.0", sgmcp.ServerDeps{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
	if s.Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}

func TestServerHandlerServes(t *testing.T) {
	gate := service.NewMemoryGate(time.Minute, nil)
	deps := sgmcp.ServerDeps{
		Plans:    service.NewPlanService(gate, nil, nil, nil, nil),
		Registry: capability.NewRegistry(),
	}
	s := sgmcp.NewServer("sapguard", "0.1.0", deps)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	// The handler is mounted and reachable; protocol-level behavior is
	// covered by the mcp-go library's own tests.
}
