package toolclient

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
)

// These tests drive the Supervisor against real, trivial subprocesses
// (cat, sh) rather than a mocked exec.Cmd, since the protocol under
// test is the pipe framing and id-based demultiplexing itself.

func requireCommand(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func TestSupervisor_StartProbesReadiness(t *testing.T) {
	catPath := requireCommand(t, "cat")
	sup := NewSupervisor(catPath, nil, 3)
	defer sup.Stop() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sup.Start(ctx))
	assert.False(t, sup.Unavailable())
}

func TestSupervisor_CallEchoesThroughChild(t *testing.T) {
	catPath := requireCommand(t, "cat")
	sup := NewSupervisor(catPath, nil, 3)
	defer sup.Stop() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	result, err := sup.Call(ctx, "extract_pdf_text", map[string]any{"pdf_path": "/tmp/a.pdf"})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestSupervisor_StartFailsWhenChildNeverResponds(t *testing.T) {
	shPath := requireCommand(t, "sh")
	sup := NewSupervisor(shPath, []string{"-c", "sleep 30"}, 3)
	defer sup.Stop() //nolint:errcheck

	startCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := sup.Start(startCtx)
	require.Error(t, err)
}

func TestSupervisor_UnavailableAfterRestartBudgetExhausted(t *testing.T) {
	shPath := requireCommand(t, "sh")
	sup := NewSupervisor(shPath, []string{"-c", "exit 0"}, 1)

	require.NoError(t, sup.spawn(context.Background()))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sup.Unavailable() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.True(t, sup.Unavailable())

	_, err := sup.Call(context.Background(), "extract_pdf_text", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, domain.KindBackendUnavailable, domain.KindOf(err))
}

func TestSupervisor_StopIsIdempotentWithoutStart(t *testing.T) {
	sup := NewSupervisor("/bin/true", nil, 1)
	assert.NoError(t, sup.Stop())
}
