//go:build unix

package platform

import (
	"os/exec"
	"testing"
	"time"
)

func TestTerminateTree_KillsGroup(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "sleep 30 & sleep 30; wait")
	SetProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if err := TerminateTree(cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected killed process to report an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process group was not terminated")
	}
}

func TestTerminateTree_NotStarted(t *testing.T) {
	if err := TerminateTree(exec.Command("true")); err != nil {
		t.Errorf("expected nil for unstarted command, got %v", err)
	}
	if err := TerminateTree(nil); err != nil {
		t.Errorf("expected nil for nil command, got %v", err)
	}
}
