package config

import (
	"testing"
)

func TestStateResume(t *testing.T) {
	t.Setenv("KUBEBOOT_HOME", t.TempDir())

	state, err := LoadState("fresh")
	if err != nil {
		t.Fatalf("LoadState for missing file failed: %v", err)
	}
	if state.Phase != PhasePending {
		t.Errorf("fresh state phase = %q, want %q", state.Phase, PhasePending)
	}
	if state.StepCompleted("disable-swap") {
		t.Error("fresh state should have no completed steps")
	}

	state.SetPhase(PhaseRunning)
	state.MarkCompleted("disable-swap")
	state.MarkFailed("install-containerd", errAptBroken)
	if err := state.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := LoadState("fresh")
	if err != nil {
		t.Fatalf("LoadState after save failed: %v", err)
	}
	if !reloaded.StepCompleted("disable-swap") {
		t.Error("disable-swap should be recorded as completed")
	}
	if reloaded.StepCompleted("install-containerd") {
		t.Error("install-containerd failed and must not count as completed")
	}
	if reloaded.Phase != PhaseRunning {
		t.Errorf("reloaded phase = %q, want %q", reloaded.Phase, PhaseRunning)
	}

	// completing a previously failed step replaces its condition
	reloaded.MarkCompleted("install-containerd")
	if !reloaded.StepCompleted("install-containerd") {
		t.Error("install-containerd should be completed after MarkCompleted")
	}
	count := 0
	for _, c := range reloaded.Conditions {
		if c.Type == "install-containerd" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected a single condition for install-containerd, got %d", count)
	}
}

var errAptBroken = errTest("apt broke")

type errTest string

func (e errTest) Error() string { return string(e) }
