package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/monshunter/kubeboot/pkg/envar"
	"gopkg.in/yaml.v3"
)

const KindState = "State"

type Phase string

const (
	PhasePending Phase = "Pending"
	PhaseRunning Phase = "Running"
	PhaseReady   Phase = "Ready"
	PhaseFailed  Phase = "Failed"
)

type ConditionStatus string

const (
	ConditionStatusTrue    ConditionStatus = "True"
	ConditionStatusFalse   ConditionStatus = "False"
	ConditionStatusUnknown ConditionStatus = "Unknown"
)

// Condition records the outcome of one named step. A condition with status
// True means the step completed and may be skipped on re-run.
type Condition struct {
	Type               string          `yaml:"type"`
	Status             ConditionStatus `yaml:"status"`
	Reason             string          `yaml:"reason,omitempty"`
	Message            string          `yaml:"message,omitempty"`
	LastTransitionTime time.Time       `yaml:"lastTransitionTime,omitempty"`
}

// State is the persisted per-cluster record of which steps have completed.
// The bootstrap sequence is not atomic; this file is what makes a failed run
// resumable from the step that broke instead of leaving the host in an
// undocumented intermediate state.
type State struct {
	ApiVersion string      `yaml:"apiVersion,omitempty"`
	Kind       string      `yaml:"kind,omitempty"`
	Name       string      `yaml:"name,omitempty"`
	Phase      Phase       `yaml:"phase,omitempty"`
	Conditions []Condition `yaml:"conditions,omitempty"`

	mu sync.Mutex
}

// NewState returns an empty state for the named cluster.
func NewState(name string) *State {
	return &State{
		ApiVersion: ApiVersion,
		Kind:       KindState,
		Name:       name,
		Phase:      PhasePending,
	}
}

// StatePath returns the on-disk location of the state file for a cluster.
func StatePath(name string) string {
	return filepath.Join(envar.KubebootClustersDir(), name, "state.yaml")
}

// LoadState reads the persisted state for a cluster, returning a fresh state
// when none exists yet.
func LoadState(name string) (*State, error) {
	data, err := os.ReadFile(StatePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(name), nil
		}
		return nil, fmt.Errorf("failed to read state file for cluster %s: %w", name, err)
	}
	state := &State{}
	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state file for cluster %s: %w", name, err)
	}
	return state, nil
}

// Save persists the state to disk.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := StatePath(s.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", path, err)
	}
	return nil
}

// SetPhase records the overall phase.
func (s *State) SetPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phase = phase
}

// StepCompleted reports whether the named step already ran to completion.
func (s *State) StepCompleted(step string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.Conditions {
		if c.Type == step && c.Status == ConditionStatusTrue {
			return true
		}
	}
	return false
}

// MarkCompleted records a successful step.
func (s *State) MarkCompleted(step string) {
	s.setCondition(Condition{
		Type:               step,
		Status:             ConditionStatusTrue,
		Reason:             "Completed",
		LastTransitionTime: time.Now(),
	})
}

// MarkFailed records a failed step with its error message.
func (s *State) MarkFailed(step string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.setCondition(Condition{
		Type:               step,
		Status:             ConditionStatusFalse,
		Reason:             "Failed",
		Message:            msg,
		LastTransitionTime: time.Now(),
	})
}

func (s *State) setCondition(cond Condition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.Conditions {
		if c.Type == cond.Type {
			s.Conditions[i] = cond
			return
		}
	}
	s.Conditions = append(s.Conditions, cond)
}
