package steps

import (
	"errors"
	"strings"
	"testing"
)

// fakeRecorder implements Recorder in memory.
type fakeRecorder struct {
	completed map[string]bool
	failed    map[string]error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{completed: map[string]bool{}, failed: map[string]error{}}
}

func (r *fakeRecorder) StepCompleted(name string) bool   { return r.completed[name] }
func (r *fakeRecorder) MarkCompleted(name string)        { r.completed[name] = true }
func (r *fakeRecorder) MarkFailed(name string, err error) { r.failed[name] = err }
func (r *fakeRecorder) Save() error                      { return nil }

func TestPipelineRunsInOrder(t *testing.T) {
	var order []string
	pipeline := NewPipeline("test", []Step{
		{Name: "first", Run: func() error { order = append(order, "first"); return nil }},
		{Name: "second", Run: func() error { order = append(order, "second"); return nil }},
		{Name: "third", Run: func() error { order = append(order, "third"); return nil }},
	})

	if err := pipeline.Run(); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if strings.Join(order, ",") != "first,second,third" {
		t.Errorf("steps ran in order %v", order)
	}
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	pipeline := NewPipeline("test", []Step{
		{Name: "first", Run: func() error { order = append(order, "first"); return nil }},
		{Name: "breaks", Run: func() error { order = append(order, "breaks"); return boom }},
		{Name: "never", Run: func() error { order = append(order, "never"); return nil }},
	})

	err := pipeline.Run()
	if err == nil {
		t.Fatal("expected pipeline to fail")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error should wrap the step failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "breaks") {
		t.Errorf("error %q should name the failed step", err.Error())
	}
	if strings.Join(order, ",") != "first,breaks" {
		t.Errorf("later steps must not run after a failure, ran %v", order)
	}
}

func TestPipelineResumeSkipsCompletedSteps(t *testing.T) {
	recorder := newFakeRecorder()
	recorder.MarkCompleted("first")

	var order []string
	pipeline := NewPipeline("test", []Step{
		{Name: "first", Run: func() error { order = append(order, "first"); return nil }},
		{Name: "second", Run: func() error { order = append(order, "second"); return nil }},
	}).WithRecorder(recorder)

	if err := pipeline.Run(); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if strings.Join(order, ",") != "second" {
		t.Errorf("completed step should be skipped, ran %v", order)
	}
	if !recorder.completed["second"] {
		t.Error("second step should be recorded as completed")
	}
}

func TestPipelineRecordsFailure(t *testing.T) {
	recorder := newFakeRecorder()
	boom := errors.New("boom")
	pipeline := NewPipeline("test", []Step{
		{Name: "breaks", Run: func() error { return boom }},
	}).WithRecorder(recorder)

	if err := pipeline.Run(); err == nil {
		t.Fatal("expected pipeline to fail")
	}
	if recorder.completed["breaks"] {
		t.Error("failed step must not be recorded as completed")
	}
	if !errors.Is(recorder.failed["breaks"], boom) {
		t.Errorf("failure should be recorded, got %v", recorder.failed["breaks"])
	}
}
