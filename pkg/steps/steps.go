package steps

import (
	"fmt"
	"time"

	"github.com/monshunter/kubeboot/pkg/log"
)

// Step is one named, fail-fast unit of a bootstrap procedure.
type Step struct {
	Name string
	Run  func() error
}

// Recorder persists per-step completion so an interrupted procedure can be
// resumed from the step that broke. config.State implements it.
type Recorder interface {
	StepCompleted(name string) bool
	MarkCompleted(name string)
	MarkFailed(name string, err error)
	Save() error
}

// Pipeline executes steps strictly in order, stopping at the first failure
// and reporting which named step failed. No retries, no rollback.
type Pipeline struct {
	name     string
	steps    []Step
	recorder Recorder
}

// NewPipeline creates a pipeline with the given ordered steps.
func NewPipeline(name string, steps []Step) *Pipeline {
	return &Pipeline{name: name, steps: steps}
}

// WithRecorder enables resume support: steps already recorded as completed
// are skipped, and every outcome is persisted as it happens.
func (p *Pipeline) WithRecorder(recorder Recorder) *Pipeline {
	p.recorder = recorder
	return p
}

// Run executes the pipeline.
func (p *Pipeline) Run() error {
	start := time.Now()
	for i, step := range p.steps {
		if p.recorder != nil && p.recorder.StepCompleted(step.Name) {
			log.Infof("[%s] step %d/%d %s already completed, skipping", p.name, i+1, len(p.steps), step.Name)
			continue
		}

		log.Infof("[%s] step %d/%d: %s", p.name, i+1, len(p.steps), step.Name)
		stepStart := time.Now()
		if err := step.Run(); err != nil {
			if p.recorder != nil {
				p.recorder.MarkFailed(step.Name, err)
				if saveErr := p.recorder.Save(); saveErr != nil {
					log.Warningf("failed to persist state after step %s: %v", step.Name, saveErr)
				}
			}
			return fmt.Errorf("step %q failed: %w", step.Name, err)
		}
		log.Debugf("[%s] step %s finished in %s", p.name, step.Name, time.Since(stepStart).Round(time.Millisecond))

		if p.recorder != nil {
			p.recorder.MarkCompleted(step.Name)
			if err := p.recorder.Save(); err != nil {
				log.Warningf("failed to persist state after step %s: %v", step.Name, err)
			}
		}
	}
	log.Infof("[%s] completed in %s", p.name, time.Since(start).Round(time.Second))
	return nil
}
