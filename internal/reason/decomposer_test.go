package reason

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeCompleter returns a canned response.
type fakeCompleter struct {
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func TestParseResponseExtractsArrayFromProse(t *testing.T) {
	response := `Here is the breakdown:

` + "```json" + `
[
  {"id": "setup", "description": "prepare things", "priority": 1, "duration_secs": 60},
  {"id": "build", "description": "do the work", "worker_type": "builder", "depends_on": ["setup"]}
]
` + "```" + `

Let me know if you need changes.`

	candidates, err := ParseResponse(response)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].ID != "setup" || candidates[0].Priority != 1 {
		t.Errorf("unexpected candidate: %+v", candidates[0])
	}
	if candidates[0].DurationHint != time.Minute {
		t.Errorf("expected 60s hint, got %v", candidates[0].DurationHint)
	}
	if candidates[1].WorkerType != "builder" || len(candidates[1].DependsOn) != 1 {
		t.Errorf("unexpected candidate: %+v", candidates[1])
	}
}

func TestParseResponseRejectsMissingArray(t *testing.T) {
	if _, err := ParseResponse("sorry, I cannot do that"); err == nil {
		t.Fatal("expected error for missing array")
	}
}

func TestParseResponseRejectsEmptyArray(t *testing.T) {
	if _, err := ParseResponse("[]"); err == nil {
		t.Fatal("expected error for empty array")
	}
}

func TestParseResponseRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseResponse(`[{"id": "a",]`); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestDecomposeBuildsPromptWithWorkerTypes(t *testing.T) {
	fake := &fakeCompleter{response: `[{"id": "a", "description": "x"}]`}
	d := NewDecomposer(fake)

	candidates, err := d.Decompose(context.Background(), "ship the feature", []string{"builder", "reviewer"})
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if !strings.Contains(fake.prompt, "ship the feature") {
		t.Error("prompt missing goal")
	}
	if !strings.Contains(fake.prompt, "builder, reviewer") {
		t.Error("prompt missing worker types")
	}
}

func TestDecomposeRejectsEmptyGoal(t *testing.T) {
	d := NewDecomposer(&fakeCompleter{})
	if _, err := d.Decompose(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for empty goal")
	}
}

func TestDecomposePropagatesCompleterError(t *testing.T) {
	d := NewDecomposer(&fakeCompleter{err: errors.New("api down")})
	if _, err := d.Decompose(context.Background(), "goal", nil); err == nil {
		t.Fatal("expected completer error to propagate")
	}
}
