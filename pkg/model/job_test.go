package model

import (
	"errors"
	"testing"
)

func TestPayload_Validate(t *testing.T) {
	p := Payload{CaseDir: "/data/cases/caseA"}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	empty := Payload{}
	err := empty.Validate()
	if err == nil {
		t.Fatal("Validate() on empty payload should fail")
	}
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Validate() error = %v, want ErrInvalidPayload", err)
	}
}

func TestPayload_ScriptName(t *testing.T) {
	p := Payload{CaseDir: "/data/cases/caseA"}
	if got := p.ScriptName(); got != "Allrun" {
		t.Errorf("ScriptName() = %q, want %q", got, "Allrun")
	}

	p.Script = "Allrun.pre"
	if got := p.ScriptName(); got != "Allrun.pre" {
		t.Errorf("ScriptName() = %q, want %q", got, "Allrun.pre")
	}
}

func TestSchedulerFault_Error(t *testing.T) {
	var err error = NewSchedulerFault("submit", "malformed request: %s", "bad script")

	var fault *SchedulerFault
	if !errors.As(err, &fault) {
		t.Fatal("errors.As should match *SchedulerFault")
	}
	if fault.Op != "submit" {
		t.Errorf("Op = %q, want %q", fault.Op, "submit")
	}
	want := "scheduler fault during submit: malformed request: bad script"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCaseStatusFor(t *testing.T) {
	tests := []struct {
		state JobState
		want  string
	}{
		{JobStateSubmitted, "submitted"},
		{JobStateRunning, "running"},
		{JobStateSucceeded, "succeeded"},
		{JobStateFailed, "failed"},
		{JobStateCancelled, "cancelled"},
		{JobStatePending, "not_submitted"},
	}
	for _, tt := range tests {
		if got := CaseStatusFor(tt.state); got != tt.want {
			t.Errorf("CaseStatusFor(%s) = %q, want %q", tt.state, got, tt.want)
		}
	}
}
