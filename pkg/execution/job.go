package execution

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// State is a point in the lifecycle of one run.
type State int

const (
	Idle State = iota
	Submitting
	Queued
	Processing
	Accepted
	RuntimeError
	CompileError
	Unknown
	TransportFailed
	TimedOut
	Cancelled
)

var stateNames = map[State]string{
	Idle:            "Idle",
	Submitting:      "Submitting",
	Queued:          "Queued",
	Processing:      "Processing",
	Accepted:        "Accepted",
	RuntimeError:    "RuntimeError",
	CompileError:    "CompileError",
	Unknown:         "Unknown",
	TransportFailed: "TransportFailed",
	TimedOut:        "TimedOut",
	Cancelled:       "Cancelled",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether no further polling happens from s.
func (s State) Terminal() bool {
	switch s {
	case Accepted, RuntimeError, CompileError, Unknown, TransportFailed, TimedOut, Cancelled:
		return true
	}
	return false
}

// failure states can be entered from any non-terminal state
var failures = []State{TransportFailed, TimedOut, Cancelled}

var transitions = map[State][]State{
	Idle:       {Submitting},
	Submitting: {Queued, Processing, Accepted, RuntimeError, CompileError, Unknown},
	Queued:     {Queued, Processing, Accepted, RuntimeError, CompileError, Unknown},
	Processing: {Queued, Processing, Accepted, RuntimeError, CompileError, Unknown},
}

// CanTransition reports whether a job may move from one state to another.
func CanTransition(from, to State) bool {
	if to == Idle {
		return from.Terminal()
	}
	if from.Terminal() {
		return false
	}
	for _, s := range failures {
		if s == to {
			return true
		}
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Request is one program to run. It is built from a document snapshot and never refers back to
// the live document.
type Request struct {
	SourceText string
	StdinText  string
	LanguageID string
}

// Job is one submission as last reported by the execution service. Output fields hold decoded
// text.
type Job struct {
	Token         string
	State         State
	Description   string
	Stdout        string
	Stderr        string
	CompileOutput string
	Time          string
	Memory        string
	Attempts      int

	hasStderr  bool
	hasCompile bool
}

// HasStderr reports whether the service returned a non-null stderr.
func (j *Job) HasStderr() bool {
	return j.hasStderr
}

// HasCompileOutput reports whether the service returned non-null compile output.
func (j *Job) HasCompileOutput() bool {
	return j.hasCompile
}

// Transition is delivered to an Observer on every state change, before the next request is
// issued. Job is a copy taken at the time of the transition.
type Transition struct {
	From State
	To   State
	Job  Job
}

type Observer func(Transition)

// Judge0 status ids.
const (
	statusInQueue       = 1
	statusProcessing    = 2
	statusAccepted      = 3
	statusWrongAnswer   = 4
	statusTimeLimit     = 5
	statusCompileError  = 6
	statusRuntimeFirst  = 7
	statusRuntimeLast   = 12
	statusInternalError = 13
	statusExecFormat    = 14
)

type submissionStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type submissionResponse struct {
	Token         string            `json:"token"`
	Status        *submissionStatus `json:"status"`
	Stdout        *string           `json:"stdout"`
	Stderr        *string           `json:"stderr"`
	CompileOutput *string           `json:"compile_output"`
	Time          scalar            `json:"time"`
	Memory        scalar            `json:"memory"`
}

// scalar accepts a JSON string or number and keeps its text form. null stays empty.
type scalar string

func (s *scalar) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		*s = ""
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*s = scalar(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	*s = scalar(n.String())
	return nil
}

// classify maps a poll response to a job state. A recognisable "Accepted" description wins,
// then non-null stderr, then non-null compile output. Responses without a description are
// still being processed.
func classify(r submissionResponse) State {
	if r.Status != nil && r.Status.Description == "Accepted" {
		return Accepted
	}
	if r.Stderr != nil {
		return RuntimeError
	}
	if r.CompileOutput != nil {
		return CompileError
	}
	if r.Status == nil {
		return Processing
	}
	switch id := r.Status.ID; {
	case id == statusInQueue:
		return Queued
	case id == statusProcessing:
		return Processing
	case id == statusAccepted:
		return Accepted
	case id == statusCompileError:
		return CompileError
	case id >= statusRuntimeFirst && id <= statusRuntimeLast:
		return RuntimeError
	case id == statusWrongAnswer, id == statusTimeLimit, id == statusInternalError, id == statusExecFormat:
		return Unknown
	}
	if r.Status.Description == "In Queue" {
		return Queued
	}
	return Processing
}
