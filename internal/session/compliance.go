package session

import "errors"

// ErrSessionTerminated is returned when a call is attempted against a
// DEREZED session (spec §4.6: "Terminal DEREZED blocks every subsequent
// call with session_terminated").
var ErrSessionTerminated = errors.New("session: terminated (derezzed)")

// ComplianceState is spec §4.6's compliance sum type, modeled as explicit
// constants with a single Transition function so the policy stays
// auditable (spec §9: "Model states and transitions as explicit sum-type
// values; a single transition function (state, event) -> state").
type ComplianceState string

const (
	StatePendingBoot ComplianceState = "PENDING_BOOT"
	StateCompliant   ComplianceState = "COMPLIANT"
	StateWarned      ComplianceState = "WARNED"
	StateDegraded    ComplianceState = "DEGRADED"
	StateDerezzed    ComplianceState = "DEREZED"
)

// Event is a compliance-relevant occurrence fed to Transition.
type Event string

const (
	EventGotProgramState  Event = "got_program_state"
	EventGotTasks         Event = "got_tasks"
	EventGotMessages      Event = "got_messages"
	EventClaimTask        Event = "claim_task"
	EventNonExemptCall    Event = "non_exempt_tool_call"
	EventUpdateProgramState Event = "update_program_state"
	EventDerez            Event = "derez"
)

// JournalWarnThreshold is the non-exempt-call count at which journaling
// escalates the state (spec §4.6: "every 10 non-exempt tool calls without
// an update_program_state raises the state through WARNED -> DEGRADED").
const JournalWarnThreshold = 10

// Compliance is the per-session compliance sub-record (spec §3).
type Compliance struct {
	State            ComplianceState `json:"state"`
	GotProgramState  bool            `json:"gotProgramState"`
	GotTasks         bool            `json:"gotTasks"`
	GotMessages      bool            `json:"gotMessages"`
	JournalActive    bool            `json:"journalActive"`
	JournalCounter   int             `json:"journalCounter"`
}

// NewCompliance returns the initial PENDING_BOOT compliance record.
func NewCompliance() Compliance {
	return Compliance{State: StatePendingBoot}
}

// Transition applies event to c and returns the resulting record. Terminal
// DEREZED is not escaped by this function — callers must reject calls
// against a DEREZED session before ever invoking Transition (spec §4.6:
// "Terminal DEREZED blocks every subsequent call").
func Transition(c Compliance, event Event) Compliance {
	if c.State == StateDerezzed {
		return c
	}

	switch event {
	case EventGotProgramState:
		c.GotProgramState = true
	case EventGotTasks:
		c.GotTasks = true
	case EventGotMessages:
		c.GotMessages = true
	case EventClaimTask:
		c.JournalActive = true
	case EventUpdateProgramState:
		c.JournalCounter = 0
		if c.GotProgramState && c.GotTasks && c.GotMessages {
			c.State = StateCompliant
		}
		return c
	case EventDerez:
		c.State = StateDerezzed
		return c
	case EventNonExemptCall:
		if c.JournalActive {
			c.JournalCounter++
			if c.JournalCounter > 0 && c.JournalCounter%JournalWarnThreshold == 0 {
				c.State = escalate(c.State)
			}
		}
	}

	if c.GotProgramState && c.GotTasks && c.GotMessages && c.State == StatePendingBoot {
		c.State = StateCompliant
	}
	return c
}

// RequireNotTerminated enforces the terminal-DEREZED guard callers must
// apply before invoking Transition.
func RequireNotTerminated(c Compliance) error {
	if c.State == StateDerezzed {
		return ErrSessionTerminated
	}
	return nil
}

// escalate advances the compliance state one step toward DEGRADED.
func escalate(s ComplianceState) ComplianceState {
	switch s {
	case StateCompliant:
		return StateWarned
	case StateWarned:
		return StateDegraded
	default:
		return s
	}
}
