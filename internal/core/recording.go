package core

import (
	"fmt"

	"github.com/clinvia/teleconsulta/internal/domain"
)

type RecordingState string

const (
	RecordingIdle    RecordingState = "idle"
	RecordingActive  RecordingState = "recording"
	RecordingPaused  RecordingState = "paused"
	RecordingStopped RecordingState = "stopped"
	RecordingFailed  RecordingState = "error"
)

type RecordingAction string

const (
	RecordStart  RecordingAction = "start"
	RecordStop   RecordingAction = "stop"
	RecordPause  RecordingAction = "pause"
	RecordResume RecordingAction = "resume"
)

// ParseRecordingAction validates an action tag from the channel.
func ParseRecordingAction(s string) (RecordingAction, error) {
	switch RecordingAction(s) {
	case RecordStart, RecordStop, RecordPause, RecordResume:
		return RecordingAction(s), nil
	}
	return "", fmt.Errorf("%w: unknown recording action %q", domain.ErrBadRequest, s)
}

// transition applies one recording action. A disallowed pair returns
// the unchanged source state and false. stopped and idle are both
// valid sources for start; error is terminal.
func transition(from RecordingState, action RecordingAction) (RecordingState, bool) {
	switch action {
	case RecordStart:
		if from == RecordingIdle || from == RecordingStopped {
			return RecordingActive, true
		}
	case RecordPause:
		if from == RecordingActive {
			return RecordingPaused, true
		}
	case RecordResume:
		if from == RecordingPaused {
			return RecordingActive, true
		}
	case RecordStop:
		if from == RecordingActive || from == RecordingPaused {
			return RecordingStopped, true
		}
	}
	return from, false
}
