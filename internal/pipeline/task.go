package pipeline

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"

	"github.com/albapepper/scoracle-lake/internal/model"
)

// Task states. A task only ever moves forward through them.
const (
	StatePending      = "pending"
	StateFetching     = "fetching"
	StateTransforming = "transforming"
	StateWriting      = "writing"
	StateCompleted    = "completed"
	StateFailed       = "failed"
)

// Task events.
const (
	eventFetch     = "fetch"
	eventTransform = "transform"
	eventWrite     = "write"
	eventComplete  = "complete"
	eventFail      = "fail"
)

// newTaskFSM builds the state machine of one task. The completed
// transition is fired only after the final ledger mark succeeded.
func newTaskFSM(task model.Task, logger *slog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StatePending,
		fsm.Events{
			{Name: eventFetch, Src: []string{StatePending}, Dst: StateFetching},
			{Name: eventTransform, Src: []string{StateFetching}, Dst: StateTransforming},
			{Name: eventWrite, Src: []string{StateTransforming}, Dst: StateWriting},
			{Name: eventComplete, Src: []string{StateWriting}, Dst: StateCompleted},
			{Name: eventFail, Src: []string{StatePending, StateFetching, StateTransforming, StateWriting}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("task state", "task", task.String(), "from", e.Src, "to", e.Dst)
			},
		},
	)
}

// advance fires event, which is always valid from the state the
// orchestrator is in. Transitions run on a background context: a canceled
// run still records where each started task ended.
func advance(f *fsm.FSM, event string, logger *slog.Logger) {
	if err := f.Event(context.Background(), event); err != nil {
		logger.Error("invalid task transition", "event", event, "state", f.Current(), "error", err)
	}
}
