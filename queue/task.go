package queue

import (
	"fmt"
)

// Task represents a unit of work to be run by a worker: the handler
// registered under Handler is called with Payload, and its result is
// put on a blob store under ResultKey. Errors are recorded on the
// queue when the task is completed.
type Task struct {
	// ID identifies the task on the queue
	TaskID string
	// Handler is the name the function to run the task
	// with is registered under on workers
	Handler string
	// Payload is handed to the handler
	Payload []byte
	// ResultKey is the blob key to put the handler's result at
	ResultKey string
}

// ID returns a string that identifies the
// task.
func (t *Task) ID() string {
	return t.TaskID
}

func (t *Task) String() string {
	return fmt.Sprintf("{Task %s %s}", t.Handler, t.TaskID)
}
