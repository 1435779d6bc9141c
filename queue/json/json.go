/*
Package json provides an encoder and decoder of queue tasks as JSON
documents, to keep them on a queue backend such as redis.
*/
package json

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/pbanos/grove/queue"
)

/*
TaskEncodeDecoder is an interface for objects
that allow encoding tasks as slices of bytes and decoding
them back to tasks. It is used to serialize tasks into a
representation to store on redis.
*/
type TaskEncodeDecoder interface {

	//Encode receives a *queue.Task
	// and returns a slice of bytes with the task encoded or an
	//error if the encoding could not be performed for
	//some reason. Its counterpart is Decode.
	Encode(context.Context, *queue.Task) ([]byte, error)

	//Decode receives a slice of bytes
	//and returns a *queue.Task decoded from the slice of bytes
	//or an error if the decoding could not be performed
	//for some reason.
	Decode(context.Context, []byte) (*queue.Task, error)
}

type jsonEncodeDecoder struct{}

type jsonTask struct {
	ID        string `json:"id"`
	Handler   string `json:"h"`
	Payload   []byte `json:"p"`
	ResultKey string `json:"rk"`
}

// New returns a TaskEncodeDecoder that encodes tasks as JSON
func New() TaskEncodeDecoder {
	return jsonEncodeDecoder{}
}

func (jed jsonEncodeDecoder) Encode(ctx context.Context, t *queue.Task) ([]byte, error) {
	jt := &jsonTask{
		ID:        t.ID(),
		Handler:   t.Handler,
		Payload:   t.Payload,
		ResultKey: t.ResultKey,
	}
	data, err := json.Marshal(jt)
	if err != nil {
		return nil, fmt.Errorf("encoding task %s as json: %v", t.ID(), err)
	}
	return data, nil
}

func (jed jsonEncodeDecoder) Decode(ctx context.Context, data []byte) (*queue.Task, error) {
	jt := &jsonTask{}
	err := json.Unmarshal(data, jt)
	if err != nil {
		return nil, fmt.Errorf("decoding task from json: %v", err)
	}
	if jt.ID == "" || jt.Handler == "" {
		return nil, fmt.Errorf("decoding json task: missing id or handler")
	}
	return &queue.Task{
		TaskID:    jt.ID,
		Handler:   jt.Handler,
		Payload:   jt.Payload,
		ResultKey: jt.ResultKey,
	}, nil
}
