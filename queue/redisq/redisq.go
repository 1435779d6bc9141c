/*
Package redisq provides a queue.Queue kept on redis, so that the nodes
of a cluster can share the tasks of a training run and their outcomes.
*/
package redisq

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pbanos/grove/queue"
	redis "gopkg.in/redis.v5"
)

// Codec encodes tasks to keep them on redis and decodes them back
type Codec interface {
	Encode(context.Context, *queue.Task) ([]byte, error)
	Decode(context.Context, []byte) (*queue.Task, error)
}

const (
	lockAttempts    = 5
	failToLockSleep = 10 * time.Millisecond
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// completeScript finishes a running task in one step, so readers
// see it either running or finished
const completeScript = `
if redis.call("SREM", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("DEL", KEYS[2])
redis.call("SET", KEYS[3], ARGV[2])
return 1
`

const outcomeScript = `
local o = redis.call("GET", KEYS[3])
if o then
	return o
end
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 1 then
	return "running"
end
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 1 then
	return "pending"
end
return ""
`

const countScript = `return {redis.call("SCARD", KEYS[1]), redis.call("SCARD", KEYS[2])}`

// keys names the redis keys of a queue
type keys string

func (k keys) pending() string { return string(k) + ":pending" }
func (k keys) running() string { return string(k) + ":running" }
func (k keys) task(id, what string) string { return fmt.Sprintf("%s:task:%s:%s", k, id, what) }

type redisQ struct {
	keys
	rc         *redis.Client
	codec      Codec
	taskMaxRun time.Duration
	lockTTL    time.Duration
	ctx        context.Context
	stop       context.CancelFunc
}

/*
New returns a queue.Queue on the given redis client. Its keys are
prefixed with the given id:
  - id:pending and id:running are sets with the IDs of the pending
    and running tasks
  - id:task:task_id:data holds the task encoded with the given codec
  - id:task:task_id:lock is a lock for exclusive management of the
    task, expiring after lockTTL
  - id:task:task_id:running marks a pulled task and expires after
    taskMaxRun. Running tasks whose mark expired are dropped back to
    pending. A zero taskMaxRun never expires marks.
  - id:task:task_id:outcome holds the state of a finished task and
    the error message of a failed one, until the task is forgotten

The returned queue is safe for concurrent use by multiple goroutines
and processes.
*/
func New(id string, rc *redis.Client, taskMaxRun, lockTTL time.Duration, codec Codec) queue.Queue {
	ctx, stop := context.WithCancel(context.Background())
	rq := &redisQ{
		keys:       keys(id),
		rc:         rc,
		codec:      codec,
		taskMaxRun: taskMaxRun,
		lockTTL:    lockTTL,
		ctx:        ctx,
		stop:       stop,
	}
	if taskMaxRun > 0 {
		go rq.dropTimedOut()
	}
	return rq
}

func (rq *redisQ) Push(ctx context.Context, t *queue.Task) error {
	data, err := rq.codec.Encode(ctx, t)
	if err != nil {
		return fmt.Errorf("pushing task %s to queue: %v", t.ID(), err)
	}
	dataKey := rq.task(t.ID(), "data")
	ok, err := rq.rc.SetNX(dataKey, string(data), 0).Result()
	if err != nil {
		return fmt.Errorf("pushing task %s to queue: %v", t.ID(), err)
	}
	if !ok {
		return fmt.Errorf("pushing task %s to queue: already pushed", t.ID())
	}
	if _, err = rq.rc.SAdd(rq.pending(), t.ID()).Result(); err != nil {
		rq.rc.Del(dataKey)
		return fmt.Errorf("pushing task %s to queue: %v", t.ID(), err)
	}
	return nil
}

func (rq *redisQ) Pull(ctx context.Context) (*queue.Task, context.Context, context.CancelFunc, error) {
	iter := rq.rc.SScan(rq.pending(), 0, "", 0).Iterator()
	for iter.Next() {
		id := iter.Val()
		if err := rq.locked(ctx, id, 0, func() error { return rq.claim(id) }); err != nil {
			continue
		}
		t, err := rq.load(ctx, id)
		if err != nil {
			rq.Drop(ctx, id)
			continue
		}
		if rq.taskMaxRun == 0 {
			tctx, cancel := context.WithCancel(rq.ctx)
			return t, tctx, cancel, nil
		}
		tctx, cancel := context.WithTimeout(rq.ctx, rq.taskMaxRun)
		return t, tctx, cancel, nil
	}
	if err := iter.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("scanning pending tasks in %q: %v", rq.pending(), err)
	}
	return nil, nil, nil, nil
}

// claim marks a pending task as running
func (rq *redisQ) claim(id string) error {
	mark := rq.task(id, "running")
	ok, err := rq.rc.SetNX(mark, "true", rq.taskMaxRun).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %s already running", id)
	}
	moved, err := rq.rc.SMove(rq.pending(), rq.running(), id).Result()
	if err != nil || !moved {
		rq.rc.Del(mark)
		if err == nil {
			err = fmt.Errorf("task %s no longer pending", id)
		}
		return err
	}
	return nil
}

func (rq *redisQ) load(ctx context.Context, id string) (*queue.Task, error) {
	data, err := rq.rc.Get(rq.task(id, "data")).Result()
	if err != nil {
		return nil, err
	}
	return rq.codec.Decode(ctx, []byte(data))
}

func (rq *redisQ) Drop(ctx context.Context, id string) error {
	err := rq.locked(ctx, id, lockAttempts, func() error {
		moved, err := rq.rc.SMove(rq.running(), rq.pending(), id).Result()
		if err != nil || !moved {
			return err
		}
		return rq.rc.Del(rq.task(id, "running")).Err()
	})
	if err != nil {
		return fmt.Errorf("dropping task %s: %v", id, err)
	}
	return nil
}

func (rq *redisQ) Complete(ctx context.Context, id string, failure error) error {
	outcome := queue.Done.String()
	if failure != nil {
		outcome = queue.Failed.String() + ":" + failure.Error()
	}
	err := rq.locked(ctx, id, lockAttempts, func() error {
		return rq.rc.Eval(completeScript,
			[]string{rq.running(), rq.task(id, "running"), rq.task(id, "outcome")},
			id, outcome,
		).Err()
	})
	if err != nil {
		return fmt.Errorf("completing task %s: %v", id, err)
	}
	return nil
}

func (rq *redisQ) Outcome(ctx context.Context, id string) (queue.Outcome, error) {
	v, err := rq.rc.Eval(outcomeScript,
		[]string{rq.pending(), rq.running(), rq.task(id, "outcome")},
		id,
	).Result()
	if err != nil {
		return queue.Outcome{}, fmt.Errorf("getting outcome of task %s: %v", id, err)
	}
	s, ok := v.(string)
	if !ok {
		return queue.Outcome{}, fmt.Errorf("getting outcome of task %s: unexpected %v (%T)", id, v, v)
	}
	return parseOutcome(s), nil
}

func parseOutcome(s string) queue.Outcome {
	state, msg, _ := strings.Cut(s, ":")
	for _, st := range []queue.State{queue.Pending, queue.Running, queue.Done, queue.Failed} {
		if st.String() == state {
			return queue.Outcome{State: st, Message: msg}
		}
	}
	return queue.Outcome{}
}

func (rq *redisQ) Forget(ctx context.Context, id string) error {
	o, err := rq.Outcome(ctx, id)
	if err != nil {
		return err
	}
	if o.State == queue.Unknown {
		return nil
	}
	if !o.State.Finished() {
		return fmt.Errorf("forgetting task %s: still %v", id, o.State)
	}
	if err := rq.rc.Del(rq.task(id, "data"), rq.task(id, "outcome")).Err(); err != nil {
		return fmt.Errorf("forgetting task %s: %v", id, err)
	}
	return nil
}

// Count counts both sets in one call, so a task moving between them
// is not missed
func (rq *redisQ) Count(context.Context) (int, int, error) {
	v, err := rq.rc.Eval(countScript, []string{rq.pending(), rq.running()}).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("counting tasks: %v", err)
	}
	counts, ok := v.([]interface{})
	if !ok || len(counts) != 2 {
		return 0, 0, fmt.Errorf("counting tasks: unexpected %v (%T)", v, v)
	}
	p, pok := counts[0].(int64)
	r, rok := counts[1].(int64)
	if !pok || !rok {
		return 0, 0, fmt.Errorf("counting tasks: unexpected counts %v", counts)
	}
	return int(p), int(r), nil
}

func (rq *redisQ) Stop(context.Context) error {
	rq.stop()
	return nil
}

func (rq *redisQ) String() string {
	return fmt.Sprintf("{redis queue %s}", string(rq.keys))
}

/*
locked runs f holding the lock of the task with the given id. When the
lock is taken it waits for it to expire and retries, up to the given
number of attempts.
*/
func (rq *redisQ) locked(ctx context.Context, id string, attempts int, f func() error) error {
	key := rq.task(id, "lock")
	token := uuid.NewString()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := rq.rc.SetNX(key, token, rq.lockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquiring lock: %v", err)
		}
		if ok {
			break
		}
		if attempts <= 0 {
			return fmt.Errorf("acquiring lock: already taken")
		}
		ttl, _ := rq.rc.TTL(key).Result()
		jitter := time.Duration(rand.Int63n(int64(failToLockSleep) * int64(attempts)))
		attempts--
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ttl + jitter):
		}
	}
	defer rq.rc.Eval(unlockScript, []string{key}, token)
	return f()
}

// dropTimedOut drops running tasks whose running mark expired until
// the queue is stopped
func (rq *redisQ) dropTimedOut() {
	ticker := time.NewTicker(rq.taskMaxRun / 2)
	defer ticker.Stop()
	for {
		iter := rq.rc.SScan(rq.running(), 0, "", 0).Iterator()
		for iter.Next() && rq.ctx.Err() == nil {
			id := iter.Val()
			var expired bool
			rq.locked(rq.ctx, id, 0, func() error {
				exists, err := rq.rc.Exists(rq.task(id, "running")).Result()
				expired = err == nil && !exists
				return err
			})
			if expired {
				rq.Drop(rq.ctx, id)
			}
		}
		select {
		case <-rq.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
