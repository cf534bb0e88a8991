// Package executor runs the single async worker that serializes order
// submit/cancel calls against an exchange.Adapter, grounded on the
// teacher's execution.Executor (submit/retry/fill state machine) but
// reshaped into the spec's MPSC task-queue discipline: the worker never
// touches decision-loop state, it only calls the adapter and posts
// results to a buffer the main loop drains non-blockingly.
package executor

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/nvquant/tradecore/internal/exchange"
	"github.com/nvquant/tradecore/internal/types"
)

// TaskKind distinguishes the three task shapes the worker accepts.
type TaskKind int8

const (
	TaskSubmit TaskKind = iota
	TaskCancel
	TaskStop
)

// Task is one unit of work enqueued by the controller.
type Task struct {
	Kind          TaskKind
	Intent        types.OrderIntent
	ClientOrderID string // for Cancel
}

// Result is posted to the result buffer after a Submit or Cancel completes.
type Result struct {
	ClientOrderID string
	IsCancel      bool
	Success       bool
}

// Executor owns the single worker goroutine and its two queues.
type Executor struct {
	adapter exchange.Adapter
	log     zerolog.Logger

	taskMu    sync.Mutex
	taskCond  *sync.Cond
	tasks     []Task

	resultMu sync.Mutex
	results  []Result

	doneCh chan struct{}
}

// New constructs an Executor bound to adapter. Run must be started in its
// own goroutine by the caller.
func New(adapter exchange.Adapter, log zerolog.Logger) *Executor {
	e := &Executor{
		adapter: adapter,
		log:     log,
		doneCh:  make(chan struct{}),
	}
	e.taskCond = sync.NewCond(&e.taskMu)
	return e
}

// Submit enqueues an order submission. Ordering between submits for the
// same client_order_id is preserved by the single-worker discipline.
func (e *Executor) Submit(intent types.OrderIntent) {
	e.enqueue(Task{Kind: TaskSubmit, Intent: intent})
}

// Cancel enqueues an order cancellation.
func (e *Executor) Cancel(clientOrderID string) {
	e.enqueue(Task{Kind: TaskCancel, ClientOrderID: clientOrderID})
}

// Stop enqueues a stop signal; the worker exits after draining preceding
// tasks.
func (e *Executor) Stop() {
	e.enqueue(Task{Kind: TaskStop})
}

func (e *Executor) enqueue(t Task) {
	e.taskMu.Lock()
	e.tasks = append(e.tasks, t)
	e.taskMu.Unlock()
	e.taskCond.Signal()
}

// Run drives the worker loop until a Stop task is processed. Call this in
// its own goroutine; it blocks until shutdown.
func (e *Executor) Run() {
	defer close(e.doneCh)
	for {
		task, ok := e.dequeue()
		if !ok {
			continue
		}
		switch task.Kind {
		case TaskStop:
			e.log.Info().Msg("async executor stopping")
			return
		case TaskSubmit:
			success := e.adapter.Submit(task.Intent)
			if !success {
				e.log.Warn().Str("client_order_id", task.Intent.ClientOrderID).Msg("ASYNC_SUBMIT_FAILED")
			}
			e.postResult(Result{ClientOrderID: task.Intent.ClientOrderID, IsCancel: false, Success: success})
		case TaskCancel:
			success := e.adapter.Cancel(task.ClientOrderID)
			e.postResult(Result{ClientOrderID: task.ClientOrderID, IsCancel: true, Success: success})
		}
	}
}

func (e *Executor) dequeue() (Task, bool) {
	e.taskMu.Lock()
	defer e.taskMu.Unlock()
	for len(e.tasks) == 0 {
		e.taskCond.Wait()
	}
	t := e.tasks[0]
	e.tasks = e.tasks[1:]
	return t, true
}

func (e *Executor) postResult(r Result) {
	e.resultMu.Lock()
	e.results = append(e.results, r)
	e.resultMu.Unlock()
}

// DrainResults returns and clears all results posted since the last drain.
// Called non-blockingly by the main loop each tick.
func (e *Executor) DrainResults() []Result {
	e.resultMu.Lock()
	defer e.resultMu.Unlock()
	if len(e.results) == 0 {
		return nil
	}
	out := e.results
	e.results = nil
	return out
}

// Wait blocks until the worker has exited after Stop.
func (e *Executor) Wait() {
	<-e.doneCh
}
