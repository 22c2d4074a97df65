package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"dval/failure"
	"dval/snippet"
)

type workerJob struct {
	Name      string          `json:"name"`
	Source    string          `json:"source"`
	File      string          `json:"file"`
	TimeoutMs int64           `json:"timeout_ms"`
	Context   contextSnapshot `json:"context"`
}

type workerReply struct {
	Result *Result        `json:"result,omitempty"`
	Error  *failure.Error `json:"error,omitempty"`
}

// ServeWorker reads one job from r, evaluates it on this process and writes
// the reply to w. It is the body of the hidden `dval worker` command.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer) error {
	var job workerJob
	if err := json.NewDecoder(r).Decode(&job); err != nil {
		return fmt.Errorf("unable to decode worker job: %w", err)
	}

	reply := workerReply{}

	ec, err := restoreContext(job.Context)
	if err == nil {
		evaluator := NewEvaluator(Options{
			Timeout: time.Duration(job.TimeoutMs) * time.Millisecond,
			File:    job.File,
		})

		var result Result
		result, err = evaluator.evaluateInRuntime(ctx, snippet.Function{Name: job.Name, Source: job.Source}, ec)
		if err == nil {
			reply.Result = &result
		}
	}

	if err != nil {
		var f *failure.Error
		if !errors.As(err, &f) {
			f = failure.Wrap(failure.EvaluationError, err, "worker failed")
		}
		reply.Error = f
	}

	return json.NewEncoder(w).Encode(reply)
}

func (e *Evaluator) workerCommand() ([]string, error) {
	if len(e.opts.WorkerCommand) > 0 {
		return e.opts.WorkerCommand, nil
	}

	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("unable to locate the dval executable: %w", err)
	}
	return []string{executable, "worker"}, nil
}

// evaluateInProcess hands the evaluation to a child process which is
// killed once the timeout and grace period have passed.
func (e *Evaluator) evaluateInProcess(ctx context.Context, fn snippet.Function, ec *ExecutionContext) (Result, error) {
	start := time.Now()
	result := Result{ID: uuid.New().String()}
	log := e.log.WithField("evaluation", result.ID)

	if err := ec.claim(); err != nil {
		return result, err
	}

	argv, err := e.workerCommand()
	if err != nil {
		return result, failure.Wrap(failure.EvaluationError, err, "unable to start worker")
	}

	payload, err := json.Marshal(workerJob{
		Name:      fn.Name,
		Source:    fn.Source,
		File:      e.opts.File,
		TimeoutMs: e.opts.Timeout.Milliseconds(),
		Context:   ec.snapshot(),
	})
	if err != nil {
		return result, failure.Wrap(failure.EvaluationError, err, "unable to encode worker job")
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout+e.opts.Grace)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), e.opts.WorkerEnv...)

	runErr := cmd.Run()
	result.Duration = time.Since(start)

	if ctx.Err() != nil {
		log.WithField("pid", processID(cmd)).Warn("worker killed")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, failure.New(failure.Timeout, "evaluation exceeded %s", e.opts.Timeout)
		}
		return result, failure.Wrap(failure.EvaluationError, ctx.Err(), "evaluation cancelled")
	}

	if runErr != nil {
		return result, failure.Wrap(failure.EvaluationError, runErr, "worker failed: %s", strings.TrimSpace(stderr.String()))
	}

	var reply workerReply
	if err := json.Unmarshal(stdout.Bytes(), &reply); err != nil {
		return result, failure.Wrap(failure.EvaluationError, err, "unable to decode worker reply")
	}

	if reply.Error != nil {
		return result, reply.Error
	}
	if reply.Result == nil {
		return result, failure.New(failure.EvaluationError, "worker returned no result")
	}

	reply.Result.ID = result.ID
	reply.Result.Duration = result.Duration
	return *reply.Result, nil
}

func processID(cmd *exec.Cmd) int {
	if cmd.Process == nil {
		return 0
	}
	return cmd.Process.Pid
}
