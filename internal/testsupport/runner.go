package testsupport

import (
	"context"
	"sync"

	"weatherflow/internal/procexec"
)

// Response is one scripted reply.
type Response struct {
	Result procexec.Result
	Err    error
}

// ScriptedRunner replays responses in order and records every command.
// Once the script is exhausted it answers with an empty success.
type ScriptedRunner struct {
	mu        sync.Mutex
	responses []Response
	calls     []procexec.Command
}

// NewScriptedRunner builds a runner that replays responses in order.
func NewScriptedRunner(responses ...Response) *ScriptedRunner {
	return &ScriptedRunner{responses: responses}
}

// Run implements procexec.Runner.
func (r *ScriptedRunner) Run(_ context.Context, cmd procexec.Command) (procexec.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	if len(r.responses) == 0 {
		return procexec.Result{}, nil
	}
	next := r.responses[0]
	r.responses = r.responses[1:]
	return next.Result, next.Err
}

// Calls returns a copy of every command seen so far.
func (r *ScriptedRunner) Calls() []procexec.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]procexec.Command(nil), r.calls...)
}

// Failure builds a non-zero exit response.
func Failure(code int, stderr string) Response {
	res := procexec.Result{ExitCode: code, Stderr: []byte(stderr)}
	return Response{Result: res, Err: &procexec.ExitError{Command: "scripted", Result: res}}
}

// Output builds a successful response with stdout.
func Output(stdout string) Response {
	return Response{Result: procexec.Result{Stdout: []byte(stdout)}}
}
