package testsupport

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"weatherflow/internal/procexec"
	"weatherflow/internal/services"
)

// ProbeState is what the coordinator reports for one readiness attempt.
type ProbeState string

const (
	StateReady          ProbeState = "ready"
	StateWriteProtected ProbeState = "write-protected"
	StateReportFails    ProbeState = "report-fails"
	StateNodeDown       ProbeState = "node-down"
)

// JobBehavior scripts how a batch job invocation ends.
type JobBehavior struct {
	Rows     string
	TimeOut  bool
	ExitCode int
	Stderr   string
}

// FakeCluster is an in-memory cluster that interprets the docker and
// storage admin command forms. It implements procexec.Runner.
type FakeCluster struct {
	mu sync.Mutex

	Coordinator string
	Probes      []ProbeState
	Jobs        map[string]JobBehavior
	Logs        string

	// DropPuts makes put report success without storing anything.
	DropPuts bool
	// ComposeUpFails makes `compose up` exit non-zero.
	ComposeUpFails bool
	// CoordinatorDown makes the coordinator container report not running.
	CoordinatorDown bool

	probeIndex int
	files      map[string][]byte
	dirs       map[string]bool
	container  map[string][]byte
	calls      []procexec.Command
	counts     map[string]int
}

// NewFakeCluster returns a healthy, empty cluster whose jobs emit the sample rows.
func NewFakeCluster() *FakeCluster {
	return &FakeCluster{
		Coordinator: "namenode",
		Jobs: map[string]JobBehavior{
			"temperature_analysis.py":   {Rows: TemperatureRows},
			"precipitation_analysis.py": {Rows: PrecipitationRows},
		},
		Logs:      "INFO namenode started\nINFO waiting for datanodes",
		files:     map[string][]byte{},
		dirs:      map[string]bool{"/": true},
		container: map[string][]byte{},
		counts:    map[string]int{},
	}
}

// Run implements procexec.Runner.
func (f *FakeCluster) Run(ctx context.Context, cmd procexec.Command) (procexec.Result, error) {
	if err := ctx.Err(); err != nil {
		return procexec.Result{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)

	args := cmd.Args
	if len(args) == 0 {
		return f.fail(cmd, 1, "no docker subcommand")
	}
	switch args[0] {
	case "compose":
		return f.compose(cmd)
	case "volume":
		f.counts["volume-prune"]++
		return procexec.Result{}, nil
	case "inspect":
		running := !f.CoordinatorDown && f.peekProbe() != StateNodeDown
		return procexec.Result{Stdout: []byte(fmt.Sprintf("%t\n", running))}, nil
	case "logs":
		return procexec.Result{Stdout: []byte(f.Logs + "\n")}, nil
	case "cp":
		return f.copyIn(cmd)
	case "exec":
		if len(args) < 3 {
			return f.fail(cmd, 1, "exec requires container and command")
		}
		return f.exec(cmd, args[2:])
	case "version", "info":
		return procexec.Result{Stdout: []byte("fake docker\n")}, nil
	}
	return f.fail(cmd, 1, "unknown docker subcommand "+args[0])
}

func (f *FakeCluster) compose(cmd procexec.Command) (procexec.Result, error) {
	verb := ""
	for i := 1; i < len(cmd.Args); i++ {
		if cmd.Args[i] == "-f" || cmd.Args[i] == "-p" {
			i++
			continue
		}
		verb = cmd.Args[i]
		break
	}
	f.counts["compose-"+verb]++
	switch verb {
	case "up":
		if f.ComposeUpFails {
			return f.fail(cmd, 1, "error pulling image")
		}
	case "ps":
		state := "running"
		if f.CoordinatorDown {
			state = "exited"
		}
		out := fmt.Sprintf("%s\t%s\ndatanode\trunning\nresourcemanager\trunning\n", f.Coordinator, state)
		return procexec.Result{Stdout: []byte(out)}, nil
	}
	return procexec.Result{}, nil
}

func (f *FakeCluster) copyIn(cmd procexec.Command) (procexec.Result, error) {
	if len(cmd.Args) != 3 {
		return f.fail(cmd, 1, "usage: cp SRC CONTAINER:DEST")
	}
	data, err := os.ReadFile(cmd.Args[1])
	if err != nil {
		return f.fail(cmd, 1, err.Error())
	}
	_, dest, _ := strings.Cut(cmd.Args[2], ":")
	f.container[dest] = data
	f.counts["cp"]++
	return procexec.Result{}, nil
}

func (f *FakeCluster) exec(cmd procexec.Command, args []string) (procexec.Result, error) {
	switch args[0] {
	case "hdfs":
		return f.storage(cmd, args[1:])
	case "mkdir":
		return procexec.Result{}, nil
	case "test":
		if _, ok := f.container[args[len(args)-1]]; ok {
			return procexec.Result{}, nil
		}
		return f.fail(cmd, 1, "")
	case "rm":
		delete(f.container, args[len(args)-1])
		return procexec.Result{}, nil
	case "tail":
		data, ok := f.container[args[len(args)-1]]
		if !ok {
			return f.fail(cmd, 1, "tail: cannot open")
		}
		return procexec.Result{Stdout: data}, nil
	case "pkill":
		f.counts["pkill"]++
		return procexec.Result{}, nil
	case "python3", "python":
		return f.job(cmd, args[1:])
	}
	return f.fail(cmd, 127, args[0]+": not found")
}

func (f *FakeCluster) storage(cmd procexec.Command, args []string) (procexec.Result, error) {
	if len(args) < 2 {
		return f.fail(cmd, 255, "usage")
	}
	if args[0] == "dfsadmin" {
		switch args[1] {
		case "-report":
			return f.report(cmd)
		case "-safemode":
			f.counts["leave"]++
			return procexec.Result{Stdout: []byte("Safe mode is OFF\n")}, nil
		}
		return f.fail(cmd, 255, "unknown dfsadmin option")
	}

	op, rest := args[1], args[2:]
	target := ""
	if len(rest) > 0 {
		target = rest[len(rest)-1]
	}
	switch op {
	case "-ls":
		return f.list(cmd, target)
	case "-test":
		if f.dirs[target] || f.files[target] != nil {
			return procexec.Result{}, nil
		}
		return f.fail(cmd, 1, "")
	case "-mkdir":
		f.mkdirAll(target)
		return procexec.Result{}, nil
	case "-rm":
		f.remove(target)
		return procexec.Result{}, nil
	case "-put":
		f.counts["put"]++
		src := rest[len(rest)-2]
		data, ok := f.container[src]
		if !ok {
			return f.fail(cmd, 1, "put: `"+src+"': No such file or directory")
		}
		if f.DropPuts {
			return procexec.Result{}, nil
		}
		dest := target
		if f.dirs[dest] {
			dest = path.Join(dest, path.Base(src))
		}
		f.mkdirAll(path.Dir(dest))
		f.files[dest] = append([]byte(nil), data...)
		return procexec.Result{}, nil
	case "-cat":
		data, ok := f.files[target]
		if !ok {
			return f.fail(cmd, 1, "cat: `"+target+"': No such file or directory")
		}
		return procexec.Result{Stdout: append([]byte(nil), data...)}, nil
	case "-chmod":
		return procexec.Result{}, nil
	}
	return f.fail(cmd, 255, "unknown dfs option "+op)
}

func (f *FakeCluster) report(cmd procexec.Command) (procexec.Result, error) {
	f.counts["report"]++
	state := f.peekProbe()
	if f.probeIndex < len(f.Probes) {
		f.probeIndex++
	}
	switch state {
	case StateReportFails, StateNodeDown:
		return f.fail(cmd, 255, "report: Call From namenode to namenode:8020 failed on connection exception")
	case StateWriteProtected:
		return procexec.Result{Stdout: []byte("Safe mode is ON\nConfigured Capacity: 0\n")}, nil
	}
	return procexec.Result{Stdout: []byte("Configured Capacity: 1000\nLive datanodes (1):\n")}, nil
}

func (f *FakeCluster) peekProbe() ProbeState {
	if len(f.Probes) == 0 {
		return StateReady
	}
	if f.probeIndex < len(f.Probes) {
		return f.Probes[f.probeIndex]
	}
	return f.Probes[len(f.Probes)-1]
}

func (f *FakeCluster) list(cmd procexec.Command, target string) (procexec.Result, error) {
	if data, ok := f.files[target]; ok {
		return procexec.Result{Stdout: []byte(listingLine(target, len(data)))}, nil
	}
	if !f.dirs[target] {
		return f.fail(cmd, 1, "ls: `"+target+"': No such file or directory")
	}
	children := f.children(target)
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d items\n", len(children))
	for _, child := range children {
		b.WriteString(listingLine(child, len(f.files[child])))
	}
	return procexec.Result{Stdout: []byte(b.String())}, nil
}

func listingLine(p string, size int) string {
	return fmt.Sprintf("-rw-r--r--   1 root supergroup %10d 2024-01-01 00:00 %s\n", size, p)
}

func (f *FakeCluster) children(dir string) []string {
	var out []string
	for p := range f.files {
		if path.Dir(p) == dir {
			out = append(out, p)
		}
	}
	for p := range f.dirs {
		if p != dir && path.Dir(p) == dir {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (f *FakeCluster) mkdirAll(dir string) {
	for dir != "/" && dir != "." && dir != "" {
		f.dirs[dir] = true
		dir = path.Dir(dir)
	}
}

func (f *FakeCluster) remove(target string) {
	delete(f.files, target)
	delete(f.dirs, target)
	prefix := strings.TrimSuffix(target, "/") + "/"
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			delete(f.files, p)
		}
	}
	for p := range f.dirs {
		if strings.HasPrefix(p, prefix) {
			delete(f.dirs, p)
		}
	}
}

func (f *FakeCluster) job(cmd procexec.Command, args []string) (procexec.Result, error) {
	if len(args) == 0 {
		return f.fail(cmd, 2, "no script")
	}
	script := args[0]
	if _, ok := f.container[script]; !ok {
		return f.fail(cmd, 2, "can't open file '"+script+"'")
	}
	name := path.Base(script)
	f.counts["job-"+name]++
	behavior := f.Jobs[name]

	var output string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "--output-dir" {
			output = strings.TrimPrefix(args[i+1], "hdfs://")
		}
	}
	input := strings.TrimPrefix(args[len(args)-1], "hdfs://")

	switch {
	case behavior.TimeOut:
		res := procexec.Result{TimedOut: true, ExitCode: -1}
		return res, services.Wrap(services.ErrTimeout, "procexec", cmd.Name, fmt.Sprintf("exceeded %s", cmd.Timeout), nil)
	case behavior.ExitCode != 0:
		return f.fail(cmd, behavior.ExitCode, behavior.Stderr)
	}
	if f.files[input] == nil {
		return f.fail(cmd, 1, "Input path does not exist: hdfs://"+input)
	}
	f.mkdirAll(output)
	if behavior.Rows != "" {
		f.files[path.Join(output, "part-00000")] = []byte(behavior.Rows)
	}
	f.files[path.Join(output, "_SUCCESS")] = []byte{}
	return procexec.Result{Stderr: []byte("Streaming final output from hdfs://" + output + "\n")}, nil
}

func (f *FakeCluster) fail(cmd procexec.Command, code int, stderr string) (procexec.Result, error) {
	res := procexec.Result{ExitCode: code, Stderr: []byte(stderr)}
	return res, &procexec.ExitError{Command: cmd.String(), Result: res}
}

// PutFile seeds a remote file.
func (f *FakeCluster) PutFile(remote, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirAll(path.Dir(remote))
	f.files[remote] = []byte(content)
}

// RemoteFile returns a remote file's content.
func (f *FakeCluster) RemoteFile(remote string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[remote]
	return string(data), ok
}

// RemoteFiles lists the remote files directly under dir.
func (f *FakeCluster) RemoteFiles(dir string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, child := range f.children(dir) {
		if _, ok := f.files[child]; ok {
			out = append(out, child)
		}
	}
	return out
}

// ContainerFile returns the content of a file copied into the coordinator.
func (f *FakeCluster) ContainerFile(p string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.container[p]
	return string(data), ok
}

// SetContainerFile seeds a file inside the coordinator container.
func (f *FakeCluster) SetContainerFile(p, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.container[filepath.ToSlash(p)] = []byte(content)
}

// Count returns how often an operation was seen: "put", "leave", "report",
// "cp", "pkill", "volume-prune", "compose-<verb>", or "job-<script>".
func (f *FakeCluster) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

// Calls returns a copy of every command seen so far.
func (f *FakeCluster) Calls() []procexec.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]procexec.Command(nil), f.calls...)
}
