package deploy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wentf9/xdeploy/pkg/config"
	"github.com/wentf9/xdeploy/pkg/executor"
	"github.com/wentf9/xdeploy/pkg/models"
)

// events 记录所有执行器调用的顺序
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

func (e *events) index(sub string) int {
	for i, s := range e.all() {
		if strings.Contains(s, sub) {
			return i
		}
	}
	return -1
}

type fakeExec struct {
	name      string
	ev        *events
	failOn    string
	lockReply string
}

func (f *fakeExec) Run(ctx context.Context, cmd string) (string, error) {
	f.ev.add(f.name + ": " + cmd)
	if f.failOn != "" && strings.Contains(cmd, f.failOn) {
		return "boom output", errors.New("exit status 1")
	}
	if strings.Contains(cmd, "mkdir") && strings.Contains(cmd, LockName) {
		if f.lockReply != "" {
			return f.lockReply, nil
		}
		return "acquired\n", nil
	}
	return "", nil
}

func (f *fakeExec) Copy(ctx context.Context, src, dst string) error {
	f.ev.add(f.name + ": copy " + src + " -> " + dst)
	return nil
}

type fakeRemotes struct {
	ev     *events
	opened []string
	exec   map[string]*fakeExec
}

func (r *fakeRemotes) Open(ctx context.Context, t models.Target) (executor.Executor, error) {
	r.opened = append(r.opened, t.Name)
	if e, ok := r.exec[t.Name]; ok {
		return e, nil
	}
	e := &fakeExec{name: t.Name, ev: r.ev}
	if r.exec == nil {
		r.exec = map[string]*fakeExec{}
	}
	r.exec[t.Name] = e
	return e, nil
}

type fakeSyncer struct {
	ev    *events
	calls int
	err   error
}

func (s *fakeSyncer) CloneOrUpdate(ctx context.Context) (string, error) {
	s.calls++
	s.ev.add("local: sync")
	return "abc123", s.err
}

type fakeDumper struct {
	ev       *events
	dump     string
	dumpErr  error
	restored string
	sql      []string
}

func (d *fakeDumper) Dump(ctx context.Context, w io.Writer) error {
	d.ev.add("db: dump")
	if d.dumpErr != nil {
		io.WriteString(w, "partial")
		return d.dumpErr
	}
	_, err := io.WriteString(w, d.dump)
	return err
}

func (d *fakeDumper) Restore(ctx context.Context, r io.Reader) error {
	var b bytes.Buffer
	if _, err := io.Copy(&b, r); err != nil {
		return err
	}
	d.restored = b.String()
	d.ev.add("db: restore")
	return nil
}

func (d *fakeDumper) Exec(ctx context.Context, sql string) error {
	d.sql = append(d.sql, sql)
	d.ev.add("db: " + sql)
	return nil
}

type fakeRecorder struct {
	reports []*Report
}

func (r *fakeRecorder) Record(ctx context.Context, report *Report) error {
	r.reports = append(r.reports, report)
	return nil
}

type harness struct {
	ev       *events
	o        *Orchestrator
	local    *fakeExec
	remotes  *fakeRemotes
	repo     *fakeSyncer
	dumper   *fakeDumper
	recorder *fakeRecorder
}

func newHarness(workDir string) *harness {
	ev := &events{}
	h := &harness{
		ev:       ev,
		local:    &fakeExec{name: "local", ev: ev},
		remotes:  &fakeRemotes{ev: ev},
		repo:     &fakeSyncer{ev: ev},
		dumper:   &fakeDumper{ev: ev, dump: "-- dump\n"},
		recorder: &fakeRecorder{},
	}
	inv := &config.Inventory{
		User:              "ubuntu",
		Project:           "shop",
		Branch:            "master",
		WorkDir:           workDir,
		RemoteAppDir:      "/data/opt/shop",
		RemoteUploadDir:   "/data/deploy_app",
		RemoteServicesDir: "/data/dev-docker-services",
		MySQLHost:         "db1",
		DB:                config.DBConfig{Container: "product_mysql", User: "root", Password: "root", Name: "shop"},
		Roles: map[string][]string{
			"test":    {"t1"},
			"front1":  {"f1"},
			"front2":  {"f2"},
			"backend": {"b1", "b2"},
		},
		Hosts: map[string]models.Host{
			"t1":  {Address: "10.0.0.1"},
			"f1":  {Address: "10.0.0.2"},
			"f2":  {Address: "10.0.0.3"},
			"b1":  {Address: "10.0.0.4"},
			"b2":  {Address: "10.0.0.5"},
			"db1": {Address: "10.0.0.6"},
		},
	}
	h.o = &Orchestrator{
		Inventory: inv,
		Local:     h.local,
		Remotes:   h.remotes,
		Repo:      h.repo,
		Dumper:    h.dumper,
		Recorder:  h.recorder,
		Now:       func() time.Time { return time.Date(2018, 1, 2, 15, 4, 0, 0, time.UTC) },
	}
	return h
}
