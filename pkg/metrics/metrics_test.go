package metrics_test

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/metrics"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
)

func TestRunMetrics_ConcurrentAdders(t *testing.T) {
	m := metrics.NewRunMetrics()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AddBackedUp(1)
			m.AddFailed(2)
			m.ObserveStage(metrics.StageExtract, time.Millisecond)
		}()
	}
	wg.Wait()

	if got := m.BackedUp.Load(); got != 10 {
		t.Errorf("expected BackedUp 10, got %d", got)
	}
	if got := m.Failed.Load(); got != 20 {
		t.Errorf("expected Failed 20, got %d", got)
	}
	if got := m.StageTotal(metrics.StageExtract); got != 10*time.Millisecond {
		t.Errorf("expected 10ms in extract, got %v", got)
	}
}

func TestRunMetrics_LogSummary(t *testing.T) {
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })

	m := metrics.NewRunMetrics()
	m.AddBackedUp(2)
	m.AddUpToDate(1)
	m.AddSkipped(3)
	m.LogSummary("Run summary")

	output := logBuf.String()
	for _, want := range []string{`msg="Run summary"`, "backed_up=2", "up_to_date=1", "skipped=3", "failed=0", "compress_time=", "duration="} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in log output. Got: %s", want, output)
		}
	}
}

func TestStageString(t *testing.T) {
	if metrics.StagePrune.String() != "prune" {
		t.Errorf("unexpected stage name %q", metrics.StagePrune.String())
	}
	if metrics.Stage(99).String() != "unknown" {
		t.Errorf("expected unknown for out of range stage")
	}
}

func TestNoopMetrics(t *testing.T) {
	m := &metrics.NoopMetrics{}
	m.AddBackedUp(1)
	m.AddUpToDate(1)
	m.AddSkipped(1)
	m.AddFailed(1)
	m.ObserveStage(metrics.StageProbe, time.Second)
	m.LogSummary("noop")
}
