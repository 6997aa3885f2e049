// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ravelid.dev/ravelid/internal/logging"
)

func testCollector() *Collector {
	logger := logging.New(logging.DefaultConfig())
	return NewCollector(logger)
}

func TestReportRoundUpdatesGauges(t *testing.T) {
	c := testCollector()
	c.ReportRound(RoundSummary{
		NodesKnown:         6,
		RankErrorNodes:     1,
		RelativeErrorNodes: 1,
		MissingInfoNodes:   2,
	})

	if got := testutil.ToFloat64(c.NodesKnown); got != 6 {
		t.Errorf("NodesKnown = %v, want 6", got)
	}
	if got := testutil.ToFloat64(c.RoundsCompleted); got != 1 {
		t.Errorf("RoundsCompleted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.MissingInfoNodes); got != 2 {
		t.Errorf("MissingInfoNodes = %v, want 2", got)
	}
}

func TestReportRoundIncrementsRoundsAcrossCalls(t *testing.T) {
	c := testCollector()
	c.ReportRound(RoundSummary{})
	c.ReportRound(RoundSummary{})
	if got := testutil.ToFloat64(c.RoundsCompleted); got != 2 {
		t.Errorf("RoundsCompleted = %v, want 2", got)
	}
}

func TestRecordDropLabelsByKind(t *testing.T) {
	c := testCollector()
	c.RecordDrop("global")
	c.RecordDrop("global")
	c.RecordDrop("small")

	if got := testutil.ToFloat64(c.PacketsDropped.WithLabelValues("global")); got != 2 {
		t.Errorf("global drops = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.PacketsDropped.WithLabelValues("small")); got != 1 {
		t.Errorf("small drops = %v, want 1", got)
	}
}
