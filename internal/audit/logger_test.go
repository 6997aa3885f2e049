// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package audit

import (
	"testing"

	"ravelid.dev/ravelid/internal/logging"
)

func testLogger() *Logger {
	return NewLogger(logging.New(logging.DefaultConfig()))
}

func TestLogVerdictDoesNotPanicOnEmptyLists(t *testing.T) {
	l := testLogger()
	l.LogVerdict(nil, nil)
}

func TestLogVerdictHandlesBothLists(t *testing.T) {
	l := testLogger()
	l.LogVerdict([]uint16{7, 9}, []uint16{3})
}

func TestLogFilterInstalledAndRejected(t *testing.T) {
	l := testLogger()
	l.LogFilterInstalled(42, "global")
	l.LogFilterRejected(42, "source address does not match any known route")
}

func TestLogRoundCompleted(t *testing.T) {
	l := testLogger()
	l.LogRoundCompleted(5, 1, 2)
}

func TestLogFilterEvicted(t *testing.T) {
	l := testLogger()
	l.LogFilterEvicted(99)
}
