// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package audit records detector verdicts and firewall decisions as
// structured log events with a stable event-type vocabulary, so operators
// can alert on them without parsing free-form log text.
package audit

import (
	"time"

	"github.com/google/uuid"

	"ravelid.dev/ravelid/internal/logging"
)

// EventType identifies the kind of audit event.
type EventType string

const (
	EventNodeFlaggedMalicious EventType = "node_flagged_malicious"
	EventNodeMissingInfo      EventType = "node_missing_info"
	EventNodeCleared          EventType = "node_cleared"

	EventFilterInstalled EventType = "filter_installed"
	EventFilterRejected  EventType = "filter_rejected"
	EventFilterEvicted   EventType = "filter_evicted"

	EventRoundCompleted EventType = "round_completed"
)

// Severity is the log level an event is recorded at.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Event is a single audit log entry.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	Severity  Severity       `json:"severity"`
	ShortID   uint16         `json:"short_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Logger writes audit events through the daemon's structured logger.
type Logger struct {
	logger *logging.Logger
}

// NewLogger builds a Logger backed by the given structured logger.
func NewLogger(logger *logging.Logger) *Logger {
	return &Logger{logger: logger}
}

// LogEvent records a single audit event, defaulting its id and timestamp.
func (l *Logger) LogEvent(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	args := []any{"event_id", event.ID, "event_type", event.EventType, "short_id", event.ShortID, "reason", event.Reason}
	for k, v := range event.Metadata {
		args = append(args, k, v)
	}

	switch event.Severity {
	case SeverityWarn:
		l.logger.Warn("AUDIT", args...)
	case SeverityError:
		l.logger.Error("AUDIT", args...)
	default:
		l.logger.Info("AUDIT", args...)
	}
}

// LogVerdict records a detector verdict: one warn-level event per confirmed
// liar, one info-level event per node whose data is missing or stale.
func (l *Logger) LogVerdict(liars, missingInfo []uint16) {
	for _, id := range liars {
		l.LogEvent(Event{
			EventType: EventNodeFlaggedMalicious,
			Severity:  SeverityWarn,
			ShortID:   id,
			Reason:    "rank-consistency and child-parent relation checks both flagged this node in the same round",
		})
	}
	for _, id := range missingInfo {
		l.LogEvent(Event{
			EventType: EventNodeMissingInfo,
			Severity:  SeverityInfo,
			ShortID:   id,
			Reason:    "no mapping reply within twice the recent window",
		})
	}
}

// LogFilterInstalled records a firewall filter install decision.
func (l *Logger) LogFilterInstalled(destShort uint16, kind string) {
	l.LogEvent(Event{
		EventType: EventFilterInstalled,
		Severity:  SeverityInfo,
		ShortID:   destShort,
		Metadata:  map[string]any{"kind": kind},
	})
}

// LogFilterRejected records a rejected install request (anti-spoof or
// malformed request).
func (l *Logger) LogFilterRejected(destShort uint16, reason string) {
	l.LogEvent(Event{
		EventType: EventFilterRejected,
		Severity:  SeverityWarn,
		ShortID:   destShort,
		Reason:    reason,
	})
}

// LogFilterEvicted records a small-filter slot being overwritten by
// round-robin eviction because the table was full.
func (l *Logger) LogFilterEvicted(destShort uint16) {
	l.LogEvent(Event{
		EventType: EventFilterEvicted,
		Severity:  SeverityWarn,
		ShortID:   destShort,
		Reason:    "small filter table full, round-robin slot overwritten",
	})
}

// LogRoundCompleted records the summary of a completed mapping round.
func (l *Logger) LogRoundCompleted(nodesKnown, liars, missingInfo int) {
	l.LogEvent(Event{
		EventType: EventRoundCompleted,
		Severity:  SeverityInfo,
		Metadata: map[string]any{
			"nodes_known":  nodesKnown,
			"liars":        liars,
			"missing_info": missingInfo,
		},
	})
}
