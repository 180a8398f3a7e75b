package sessionlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// maxRecordSize bounds a single log line when reading back.
const maxRecordSize = 4 * 1024 * 1024

// Record is one persisted log line.
type Record struct {
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	Level     Level           `json:"level"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SessionLog groups the records of one session.
type SessionLog struct {
	SessionID string   `json:"sessionId"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Logs      []Record `json:"logs"`
}

// DayLog is a day's log file grouped by session, newest session first.
type DayLog struct {
	LogFile      string       `json:"logFile"`
	Exists       bool         `json:"exists"`
	SessionCount int          `json:"sessionCount"`
	Sessions     []SessionLog `json:"sessions"`
}

// ReadDay loads the log file of the given day. A missing file yields an empty DayLog.
func (s *Sink) ReadDay(day time.Time) (*DayLog, error) {
	path := s.PathFor(day)
	out := &DayLog{LogFile: path, Sessions: []SessionLog{}}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	sessions, err := groupRecords(f)
	if err != nil {
		return nil, err
	}

	out.Exists = true
	for i := len(sessions) - 1; i >= 0; i-- {
		out.Sessions = append(out.Sessions, *sessions[i])
	}
	out.SessionCount = len(out.Sessions)
	return out, nil
}

// groupRecords groups records by session id in order of first appearance.
// Lines that are not valid records are skipped.
func groupRecords(r io.Reader) ([]*SessionLog, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)

	var ordered []*SessionLog
	index := make(map[string]*SessionLog)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.SessionID == "" {
			continue
		}

		sl, ok := index[rec.SessionID]
		if !ok {
			sl = &SessionLog{SessionID: rec.SessionID, StartTime: rec.Timestamp}
			index[rec.SessionID] = sl
			ordered = append(ordered, sl)
		}
		sl.Logs = append(sl.Logs, rec)
		sl.EndTime = rec.Timestamp
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return ordered, nil
}
