package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
)

// DefaultTail is the number of events returned when no limit is given
const DefaultTail = 200

// AppendEvent appends one JSON line to the run's log.jsonl
func (s *Store) AppendEvent(projectID, runID, eventType, line string, data any) error {
	if !validID(projectID) || !validID(runID) {
		return fmt.Errorf("%w: %s/%s", ErrInvalidID, projectID, runID)
	}

	ev := domain.RunEvent{
		Timestamp: domain.NowISO(),
		Type:      eventType,
		Line:      line,
		Data:      data,
	}
	encoded, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	path := s.EventLogPath(projectID, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	// One write per event keeps concurrent appenders from interleaving lines
	_, err = f.Write(append(encoded, '\n'))
	return err
}

// TailEvents returns the last n parseable events of a run, oldest first.
// Unparseable lines are skipped. A missing log yields no events.
func (s *Store) TailEvents(projectID, runID string, n int) ([]domain.RunEvent, error) {
	if n <= 0 {
		n = DefaultTail
	}
	if !validID(projectID) || !validID(runID) {
		return nil, nil
	}

	data, err := os.ReadFile(s.EventLogPath(projectID, runID))
	if os.IsNotExist(err) {
		return []domain.RunEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}

	var lines [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	events := make([]domain.RunEvent, 0, len(lines))
	for _, l := range lines {
		var ev domain.RunEvent
		if err := json.Unmarshal(l, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
