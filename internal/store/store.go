// Package store is the durable persistence layer: scheduled playback entries,
// the last playback-state snapshot, and the pre-alarm volume record, all in a
// single SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrEntryNotFound reports a scheduled entry id with no stored record
var ErrEntryNotFound = errors.New("scheduled entry not found")

// Weekday tokens stored in repeat_days, Sunday first to match time.Weekday
var weekdayTokens = [7]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// WeekdayToken returns the stored token for a weekday
func WeekdayToken(d time.Weekday) string {
	return weekdayTokens[int(d)]
}

// ValidWeekdayToken reports whether token is one of SUN..SAT
func ValidWeekdayToken(token string) bool {
	for _, t := range weekdayTokens {
		if t == token {
			return true
		}
	}
	return false
}

// ScheduledEntry is a user-defined scheduled playback request. An empty
// RepeatDays set means a one-time entry.
type ScheduledEntry struct {
	ID            int64    `json:"id"`
	TrackURI      string   `json:"trackUri"`
	TrackLabel    string   `json:"trackLabel"`
	Hour          int      `json:"hour"`
	Minute        int      `json:"minute"`
	Enabled       bool     `json:"enabled"`
	TargetVolume  float64  `json:"targetVolume"`
	RepeatDays    []string `json:"repeatDays"`
	SnoozeEnabled bool     `json:"snoozeEnabled"`
	Label         string   `json:"label,omitempty"`
	CreatedAt     int64    `json:"createdAt"`
}

// Repeating reports whether the entry fires on a weekly cycle
func (e *ScheduledEntry) Repeating() bool {
	return len(e.RepeatDays) > 0
}

// FiresOn reports whether the entry is eligible to play on the given weekday.
// One-time entries are always eligible.
func (e *ScheduledEntry) FiresOn(d time.Weekday) bool {
	if !e.Repeating() {
		return true
	}
	token := WeekdayToken(d)
	for _, day := range e.RepeatDays {
		if day == token {
			return true
		}
	}
	return false
}

func (e *ScheduledEntry) validate() error {
	if e.Hour < 0 || e.Hour > 23 {
		return fmt.Errorf("hour %d out of range [0,23]", e.Hour)
	}
	if e.Minute < 0 || e.Minute > 59 {
		return fmt.Errorf("minute %d out of range [0,59]", e.Minute)
	}
	if e.TargetVolume < 0 || e.TargetVolume > 1 {
		return fmt.Errorf("target volume %f out of range [0,1]", e.TargetVolume)
	}
	if e.TrackURI == "" {
		return errors.New("track reference is required")
	}
	for _, day := range e.RepeatDays {
		if !ValidWeekdayToken(day) {
			return fmt.Errorf("invalid repeat day %q", day)
		}
	}
	return nil
}

// PlaybackStateSnapshot is the single persisted playback-state record,
// overwritten in place rather than appended
type PlaybackStateSnapshot struct {
	TrackURI       string  `json:"trackUri"`
	PositionMillis int64   `json:"positionMillis"`
	PlaybackSpeed  float64 `json:"playbackSpeed"`
	ShuffleEnabled bool    `json:"shuffleEnabled"`
	RepeatMode     string  `json:"repeatMode"`
	Volume         float64 `json:"volume"`
	SavedAt        int64   `json:"savedAt"`
}

// Store wraps the SQLite database. sql.DB handles its own locking so the
// store carries no mutex of its own.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath and ensures the
// schema exists
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[STORE] Opened database: %s", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS scheduled_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_uri TEXT NOT NULL,
			track_label TEXT NOT NULL DEFAULT '',
			hour INTEGER NOT NULL,
			minute INTEGER NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			target_volume REAL NOT NULL DEFAULT 1.0,
			repeat_days TEXT NOT NULL DEFAULT '',
			snooze_enabled INTEGER NOT NULL DEFAULT 0,
			label TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS playback_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			track_uri TEXT NOT NULL,
			position_millis INTEGER NOT NULL,
			playback_speed REAL NOT NULL,
			shuffle_enabled INTEGER NOT NULL,
			repeat_mode TEXT NOT NULL,
			volume REAL NOT NULL,
			saved_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS volume_override (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			prior_volume REAL NOT NULL,
			set_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// CreateEntry inserts a new scheduled entry and returns it with its
// generated id and creation time filled in
func (s *Store) CreateEntry(entry ScheduledEntry) (*ScheduledEntry, error) {
	if err := entry.validate(); err != nil {
		return nil, err
	}

	entry.CreatedAt = time.Now().UnixMilli()

	res, err := s.db.Exec(`
		INSERT INTO scheduled_entries
			(track_uri, track_label, hour, minute, enabled, target_volume, repeat_days, snooze_enabled, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TrackURI, entry.TrackLabel, entry.Hour, entry.Minute,
		boolToInt(entry.Enabled), entry.TargetVolume,
		strings.Join(entry.RepeatDays, ","), boolToInt(entry.SnoozeEnabled),
		entry.Label, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read entry id: %w", err)
	}
	entry.ID = id

	log.Printf("[STORE] Created entry %d: %02d:%02d %s", entry.ID, entry.Hour, entry.Minute, entry.TrackURI)
	return &entry, nil
}

// UpdateEntry rewrites an existing entry in place
func (s *Store) UpdateEntry(entry ScheduledEntry) error {
	if err := entry.validate(); err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE scheduled_entries
		SET track_uri = ?, track_label = ?, hour = ?, minute = ?, enabled = ?,
			target_volume = ?, repeat_days = ?, snooze_enabled = ?, label = ?
		WHERE id = ?`,
		entry.TrackURI, entry.TrackLabel, entry.Hour, entry.Minute,
		boolToInt(entry.Enabled), entry.TargetVolume,
		strings.Join(entry.RepeatDays, ","), boolToInt(entry.SnoozeEnabled),
		entry.Label, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to update entry %d: %w", entry.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// GetEntry loads a single entry by id
func (s *Store) GetEntry(id int64) (*ScheduledEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, track_uri, track_label, hour, minute, enabled, target_volume, repeat_days, snooze_enabled, label, created_at
		FROM scheduled_entries WHERE id = ?`, id)
	return scanEntry(row)
}

// ListEntries returns all stored entries ordered by wall-clock time
func (s *Store) ListEntries() ([]*ScheduledEntry, error) {
	return s.listWhere("1 = 1")
}

// ListEnabledEntries returns the entries with enabled=true, used by boot
// recovery to rearm timers
func (s *Store) ListEnabledEntries() ([]*ScheduledEntry, error) {
	return s.listWhere("enabled = 1")
}

func (s *Store) listWhere(cond string) ([]*ScheduledEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, track_uri, track_label, hour, minute, enabled, target_volume, repeat_days, snooze_enabled, label, created_at
		FROM scheduled_entries WHERE ` + cond + ` ORDER BY hour, minute, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*ScheduledEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// SetEntryEnabled toggles a single entry without rewriting the rest of it
func (s *Store) SetEntryEnabled(id int64, enabled bool) error {
	res, err := s.db.Exec(`UPDATE scheduled_entries SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("failed to toggle entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// DeleteEntry removes an entry by id
func (s *Store) DeleteEntry(id int64) error {
	res, err := s.db.Exec(`DELETE FROM scheduled_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// SavePlaybackState overwrites the single playback-state snapshot
func (s *Store) SavePlaybackState(snap PlaybackStateSnapshot) error {
	if snap.PositionMillis < 0 {
		snap.PositionMillis = 0
	}
	snap.SavedAt = time.Now().UnixMilli()

	_, err := s.db.Exec(`
		INSERT INTO playback_state (id, track_uri, position_millis, playback_speed, shuffle_enabled, repeat_mode, volume, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			track_uri = excluded.track_uri,
			position_millis = excluded.position_millis,
			playback_speed = excluded.playback_speed,
			shuffle_enabled = excluded.shuffle_enabled,
			repeat_mode = excluded.repeat_mode,
			volume = excluded.volume,
			saved_at = excluded.saved_at`,
		snap.TrackURI, snap.PositionMillis, snap.PlaybackSpeed,
		boolToInt(snap.ShuffleEnabled), snap.RepeatMode, snap.Volume, snap.SavedAt)
	if err != nil {
		return fmt.Errorf("failed to save playback state: %w", err)
	}
	return nil
}

// LoadPlaybackState returns the persisted snapshot, or (nil, nil) when no
// snapshot has ever been written
func (s *Store) LoadPlaybackState() (*PlaybackStateSnapshot, error) {
	row := s.db.QueryRow(`
		SELECT track_uri, position_millis, playback_speed, shuffle_enabled, repeat_mode, volume, saved_at
		FROM playback_state WHERE id = 1`)

	var snap PlaybackStateSnapshot
	var shuffle int
	err := row.Scan(&snap.TrackURI, &snap.PositionMillis, &snap.PlaybackSpeed,
		&shuffle, &snap.RepeatMode, &snap.Volume, &snap.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load playback state: %w", err)
	}
	snap.ShuffleEnabled = shuffle != 0
	return &snap, nil
}

// SaveVolumeOverride records the output volume in effect before an alarm
// raises it, so it survives a crash mid-alarm
func (s *Store) SaveVolumeOverride(priorVolume float64) error {
	_, err := s.db.Exec(`
		INSERT INTO volume_override (id, prior_volume, set_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET prior_volume = excluded.prior_volume, set_at = excluded.set_at`,
		priorVolume, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save volume override: %w", err)
	}
	return nil
}

// LoadVolumeOverride returns the recorded pre-override volume, or
// (0, false, nil) when none is pending
func (s *Store) LoadVolumeOverride() (float64, bool, error) {
	row := s.db.QueryRow(`SELECT prior_volume FROM volume_override WHERE id = 1`)

	var v float64
	err := row.Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load volume override: %w", err)
	}
	return v, true, nil
}

// ClearVolumeOverride removes the pending volume record after it has been
// restored
func (s *Store) ClearVolumeOverride() error {
	_, err := s.db.Exec(`DELETE FROM volume_override WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to clear volume override: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*ScheduledEntry, error) {
	var entry ScheduledEntry
	var enabled, snooze int
	var repeatDays string

	err := row.Scan(&entry.ID, &entry.TrackURI, &entry.TrackLabel,
		&entry.Hour, &entry.Minute, &enabled, &entry.TargetVolume,
		&repeatDays, &snooze, &entry.Label, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	entry.Enabled = enabled != 0
	entry.SnoozeEnabled = snooze != 0
	if repeatDays != "" {
		entry.RepeatDays = strings.Split(repeatDays, ",")
	}
	return &entry, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
