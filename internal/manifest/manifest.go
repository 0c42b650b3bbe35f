// Package manifest keeps a SQLite ledger of every scenario run so each
// capture file can be traced back to the parameters that produced it.
package manifest

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RunRecord is one finished scenario run.
type RunRecord struct {
	gorm.Model
	RunID          string `gorm:"uniqueIndex;not null"`
	Label          string `gorm:"index;not null"`
	Variant        string `gorm:"not null"`
	Resolver       string
	Delay          int
	CommandCount   int
	ThrottleTime   int
	RequestMaxSize int
	FileSize       int
	CaptureFile    string
	Outcome        string // "completed", "aborted"
	Phase          string // last phase entered before reset
	Error          string
	CommandsSent   int
	StartedAt      time.Time
	EndedAt        time.Time
}

// Duration is the wall time of the run.
func (r *RunRecord) Duration() time.Duration { return r.EndedAt.Sub(r.StartedAt) }

// Store persists run records.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("migrating manifest %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Save inserts r.
func (s *Store) Save(r *RunRecord) error {
	return s.db.Create(r).Error
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]RunRecord, error) {
	var out []RunRecord
	err := s.db.Order("started_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// ByCapture finds the run that wrote file.
func (s *Store) ByCapture(file string) (*RunRecord, error) {
	var r RunRecord
	if err := s.db.Where("capture_file = ?", file).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CountByOutcome tallies runs per outcome for a label; an empty label
// counts every run.
func (s *Store) CountByOutcome(label string) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		N       int64
	}
	q := s.db.Model(&RunRecord{}).Select("outcome, count(*) as n").Group("outcome")
	if label != "" {
		q = q.Where("label = ?", label)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.N
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
