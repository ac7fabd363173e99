// Package history keeps the summary of the last test run per task so it can
// be shown again without rerunning anything.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/morozRed/kiln/internal/fileutil"
	"github.com/morozRed/kiln/internal/testrun"
)

const (
	reportVersion = 1
	reportSuffix  = ".json.zst"
)

// ErrNoReport is returned by Load when the task has never been recorded.
var ErrNoReport = errors.New("no report recorded")

// ErrInvalidTask is returned for task names that cannot name a report file.
var ErrInvalidTask = errors.New("invalid task name")

var taskPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

// Report is the persisted outcome of one test run.
type Report struct {
	Version    int              `json:"version"`
	Task       string           `json:"task"`
	FinishedAt time.Time        `json:"finished_at"`
	Elapsed    time.Duration    `json:"elapsed"`
	Files      []string         `json:"files"`
	Counts     testrun.Counts   `json:"counts"`
	Failures   []testrun.Result `json:"failures,omitempty"`
}

// FromResultSet summarizes set. Only failures and timeouts are kept in full.
func FromResultSet(task string, files []string, set *testrun.ResultSet, finishedAt time.Time) Report {
	return Report{
		Version:    reportVersion,
		Task:       task,
		FinishedAt: finishedAt,
		Elapsed:    set.Elapsed,
		Files:      append([]string(nil), files...),
		Counts:     set.Count(),
		Failures:   set.AllMatching(testrun.Fail, testrun.Timeout),
	}
}

// Summary renders the report's counts the way a live run does.
func (r Report) Summary() string {
	return testrun.RenderSummary(r.Counts, r.Elapsed)
}

// Save writes r to dir, replacing the previous report for the same task.
func Save(dir string, r Report) error {
	if err := ValidateTask(r.Task); err != nil {
		return err
	}
	if r.Version == 0 {
		r.Version = reportVersion
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	compressed, err := compressZstd(data)
	if err != nil {
		return fmt.Errorf("compress report: %w", err)
	}
	return fileutil.WriteFileAtomic(Path(dir, r.Task), compressed)
}

// Load reads the last report for task from dir.
func Load(dir, task string) (*Report, error) {
	if err := ValidateTask(task); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(Path(dir, task))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w for %s", ErrNoReport, task)
		}
		return nil, err
	}
	raw, err := decompressZstd(data)
	if err != nil {
		return nil, fmt.Errorf("decompress report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if r.Version != reportVersion {
		return nil, fmt.Errorf("%w for %s (report version %d is not supported)", ErrNoReport, task, r.Version)
	}
	return &r, nil
}

// ValidateTask checks that task is a plain task name and not a path.
func ValidateTask(task string) error {
	if !taskPattern.MatchString(task) || task != filepath.Base(task) {
		return fmt.Errorf("%w: %q", ErrInvalidTask, task)
	}
	return nil
}

// Path is the report file for task.
func Path(dir, task string) string {
	return filepath.Join(dir, task+reportSuffix)
}

func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
