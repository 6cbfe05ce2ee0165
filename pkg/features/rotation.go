package features

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationTimeFormat is the UTC timestamp format embedded in a retired log
// file's name. It has second precision; when a path rotates more than once
// within a second, RotateFile appends -1, -2, ... to the timestamp so the
// earlier retired segment is kept.
const RotationTimeFormat = "20060102-150405"

// RotationManager renames a file sink's current segment out of the way once
// it crosses its size threshold, and reclaims retired segments once they
// exceed a count or age limit.
type RotationManager struct {
	mu              sync.RWMutex
	maxAge          time.Duration
	maxFiles        int
	cleanupInterval time.Duration
	cleanupTicker   *time.Ticker
	cleanupDone     chan struct{}
	cleanupWg       sync.WaitGroup
	errorHandler    func(source, dest, msg string, err error)
	metricsHandler  func(string)

	compressionCallback func(path string)

	logPaths []string
	pathsMu  sync.RWMutex
}

// NewRotationManager creates a new rotation manager.
func NewRotationManager() *RotationManager {
	return &RotationManager{
		cleanupInterval: time.Hour,
	}
}

// SetErrorHandler sets the error handling function.
func (r *RotationManager) SetErrorHandler(handler func(source, dest, msg string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorHandler = handler
}

// SetCompressionCallback sets the callback invoked with a retired segment's
// path once it has been renamed out of the way.
func (r *RotationManager) SetCompressionCallback(callback func(path string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compressionCallback = callback
}

// SetMetricsHandler sets the metrics tracking function.
func (r *RotationManager) SetMetricsHandler(handler func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metricsHandler = handler
}

// AddLogPath adds a log path to be managed by this rotation manager.
func (r *RotationManager) AddLogPath(path string) {
	r.pathsMu.Lock()
	defer r.pathsMu.Unlock()

	for _, existing := range r.logPaths {
		if existing == path {
			return
		}
	}
	r.logPaths = append(r.logPaths, path)
}

// RemoveLogPath removes a log path from management.
func (r *RotationManager) RemoveLogPath(path string) {
	r.pathsMu.Lock()
	defer r.pathsMu.Unlock()

	for i, existing := range r.logPaths {
		if existing == path {
			r.logPaths = append(r.logPaths[:i], r.logPaths[i+1:]...)
			return
		}
	}
}

// SetMaxAge sets the maximum age retired segments are kept before removal.
func (r *RotationManager) SetMaxAge(duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.maxAge = duration

	if r.maxAge > 0 {
		r.startCleanupRoutine()
	} else if r.cleanupTicker != nil {
		r.stopCleanupRoutine()
	}
	return nil
}

// SetMaxFiles sets the maximum number of retired segments to keep.
func (r *RotationManager) SetMaxFiles(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxFiles = count
}

// SetCleanupInterval sets how often the background sweep checks for
// segments to reclaim.
func (r *RotationManager) SetCleanupInterval(interval time.Duration) {
	if interval < time.Minute {
		interval = time.Minute
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cleanupTicker != nil {
		r.stopCleanupRoutine()
		r.cleanupInterval = interval
		r.startCleanupRoutine()
	} else {
		r.cleanupInterval = interval
	}
}

func (r *RotationManager) startCleanupRoutine() {
	if r.cleanupTicker != nil || r.maxAge == 0 {
		return
	}

	r.cleanupTicker = time.NewTicker(r.cleanupInterval)
	r.cleanupDone = make(chan struct{})

	r.cleanupWg.Add(1)
	go func() {
		defer r.cleanupWg.Done()
		defer func() {
			if p := recover(); p != nil {
				if r.errorHandler != nil {
					r.errorHandler("cleanup", "", "panic in cleanup routine", fmt.Errorf("%v", p))
				}
			}
		}()

		for {
			select {
			case <-r.cleanupTicker.C:
				r.pathsMu.RLock()
				paths := make([]string, len(r.logPaths))
				copy(paths, r.logPaths)
				r.pathsMu.RUnlock()

				for _, path := range paths {
					if err := r.RunCleanup(path); err != nil && r.errorHandler != nil {
						r.errorHandler("cleanup", path, "cleanup sweep failed", err)
					}
				}
			case <-r.cleanupDone:
				return
			}
		}
	}()
}

func (r *RotationManager) stopCleanupRoutine() {
	if r.cleanupTicker == nil {
		return
	}

	r.cleanupTicker.Stop()
	if r.cleanupDone != nil {
		close(r.cleanupDone)
	}
	r.cleanupWg.Wait()

	r.cleanupTicker = nil
	r.cleanupDone = nil
}

// Start starts the background age-based cleanup sweep, if configured.
func (r *RotationManager) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxAge > 0 {
		r.startCleanupRoutine()
	}
}

// Stop stops the background cleanup sweep.
func (r *RotationManager) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCleanupRoutine()
}

// retiredName builds the name a currently-open segment takes once retired:
// app.log becomes app.<timestamp>.log, preserving the extension so glob
// patterns and tooling that expect ".log" keep working on retired files.
func retiredName(base string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	timestamp := time.Now().UTC().Format(RotationTimeFormat)
	return fmt.Sprintf("%s.%s%s", stem, timestamp, ext)
}

// RotateFile flushes writer, if given, renames path's current segment out
// of the way and returns the retired file's path. The handle stays open
// through the rename; the caller (the file sink) closes it afterwards and
// opens a new segment at path. If a retired segment or archive with the
// same timestamp already exists, a -1, -2, ... suffix is added to the
// timestamp instead of overwriting it.
func (r *RotationManager) RotateFile(path string, writer *bufio.Writer) (string, error) {
	if writer != nil {
		if err := writer.Flush(); err != nil {
			return "", fmt.Errorf("flushing log: %w", err)
		}
	}

	cleanPath := filepath.Clean(path)
	dir := filepath.Dir(cleanPath)
	name := retiredName(filepath.Base(cleanPath))
	ext := filepath.Ext(name)
	retired := filepath.Join(dir, name)
	taken := func(p string) bool {
		_, rawErr := os.Stat(p)
		_, lz4Err := os.Stat(p + ".lz4")
		return rawErr == nil || lz4Err == nil
	}
	for n := 1; taken(retired); n++ {
		retired = filepath.Join(dir, fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext))
	}

	if err := os.Rename(cleanPath, retired); err != nil {
		return "", fmt.Errorf("rotating log: %w", err)
	}

	r.mu.RLock()
	compressionCallback := r.compressionCallback
	metricsHandler := r.metricsHandler
	r.mu.RUnlock()

	if compressionCallback != nil {
		compressionCallback(retired)
	}
	if metricsHandler != nil {
		metricsHandler("rotation_completed")
	}

	return retired, nil
}

func retiredPattern(base string) *regexp.Regexp {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return regexp.MustCompile(fmt.Sprintf(`^%s\.(\d{8}-\d{6})(?:-\d+)?%s(?:\.lz4)?$`,
		regexp.QuoteMeta(stem), regexp.QuoteMeta(ext)))
}

// CleanupOldLogs removes retired segments (and their compressed archives)
// older than the configured max age.
func (r *RotationManager) CleanupOldLogs(logPath string) error {
	r.mu.RLock()
	maxAge := r.maxAge
	r.mu.RUnlock()
	if maxAge == 0 {
		return nil
	}
	if logPath == "" {
		return nil
	}

	dir := filepath.Dir(logPath)
	base := filepath.Base(logPath)

	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading log directory: %w", err)
	}

	pattern := retiredPattern(base)

	for _, file := range files {
		if file.IsDir() || file.Name() == base {
			continue
		}

		matches := pattern.FindStringSubmatch(file.Name())
		if len(matches) != 2 {
			continue
		}

		filePath := filepath.Join(dir, file.Name())

		fileTime, err := time.Parse(RotationTimeFormat, matches[1])
		if err != nil {
			if r.errorHandler != nil {
				r.errorHandler("cleanup", file.Name(), "error parsing timestamp", err)
			}
			continue
		}

		if time.Since(fileTime) > maxAge {
			if err := os.Remove(filePath); err != nil {
				if r.errorHandler != nil {
					r.errorHandler("cleanup", filePath, "failed to remove old log file", err)
				}
			} else if r.metricsHandler != nil {
				r.metricsHandler("cleanup_completed")
			}
		}
	}

	return nil
}

// CleanupOldFiles removes retired segments beyond the configured count
// limit, oldest first.
func (r *RotationManager) CleanupOldFiles(logPath string) error {
	r.mu.RLock()
	maxFiles := r.maxFiles
	r.mu.RUnlock()

	if maxFiles <= 0 {
		return nil
	}

	dir := filepath.Dir(logPath)
	base := filepath.Base(logPath)

	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading log directory: %w", err)
	}

	pattern := retiredPattern(base)

	type logFile struct {
		path      string
		timestamp string
	}
	var logFiles []logFile

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := pattern.FindStringSubmatch(file.Name())
		if len(matches) != 2 {
			continue
		}
		logFiles = append(logFiles, logFile{
			path:      filepath.Join(dir, file.Name()),
			timestamp: matches[1],
		})
	}

	sort.Slice(logFiles, func(i, j int) bool {
		return logFiles[i].timestamp > logFiles[j].timestamp
	})

	if len(logFiles) > maxFiles {
		for i := maxFiles; i < len(logFiles); i++ {
			if err := os.Remove(logFiles[i].path); err != nil {
				if r.errorHandler != nil {
					r.errorHandler("cleanup", logFiles[i].path, "failed to remove old log file (exceeded max files)", err)
				}
			} else if r.metricsHandler != nil {
				r.metricsHandler("cleanup_completed")
			}
		}
	}

	return nil
}

// RunCleanup runs both the age-based and count-based cleanup passes.
func (r *RotationManager) RunCleanup(logPath string) error {
	if err := r.CleanupOldLogs(logPath); err != nil {
		return err
	}
	return r.CleanupOldFiles(logPath)
}

// RotatedFileInfo describes one retired segment.
type RotatedFileInfo struct {
	Path         string
	Name         string
	Size         int64
	RotationTime time.Time
	IsCompressed bool
}

// GetRotatedFiles lists retired segments for logPath, newest first.
func (r *RotationManager) GetRotatedFiles(logPath string) ([]RotatedFileInfo, error) {
	dir := filepath.Dir(logPath)
	base := filepath.Base(logPath)

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading log directory: %w", err)
	}

	pattern := retiredPattern(base)

	var rotatedFiles []RotatedFileInfo
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		matches := pattern.FindStringSubmatch(file.Name())
		if len(matches) != 2 {
			continue
		}

		filePath := filepath.Join(dir, file.Name())
		fileInfo, err := os.Stat(filePath)
		if err != nil {
			continue
		}

		fileTime, err := time.Parse(RotationTimeFormat, matches[1])
		if err != nil {
			continue
		}

		rotatedFiles = append(rotatedFiles, RotatedFileInfo{
			Path:         filePath,
			Name:         file.Name(),
			Size:         fileInfo.Size(),
			RotationTime: fileTime,
			IsCompressed: strings.HasSuffix(file.Name(), ".lz4"),
		})
	}

	sort.Slice(rotatedFiles, func(i, j int) bool {
		return rotatedFiles[i].RotationTime.After(rotatedFiles[j].RotationTime)
	})

	return rotatedFiles, nil
}

// RotationStatus is a point-in-time snapshot of a RotationManager.
type RotationStatus struct {
	MaxAge          time.Duration
	MaxFiles        int
	CleanupInterval time.Duration
	IsRunning       bool
}

// GetStatus returns the current status of the rotation manager.
func (r *RotationManager) GetStatus() RotationStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RotationStatus{
		MaxAge:          r.maxAge,
		MaxFiles:        r.maxFiles,
		CleanupInterval: r.cleanupInterval,
		IsRunning:       r.cleanupTicker != nil,
	}
}

// GetMaxAge returns the maximum age for retired segments.
func (r *RotationManager) GetMaxAge() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxAge
}

// GetMaxFiles returns the maximum number of retired segments to keep.
func (r *RotationManager) GetMaxFiles() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxFiles
}

// GetCleanupInterval returns the cleanup sweep interval.
func (r *RotationManager) GetCleanupInterval() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cleanupInterval
}

// IsRunning reports whether the background cleanup sweep is active.
func (r *RotationManager) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cleanupTicker != nil
}
