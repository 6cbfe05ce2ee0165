package features

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"
)

// CompressionType defines the compression algorithm used for retired
// segments.
type CompressionType int

const (
	// CompressionNone disables compression.
	CompressionNone CompressionType = iota
	// CompressionLZ4 compresses retired segments with LZ4.
	CompressionLZ4
)

// DefaultCompressionLevel is the LZ4 compression level a CompressionManager
// uses until SetLevel overrides it.
const DefaultCompressionLevel = 4

// CompressionManager runs a pool of workers that compress retired file
// segments off the write path, and reclaims archives beyond a count or age
// limit.
type CompressionManager struct {
	mu              sync.RWMutex
	compressionType CompressionType
	compressMinAge  int
	compressWorkers int
	compressLevel   int
	maxArchives     int
	maxArchiveAge   time.Duration
	compressCh      chan string
	compressWg      sync.WaitGroup
	errorHandler    func(source, dest, msg string, err error)
	metricsHandler  func(string)
}

// NewCompressionManager creates a new compression manager.
func NewCompressionManager() *CompressionManager {
	return &CompressionManager{
		compressionType: CompressionNone,
		compressMinAge:  1,
		compressWorkers: 1,
		compressLevel:   DefaultCompressionLevel,
	}
}

// SetErrorHandler sets the error handling function.
func (c *CompressionManager) SetErrorHandler(handler func(source, dest, msg string, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = handler
}

// SetMetricsHandler sets the metrics tracking function.
func (c *CompressionManager) SetMetricsHandler(handler func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metricsHandler = handler
}

// SetCompression enables or disables compression for retired segments.
func (c *CompressionManager) SetCompression(compressionType CompressionType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if compressionType != CompressionNone && compressionType != CompressionLZ4 {
		return fmt.Errorf("invalid compression type: %d", compressionType)
	}

	previousType := c.compressionType
	c.compressionType = compressionType

	if c.compressionType != CompressionNone && previousType == CompressionNone {
		c.startWorkers()
	} else if c.compressionType == CompressionNone && previousType != CompressionNone {
		c.stopWorkers()
	}

	return nil
}

// SetMinAge records a minimum rotation count, reported back by GetMinAge
// and GetStatus. Compression does not consult it: every queued segment is
// compressed.
func (c *CompressionManager) SetMinAge(age int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compressMinAge = age
}

// SetMaxArchives caps the number of compressed archives kept in the
// directory of each compressed segment; every .lz4 file in that directory
// counts toward it. 0 disables count-based eviction.
func (c *CompressionManager) SetMaxArchives(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxArchives = n
}

// SetMaxArchiveAge caps how long a compressed archive is kept; 0 disables
// age-based eviction.
func (c *CompressionManager) SetMaxArchiveAge(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxArchiveAge = d
}

// SetWorkers sets the number of compression worker goroutines.
func (c *CompressionManager) SetWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.compressionType != CompressionNone {
		c.compressWorkers = workers
		c.stopWorkers()
		c.startWorkers()
	} else {
		c.compressWorkers = workers
	}
}

// SetLevel sets the LZ4 compression level, clamped to the codec's 1-9
// range.
func (c *CompressionManager) SetLevel(level int) {
	if level < 1 {
		level = 1
	} else if level > 9 {
		level = 9
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compressLevel = level
}

// GetType returns the current compression type.
func (c *CompressionManager) GetType() CompressionType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.compressionType
}

// GetMinAge returns the minimum age for compression.
func (c *CompressionManager) GetMinAge() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.compressMinAge
}

func (c *CompressionManager) startWorkers() {
	if c.compressCh != nil {
		return
	}
	ch := make(chan string, 100)
	c.compressCh = ch

	for i := 0; i < c.compressWorkers; i++ {
		c.compressWg.Add(1)
		go func() {
			defer c.compressWg.Done()
			for path := range ch {
				if err := c.compressFile(path); err != nil {
					if c.errorHandler != nil {
						c.errorHandler("compress", "", fmt.Sprintf("failed to compress file %s", path), err)
					}
				}
			}
		}()
	}
}

func (c *CompressionManager) stopWorkers() {
	if c.compressCh != nil {
		close(c.compressCh)
		c.compressWg.Wait()
		c.compressCh = nil
	}
}

// Start starts the compression manager.
func (c *CompressionManager) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compressionType != CompressionNone {
		c.startWorkers()
	}
}

// Stop stops the compression manager, draining any queued work first.
func (c *CompressionManager) Stop() {
	c.mu.Lock()
	ch := c.compressCh
	c.compressCh = nil
	c.mu.Unlock()
	if ch != nil {
		close(ch)
		c.compressWg.Wait()
	}
}

// QueueFile adds a retired segment to the compression queue.
func (c *CompressionManager) QueueFile(path string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.compressionType != CompressionNone && c.compressCh != nil {
		select {
		case c.compressCh <- path:
		default:
			if c.errorHandler != nil {
				c.errorHandler("compress", "", fmt.Sprintf("compression queue full, skipping %s", path), nil)
			}
		}
	}
}

// QueueDepth reports how many segments are waiting to be compressed, used
// by the lifecycle controller's drain wait.
func (c *CompressionManager) QueueDepth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.compressCh == nil {
		return 0
	}
	return len(c.compressCh)
}

func (c *CompressionManager) compressFile(path string) error {
	c.mu.RLock()
	compressionType := c.compressionType
	c.mu.RUnlock()

	if compressionType == CompressionNone {
		return nil
	}

	switch compressionType {
	case CompressionLZ4:
		if err := c.compressFileLZ4(path); err != nil {
			return err
		}
		c.evictArchives(path)
		return nil
	default:
		return fmt.Errorf("unsupported compression type: %v", compressionType)
	}
}

// lz4Levels maps a 1-9 configured level onto the codec's named constants.
var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// compressFileLZ4 compresses path in place, replacing it with path+".lz4".
// The archive is written to path+".lz4.tmp", synced, and renamed, so the
// .lz4 name only ever refers to a complete archive.
func (c *CompressionManager) compressFileLZ4(path string) (err error) {
	c.mu.RLock()
	level := c.compressLevel
	c.mu.RUnlock()

	cleanPath := filepath.Clean(path)

	if _, statErr := os.Stat(cleanPath); os.IsNotExist(statErr) {
		return nil
	}

	compressedPath := cleanPath + ".lz4"
	tmpPath := compressedPath + ".tmp"

	src, err := os.Open(cleanPath)
	if err != nil {
		return fmt.Errorf("opening source file for compression: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating compressed file: %w", err)
	}

	cleanupDst := true
	defer func() {
		if cleanupDst {
			dst.Close()
			if err != nil {
				_ = os.Remove(tmpPath)
			}
		}
	}()

	zw := lz4.NewWriter(dst)
	if err = zw.Apply(lz4.CompressionLevelOption(lz4Levels[level-1])); err != nil {
		return fmt.Errorf("configuring lz4 compression level: %w", err)
	}
	if _, err = io.Copy(zw, src); err != nil {
		return fmt.Errorf("compressing file: %w", err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("closing lz4 writer: %w", err)
	}
	if err = dst.Sync(); err != nil {
		return fmt.Errorf("syncing compressed file: %w", err)
	}
	if err = dst.Close(); err != nil {
		return fmt.Errorf("closing compressed file: %w", err)
	}
	cleanupDst = false
	if err = os.Rename(tmpPath, compressedPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("publishing compressed file: %w", err)
	}

	if err := os.Remove(cleanPath); err != nil {
		_ = os.Remove(compressedPath)
		return fmt.Errorf("removing original file after compression: %w", err)
	}

	if c.metricsHandler != nil {
		c.metricsHandler("compression_completed")
	}

	return nil
}

// evictArchives reclaims .lz4 archives in the directory of retiredPath,
// newest first by modification time, beyond the configured count or age
// limit. Every .lz4 file in that directory is counted, whichever log it
// came from. Best-effort: failures are reported to the error handler and
// otherwise ignored.
func (c *CompressionManager) evictArchives(retiredPath string) {
	c.mu.RLock()
	maxArchives := c.maxArchives
	maxAge := c.maxArchiveAge
	c.mu.RUnlock()

	if maxArchives <= 0 && maxAge <= 0 {
		return
	}

	dir := filepath.Dir(retiredPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	type archive struct {
		path    string
		modTime time.Time
	}
	var archives []archive
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lz4" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		archives = append(archives, archive{path: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].modTime.After(archives[j].modTime)
	})

	now := time.Now()
	for i, a := range archives {
		expired := maxAge > 0 && now.Sub(a.modTime) > maxAge
		overflow := maxArchives > 0 && i >= maxArchives
		if !expired && !overflow {
			continue
		}
		if err := os.Remove(a.path); err != nil {
			if c.errorHandler != nil {
				c.errorHandler("compress", a.path, "failed to evict archive", err)
			}
			continue
		}
		if c.metricsHandler != nil {
			c.metricsHandler("archive_evicted")
		}
	}
}

// GetStatus returns the current status of the compression manager.
func (c *CompressionManager) GetStatus() CompressionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := CompressionStatus{
		Type:      c.compressionType,
		MinAge:    c.compressMinAge,
		Workers:   c.compressWorkers,
		IsRunning: c.compressCh != nil,
	}

	if c.compressCh != nil {
		status.QueueLength = len(c.compressCh)
		status.QueueCapacity = cap(c.compressCh)
	}

	return status
}

// CompressionStatus is a point-in-time snapshot of a CompressionManager.
type CompressionStatus struct {
	Type          CompressionType
	MinAge        int
	Workers       int
	IsRunning     bool
	QueueLength   int
	QueueCapacity int
}

// CompressFileSync compresses a file synchronously, for callers that must
// wait for compression to finish, such as the file sink's Compress command.
func (c *CompressionManager) CompressFileSync(path string) error {
	return c.compressFile(path)
}

// GetSupportedCompressionTypes returns all supported compression types.
func GetSupportedCompressionTypes() []CompressionType {
	return []CompressionType{
		CompressionNone,
		CompressionLZ4,
	}
}

// CompressionTypeString returns the string representation of a
// CompressionType.
func CompressionTypeString(ct CompressionType) string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCompressionType parses a string into a CompressionType.
func ParseCompressionType(s string) (CompressionType, error) {
	switch s {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, fmt.Errorf("unsupported compression type: %s", s)
	}
}
