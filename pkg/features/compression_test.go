package features

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"
)

func TestNewCompressionManager(t *testing.T) {
	cm := NewCompressionManager()
	if cm == nil {
		t.Fatal("NewCompressionManager returned nil")
	}
	if cm.compressionType != CompressionNone {
		t.Errorf("expected compression type CompressionNone, got %v", cm.compressionType)
	}
	if cm.compressMinAge != 1 {
		t.Errorf("expected compress min age 1, got %d", cm.compressMinAge)
	}
	if cm.compressWorkers != 1 {
		t.Errorf("expected compress workers 1, got %d", cm.compressWorkers)
	}
}

func TestSetCompression(t *testing.T) {
	cm := NewCompressionManager()

	tests := []struct {
		name            string
		compressionType CompressionType
		expectError     bool
	}{
		{"none", CompressionNone, false},
		{"lz4", CompressionLZ4, false},
		{"invalid", CompressionType(99), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cm.SetCompression(tt.compressionType)
			if tt.expectError && err == nil {
				t.Error("expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.expectError && cm.GetType() != tt.compressionType {
				t.Errorf("GetType() = %v, want %v", cm.GetType(), tt.compressionType)
			}
		})
	}
}

func TestSetMinAge(t *testing.T) {
	cm := NewCompressionManager()
	cm.SetMinAge(5)
	if cm.GetMinAge() != 5 {
		t.Errorf("GetMinAge() = %d, want 5", cm.GetMinAge())
	}
}

func TestSetWorkers(t *testing.T) {
	cm := NewCompressionManager()

	tests := []struct {
		workers  int
		expected int
	}{
		{0, 1},
		{5, 5},
		{-1, 1},
	}

	for _, tt := range tests {
		cm.SetWorkers(tt.workers)
		cm.mu.RLock()
		actual := cm.compressWorkers
		cm.mu.RUnlock()
		if actual != tt.expected {
			t.Errorf("SetWorkers(%d): compressWorkers = %d, want %d", tt.workers, actual, tt.expected)
		}
	}
}

func TestSetLevel(t *testing.T) {
	cm := NewCompressionManager()

	tests := []struct {
		level    int
		expected int
	}{
		{4, 4},
		{0, 1},
		{9, 9},
		{15, 9},
	}

	for _, tt := range tests {
		cm.SetLevel(tt.level)
		cm.mu.RLock()
		actual := cm.compressLevel
		cm.mu.RUnlock()
		if actual != tt.expected {
			t.Errorf("SetLevel(%d): compressLevel = %d, want %d", tt.level, actual, tt.expected)
		}
	}
}

func TestCompressFileLZ4RespectsConfiguredLevel(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.log")
	if err := os.WriteFile(testFile, []byte(strings.Repeat("payload\n", 200)), 0644); err != nil {
		t.Fatal(err)
	}

	cm := NewCompressionManager()
	cm.SetLevel(9)
	if err := cm.compressFileLZ4(testFile); err != nil {
		t.Fatalf("compressFileLZ4() error: %v", err)
	}

	f, err := os.Open(testFile + ".lz4")
	if err != nil {
		t.Fatalf("opening compressed file: %v", err)
	}
	defer f.Close()

	decompressed, err := io.ReadAll(lz4.NewReader(f))
	if err != nil {
		t.Fatalf("reading compressed content: %v", err)
	}
	if string(decompressed) != strings.Repeat("payload\n", 200) {
		t.Error("decompressed content does not match original")
	}
}

func TestCompressFileLZ4(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.log")
	testContent := "This is a test log file content\nWith multiple lines\nFor compression testing"

	if err := os.WriteFile(testFile, []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cm := NewCompressionManager()
	if err := cm.compressFileLZ4(testFile); err != nil {
		t.Fatalf("compressFileLZ4() error: %v", err)
	}

	compressedFile := testFile + ".lz4"
	if _, err := os.Stat(compressedFile); os.IsNotExist(err) {
		t.Fatal("compressed file does not exist")
	}
	if _, err := os.Stat(testFile); !os.IsNotExist(err) {
		t.Fatal("original file still exists after compression")
	}

	f, err := os.Open(compressedFile)
	if err != nil {
		t.Fatalf("failed to open compressed file: %v", err)
	}
	defer f.Close()

	decompressed, err := io.ReadAll(lz4.NewReader(f))
	if err != nil {
		t.Fatalf("failed to read compressed content: %v", err)
	}
	if string(decompressed) != testContent {
		t.Errorf("decompressed content mismatch.\nwant: %q\ngot:  %q", testContent, string(decompressed))
	}
}

func TestCompressFileSync(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.log")
	if err := os.WriteFile(testFile, []byte("test content"), 0644); err != nil {
		t.Fatal(err)
	}

	cm := NewCompressionManager()
	cm.SetCompression(CompressionLZ4)

	if err := cm.CompressFileSync(testFile); err != nil {
		t.Fatalf("CompressFileSync() error: %v", err)
	}
	if _, err := os.Stat(testFile + ".lz4"); os.IsNotExist(err) {
		t.Fatal("compressed file does not exist")
	}
}

func TestEvictArchivesByCount(t *testing.T) {
	tempDir := t.TempDir()
	base := filepath.Join(tempDir, "app.log")

	cm := NewCompressionManager()
	cm.SetMaxArchives(2)

	now := time.Now()
	var paths []string
	for i := 0; i < 4; i++ {
		p := filepath.Join(tempDir, "app."+time.Now().Add(-time.Duration(i)*time.Hour).Format(RotationTimeFormat)+".log.lz4")
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		modTime := now.Add(-time.Duration(i) * time.Hour)
		if err := os.Chtimes(p, modTime, modTime); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	cm.evictArchives(base)

	remaining := 0
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			remaining++
		}
	}
	if remaining != 2 {
		t.Errorf("remaining archives = %d, want 2", remaining)
	}
}

func TestEvictArchivesByAge(t *testing.T) {
	tempDir := t.TempDir()
	base := filepath.Join(tempDir, "app.log")

	cm := NewCompressionManager()
	cm.SetMaxArchiveAge(time.Hour)

	oldPath := filepath.Join(tempDir, "app.old.log.lz4")
	if err := os.WriteFile(oldPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatal(err)
	}

	newPath := filepath.Join(tempDir, "app.new.log.lz4")
	if err := os.WriteFile(newPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	cm.evictArchives(base)

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("old archive should have been evicted")
	}
	if _, err := os.Stat(newPath); os.IsNotExist(err) {
		t.Error("new archive should have been kept")
	}
}

func TestQueueFile(t *testing.T) {
	cm := NewCompressionManager()

	var errorCalled bool
	cm.SetErrorHandler(func(source, dest, msg string, err error) {
		if strings.Contains(msg, "queue full") {
			errorCalled = true
		}
	})

	cm.SetCompression(CompressionLZ4)
	cm.Start()
	defer cm.Stop()

	cm.QueueFile("/tmp/test.log")
	for i := 0; i < 200; i++ {
		cm.QueueFile(filepath.Join("/tmp", "test"+string(rune(i))+".log"))
	}

	time.Sleep(10 * time.Millisecond)
	if !errorCalled {
		t.Log("queue full error was not triggered (expected if queue capacity absorbs the burst)")
	}
}

func TestCompressionGetStatus(t *testing.T) {
	cm := NewCompressionManager()
	cm.SetCompression(CompressionLZ4)
	cm.SetMinAge(3)
	cm.SetWorkers(2)
	cm.Start()
	defer cm.Stop()

	status := cm.GetStatus()
	if status.Type != CompressionLZ4 || status.MinAge != 3 || status.Workers != 2 {
		t.Errorf("status = %+v", status)
	}
	if !status.IsRunning {
		t.Error("expected IsRunning to be true")
	}
}

func TestCompressNonExistentFile(t *testing.T) {
	cm := NewCompressionManager()
	if err := cm.compressFileLZ4("/non/existent/file.log"); err != nil {
		t.Errorf("compressFileLZ4() on missing file should be a no-op, got: %v", err)
	}
}

func TestCompressionMetricsHandler(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.log")
	if err := os.WriteFile(testFile, []byte("test content"), 0644); err != nil {
		t.Fatal(err)
	}

	cm := NewCompressionManager()

	var metricsCalled bool
	var metricsEvent string
	cm.SetMetricsHandler(func(event string) {
		metricsCalled = true
		metricsEvent = event
	})

	cm.SetCompression(CompressionLZ4)
	if err := cm.CompressFileSync(testFile); err != nil {
		t.Fatalf("CompressFileSync() error: %v", err)
	}

	if !metricsCalled {
		t.Error("metrics handler was not called")
	}
	if metricsEvent != "compression_completed" {
		t.Errorf("metricsEvent = %q, want compression_completed", metricsEvent)
	}
}

func TestConcurrentCompression(t *testing.T) {
	tempDir := t.TempDir()

	cm := NewCompressionManager()
	cm.SetCompression(CompressionLZ4)
	cm.SetWorkers(3)
	cm.Start()
	defer cm.Stop()

	numFiles := 10
	var wg sync.WaitGroup

	for i := 0; i < numFiles; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			testFile := filepath.Join(tempDir, "test"+string(rune('0'+index))+".log")
			content := strings.Repeat("test content\n", 100)
			if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
				t.Errorf("failed to create test file %d: %v", index, err)
				return
			}
			cm.QueueFile(testFile)
		}(i)
	}

	wg.Wait()
	time.Sleep(100 * time.Millisecond)
}

func TestGetSupportedCompressionTypes(t *testing.T) {
	types := GetSupportedCompressionTypes()
	if len(types) != 2 {
		t.Errorf("len(types) = %d, want 2", len(types))
	}
	expected := map[CompressionType]bool{CompressionNone: true, CompressionLZ4: true}
	for _, ct := range types {
		if !expected[ct] {
			t.Errorf("unexpected compression type: %v", ct)
		}
	}
}

func TestCompressionTypeString(t *testing.T) {
	tests := []struct {
		ct       CompressionType
		expected string
	}{
		{CompressionNone, "none"},
		{CompressionLZ4, "lz4"},
		{CompressionType(99), "unknown"},
	}
	for _, tt := range tests {
		if got := CompressionTypeString(tt.ct); got != tt.expected {
			t.Errorf("CompressionTypeString(%v) = %q, want %q", tt.ct, got, tt.expected)
		}
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		input       string
		expected    CompressionType
		expectError bool
	}{
		{"none", CompressionNone, false},
		{"lz4", CompressionLZ4, false},
		{"invalid", CompressionNone, true},
		{"", CompressionNone, true},
	}
	for _, tt := range tests {
		result, err := ParseCompressionType(tt.input)
		if tt.expectError && err == nil {
			t.Errorf("ParseCompressionType(%q): expected error", tt.input)
		}
		if !tt.expectError && (err != nil || result != tt.expected) {
			t.Errorf("ParseCompressionType(%q) = %v, %v; want %v, nil", tt.input, result, err, tt.expected)
		}
	}
}

func TestStartStopWorkers(t *testing.T) {
	cm := NewCompressionManager()

	if err := cm.SetCompression(CompressionLZ4); err != nil {
		t.Fatalf("SetCompression() error: %v", err)
	}

	cm.mu.RLock()
	hasChannel := cm.compressCh != nil
	cm.mu.RUnlock()
	if !hasChannel {
		t.Error("expected compression channel to be created")
	}

	cm.Stop()

	cm.mu.RLock()
	hasChannelAfter := cm.compressCh != nil
	cm.mu.RUnlock()
	if hasChannelAfter {
		t.Error("expected compression channel to be nil after stop")
	}
}
