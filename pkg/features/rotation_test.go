package features

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewRotationManager(t *testing.T) {
	rm := NewRotationManager()
	if rm == nil {
		t.Fatal("NewRotationManager returned nil")
	}
	if rm.cleanupInterval != time.Hour {
		t.Errorf("expected default cleanup interval 1 hour, got %v", rm.cleanupInterval)
	}
}

func TestAddRemoveLogPath(t *testing.T) {
	rm := NewRotationManager()

	path1 := "/var/log/app1.log"
	path2 := "/var/log/app2.log"

	rm.AddLogPath(path1)
	rm.AddLogPath(path2)
	rm.AddLogPath(path1) // duplicate

	rm.pathsMu.RLock()
	pathCount := len(rm.logPaths)
	rm.pathsMu.RUnlock()

	if pathCount != 2 {
		t.Errorf("expected 2 unique paths, got %d", pathCount)
	}

	rm.RemoveLogPath(path1)

	rm.pathsMu.RLock()
	pathCount = len(rm.logPaths)
	rm.pathsMu.RUnlock()

	if pathCount != 1 {
		t.Errorf("expected 1 path after removal, got %d", pathCount)
	}

	rm.RemoveLogPath("/non/existent.log") // must not panic
}

func TestSetMaxAge(t *testing.T) {
	rm := NewRotationManager()
	rm.SetErrorHandler(func(source, dest, msg string, err error) {})

	if err := rm.SetMaxAge(24 * time.Hour); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !rm.IsRunning() {
		t.Error("expected cleanup ticker to be started when max age > 0")
	}

	if err := rm.SetMaxAge(0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if rm.IsRunning() {
		t.Error("expected cleanup ticker to be stopped when max age = 0")
	}
}

func TestSetMaxFiles(t *testing.T) {
	rm := NewRotationManager()
	rm.SetMaxFiles(10)
	if rm.GetMaxFiles() != 10 {
		t.Errorf("GetMaxFiles() = %d, want 10", rm.GetMaxFiles())
	}
}

func TestSetCleanupInterval(t *testing.T) {
	rm := NewRotationManager()

	rm.SetCleanupInterval(30 * time.Second)
	if rm.GetCleanupInterval() != time.Minute {
		t.Errorf("expected cleanup interval clamped to 1 minute, got %v", rm.GetCleanupInterval())
	}

	rm.SetCleanupInterval(2 * time.Hour)
	if rm.GetCleanupInterval() != 2*time.Hour {
		t.Errorf("expected cleanup interval 2h, got %v", rm.GetCleanupInterval())
	}
}

func TestRotateFileNaming(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "app.log")

	if err := os.WriteFile(logFile, []byte("line one\nline two\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	rm := NewRotationManager()

	var metricsCalled bool
	rm.SetMetricsHandler(func(event string) {
		if event == "rotation_completed" {
			metricsCalled = true
		}
	})

	var compressionPath string
	rm.SetCompressionCallback(func(path string) {
		compressionPath = path
	})

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("failed to open file: %v", err)
	}
	writer := bufio.NewWriter(file)
	file.Close()

	rotatedPath, err := rm.RotateFile(logFile, writer)
	if err != nil {
		t.Fatalf("RotateFile() error: %v", err)
	}

	if _, err := os.Stat(rotatedPath); os.IsNotExist(err) {
		t.Error("rotated file does not exist")
	}
	if _, err := os.Stat(logFile); !os.IsNotExist(err) {
		t.Error("original file still exists after rotation")
	}

	base := filepath.Base(rotatedPath)
	if !strings.HasPrefix(base, "app.") || !strings.HasSuffix(base, ".log") {
		t.Errorf("rotated name %q does not follow app.<timestamp>.log", base)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(base, "app."), ".log")
	if _, err := time.Parse(RotationTimeFormat, stamp); err != nil {
		t.Errorf("embedded timestamp %q does not parse as %s: %v", stamp, RotationTimeFormat, err)
	}

	if !metricsCalled {
		t.Error("metrics handler was not called")
	}
	if compressionPath != rotatedPath {
		t.Errorf("compression callback path = %q, want %q", compressionPath, rotatedPath)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "app.log")

	rm := NewRotationManager()
	rm.SetMaxAge(1 * time.Hour)

	now := time.Now().UTC()

	oldTime := now.Add(-2 * time.Hour)
	oldFile := filepath.Join(tempDir, "app."+oldTime.Format(RotationTimeFormat)+".log")
	if err := os.WriteFile(oldFile, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	recentTime := now.Add(-30 * time.Minute)
	recentFile := filepath.Join(tempDir, "app."+recentTime.Format(RotationTimeFormat)+".log")
	if err := os.WriteFile(recentFile, []byte("recent"), 0644); err != nil {
		t.Fatal(err)
	}

	oldCompressed := oldFile + ".lz4"
	if err := os.WriteFile(oldCompressed, []byte("compressed"), 0644); err != nil {
		t.Fatal(err)
	}

	var cleanupCount int
	rm.SetMetricsHandler(func(event string) {
		if event == "cleanup_completed" {
			cleanupCount++
		}
	})

	if err := rm.CleanupOldLogs(logFile); err != nil {
		t.Errorf("CleanupOldLogs() error: %v", err)
	}

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("old file should have been deleted")
	}
	if _, err := os.Stat(oldCompressed); !os.IsNotExist(err) {
		t.Error("old compressed archive should have been deleted")
	}
	if _, err := os.Stat(recentFile); os.IsNotExist(err) {
		t.Error("recent file should have been kept")
	}
	if cleanupCount != 2 {
		t.Errorf("cleanupCount = %d, want 2", cleanupCount)
	}
}

func TestCleanupOldFiles(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "app.log")

	rm := NewRotationManager()
	rm.SetMaxFiles(2)

	now := time.Now().UTC()
	var files []string
	for i := 0; i < 5; i++ {
		timestamp := now.Add(-time.Duration(i) * time.Hour)
		filename := filepath.Join(tempDir, "app."+timestamp.Format(RotationTimeFormat)+".log")
		if err := os.WriteFile(filename, []byte("content"), 0644); err != nil {
			t.Fatal(err)
		}
		files = append(files, filename)
	}

	if err := rm.CleanupOldFiles(logFile); err != nil {
		t.Errorf("CleanupOldFiles() error: %v", err)
	}

	remaining := 0
	for i, file := range files {
		_, err := os.Stat(file)
		exists := !os.IsNotExist(err)
		if exists {
			remaining++
		}
		if i < 2 && !exists {
			t.Errorf("file %s (newest) should have been kept", file)
		}
		if i >= 2 && exists {
			t.Errorf("file %s (oldest) should have been deleted", file)
		}
	}
	if remaining != 2 {
		t.Errorf("remaining = %d, want 2", remaining)
	}
}

func TestGetRotatedFiles(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "app.log")

	rm := NewRotationManager()
	now := time.Now().UTC()

	time1 := now.Add(-1 * time.Hour)
	file1 := filepath.Join(tempDir, "app."+time1.Format(RotationTimeFormat)+".log")
	if err := os.WriteFile(file1, []byte("content1"), 0644); err != nil {
		t.Fatal(err)
	}

	time2 := now.Add(-2 * time.Hour)
	file2 := filepath.Join(tempDir, "app."+time2.Format(RotationTimeFormat)+".log.lz4")
	if err := os.WriteFile(file2, []byte("compressed"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(logFile, []byte("current"), 0644); err != nil {
		t.Fatal(err)
	}

	rotatedFiles, err := rm.GetRotatedFiles(logFile)
	if err != nil {
		t.Fatalf("GetRotatedFiles() error: %v", err)
	}
	if len(rotatedFiles) != 2 {
		t.Fatalf("len(rotatedFiles) = %d, want 2", len(rotatedFiles))
	}
	if !rotatedFiles[0].RotationTime.After(rotatedFiles[1].RotationTime) {
		t.Error("files not sorted newest first")
	}
	for _, rf := range rotatedFiles {
		if strings.HasSuffix(rf.Name, ".lz4") && !rf.IsCompressed {
			t.Errorf("file %s should be marked compressed", rf.Name)
		}
	}
}

func TestRotationStartStop(t *testing.T) {
	rm := NewRotationManager()
	rm.SetMaxAge(24 * time.Hour)

	rm.Start()
	if !rm.IsRunning() {
		t.Error("expected cleanup routine to be running after Start")
	}

	rm.Stop()
	if rm.IsRunning() {
		t.Error("expected cleanup routine to be stopped after Stop")
	}
}

func TestRotationGetStatus(t *testing.T) {
	rm := NewRotationManager()
	rm.SetMaxAge(48 * time.Hour)
	rm.SetMaxFiles(5)
	rm.SetCleanupInterval(2 * time.Hour)
	rm.Start()
	defer rm.Stop()

	status := rm.GetStatus()
	if status.MaxAge != 48*time.Hour || status.MaxFiles != 5 || status.CleanupInterval != 2*time.Hour {
		t.Errorf("status = %+v", status)
	}
	if !status.IsRunning {
		t.Error("expected IsRunning to be true")
	}
}

func TestRotationWithInvalidPaths(t *testing.T) {
	rm := NewRotationManager()

	if _, err := rm.RotateFile("/non/existent/path/file.log", nil); err == nil {
		t.Error("expected error for non-existent path")
	}
	if err := rm.CleanupOldLogs(""); err != nil {
		t.Error("cleanup with empty path should not error")
	}
}

func TestRotationConcurrentOperations(t *testing.T) {
	rm := NewRotationManager()
	tempDir := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			path := filepath.Join(tempDir, "app"+string(rune('0'+idx))+".log")
			rm.AddLogPath(path)
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rm.SetMaxAge(time.Duration(idx+1) * time.Hour)
			rm.SetMaxFiles(idx + 5)
			rm.SetCleanupInterval(time.Duration(idx+1) * time.Hour)
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rm.GetStatus()
			_ = rm.GetMaxAge()
			_ = rm.GetMaxFiles()
			_ = rm.GetCleanupInterval()
			_ = rm.IsRunning()
		}()
	}
	wg.Wait()
}
