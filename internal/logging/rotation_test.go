package logging

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const mb = 1024 * 1024

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "a", "b", "debug.log")

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if _, err := os.Stat(logPath); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
		if rw.FilePath() != logPath {
			t.Errorf("FilePath() = %q, want %q", rw.FilePath(), logPath)
		}
	})

	t.Run("appends to existing file", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "debug.log")
		if err := os.WriteFile(logPath, []byte("existing\n"), 0644); err != nil {
			t.Fatal(err)
		}

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		if rw.CurrentSize() != int64(len("existing\n")) {
			t.Errorf("CurrentSize() = %d, want %d", rw.CurrentSize(), len("existing\n"))
		}
		if _, err := rw.Write([]byte("more\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		_ = rw.Close()

		got, _ := os.ReadFile(logPath)
		if string(got) != "existing\nmore\n" {
			t.Errorf("content = %q", got)
		}
	})
}

func TestRotatingWriter_Rotates(t *testing.T) {
	tests := []struct {
		name       string
		config     RotationConfig
		writes     int
		wantExists []string
		wantAbsent []string
	}{
		{
			name:       "keeps one backup",
			config:     RotationConfig{MaxSizeMB: 1, MaxBackups: 1},
			writes:     3,
			wantExists: []string{".1"},
			wantAbsent: []string{".2"},
		},
		{
			name:       "shifts backups",
			config:     RotationConfig{MaxSizeMB: 1, MaxBackups: 3},
			writes:     3,
			wantExists: []string{".1", ".2"},
			wantAbsent: []string{".3"},
		},
		{
			name:       "compresses backups",
			config:     RotationConfig{MaxSizeMB: 1, MaxBackups: 2, Compress: true},
			writes:     3,
			wantExists: []string{".1.gz", ".2.gz"},
			wantAbsent: []string{".1", ".2"},
		},
		{
			name:       "no backups truncates",
			config:     RotationConfig{MaxSizeMB: 1},
			writes:     2,
			wantAbsent: []string{".1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logPath := filepath.Join(t.TempDir(), "debug.log")
			rw, err := NewRotatingWriter(logPath, tt.config)
			if err != nil {
				t.Fatalf("NewRotatingWriter failed: %v", err)
			}

			chunk := bytes.Repeat([]byte("x"), mb-10)
			for i := 0; i < tt.writes; i++ {
				if _, err := rw.Write(chunk); err != nil {
					t.Fatalf("Write %d failed: %v", i, err)
				}
			}
			if err := rw.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			for _, suffix := range tt.wantExists {
				if _, err := os.Stat(logPath + suffix); err != nil {
					t.Errorf("expected %s to exist: %v", suffix, err)
				}
			}
			for _, suffix := range tt.wantAbsent {
				if _, err := os.Stat(logPath + suffix); err == nil {
					t.Errorf("expected %s to be absent", suffix)
				}
			}

			info, err := os.Stat(logPath)
			if err != nil {
				t.Fatalf("active log missing: %v", err)
			}
			if info.Size() != int64(len(chunk)) {
				t.Errorf("active log size = %d, want %d", info.Size(), len(chunk))
			}
		})
	}
}

func TestRotatingWriter_CompressedBackupIsReadable(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	rw, err := NewRotatingWriter(logPath, RotationConfig{MaxSizeMB: 1, MaxBackups: 1, Compress: true})
	if err != nil {
		t.Fatal(err)
	}

	first := bytes.Repeat([]byte("a"), mb-1)
	_, _ = rw.Write(first)
	_, _ = rw.Write([]byte("bb"))
	_ = rw.Close()

	f, err := os.Open(logPath + ".1.gz")
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Errorf("backup has %d bytes, want %d", len(got), len(first))
	}
}

func TestRotatingWriter_ZeroSizeDisablesRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	rw, err := NewRotatingWriter(logPath, RotationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	chunk := bytes.Repeat([]byte("z"), mb)
	for i := 0; i < 2; i++ {
		_, _ = rw.Write(chunk)
	}
	_ = rw.Close()

	if _, err := os.Stat(logPath + ".1"); err == nil {
		t.Error("rotation should be disabled when MaxSizeMB is zero")
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "debug.log"), DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if _, err := rw.Write([]byte("x")); err == nil {
		t.Error("Write after Close should fail")
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync after Close = %v", err)
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = rw.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()

	if got := rw.CurrentSize(); got != 8*50*5 {
		t.Errorf("CurrentSize() = %d, want %d", got, 8*50*5)
	}
	_ = rw.Close()
}
