package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpenAuditFileValidation(t *testing.T) {
	if _, err := openAuditFile("", 1, 1, 1); err == nil {
		t.Fatalf("expected error for empty path")
	}

	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	writer, err := openAuditFile(path, 0, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer writer.Close()
	if writer.limit != int64(defaultAuditSizeMB)*1024*1024 {
		t.Fatalf("unexpected default size limit %d", writer.limit)
	}
	if writer.keep != defaultAuditBackups {
		t.Fatalf("unexpected default backup count %d", writer.keep)
	}
	if writer.maxAge != time.Duration(defaultAuditAgeDays)*24*time.Hour {
		t.Fatalf("unexpected default age %v", writer.maxAge)
	}
}

func TestAuditFileRollsOverAtSizeCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	writer := &auditFile{path: path, limit: 64, keep: 5, maxAge: time.Hour}
	defer writer.Close()

	first := bytes.Repeat([]byte("a"), 40)
	second := bytes.Repeat([]byte("b"), 40)
	if _, err := writer.Write(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := writer.Write(second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current file: %v", err)
	}
	if !bytes.Equal(content, second) {
		t.Fatalf("current file must hold only the post-rotation write, got %d bytes", len(content))
	}

	backups, err := filepath.Glob(path + ".*")
	if err != nil || len(backups) != 1 {
		t.Fatalf("expected one timestamped backup, got %v (%v)", backups, err)
	}
	if !strings.HasPrefix(filepath.Base(backups[0]), "audit.log.") {
		t.Fatalf("unexpected backup name %q", backups[0])
	}
	old, err := os.ReadFile(backups[0])
	if err != nil || !bytes.Equal(old, first) {
		t.Fatalf("backup must hold the pre-rotation content: %v", err)
	}
}

func TestAuditFilePrunesByCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	writer := &auditFile{path: path, limit: 8, keep: 2, maxAge: time.Hour}
	defer writer.Close()

	payload := []byte("12345678")
	for i := 0; i < 5; i++ {
		if _, err := writer.Write(payload); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	backups, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	if len(backups) > 2 {
		t.Fatalf("retention must keep at most 2 backups, got %d", len(backups))
	}
}
