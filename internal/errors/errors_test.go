package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapCarriesCodeThroughChain(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeStorageFailure, cause, "写入失败")

	wrapped := fmt.Errorf("外层: %w", err)
	if CodeOf(wrapped) != CodeStorageFailure {
		t.Fatalf("code must survive wrapping, got %s", CodeOf(wrapped))
	}
	if !stdErrors.Is(wrapped, New(CodeStorageFailure, "")) {
		t.Fatalf("errors.Is must match on code")
	}
	if parsed, ok := From(wrapped); !ok || parsed.Unwrap() != cause {
		t.Fatalf("cause must be reachable, got %v %v", parsed, ok)
	}
}

func TestRetryableFollowsRegistry(t *testing.T) {
	if !Retryable(New(CodeStorageFailure, "")) {
		t.Fatalf("storage failures must be retryable")
	}
	if Retryable(New(CodeValidationFailure, "")) {
		t.Fatalf("validation failures must not be retryable")
	}
	if Retryable(stdErrors.New("普通错误")) {
		t.Fatalf("plain errors must not be retryable")
	}
}

func TestSeverityOverride(t *testing.T) {
	plain := New(CodeScanFailure, "")
	if SeverityOf(plain) != SeverityWarning {
		t.Fatalf("unexpected default severity %s", SeverityOf(plain))
	}
	raised := New(CodeScanFailure, "", WithSeverity(SeverityCritical))
	if SeverityOf(raised) != SeverityCritical {
		t.Fatalf("severity override must win, got %s", SeverityOf(raised))
	}
}

func TestMetadataIsCloned(t *testing.T) {
	err := New(CodePublishFailure, "", WithMetadata("queue", "flowpilot.events"))
	meta := err.Metadata()
	if meta["queue"] != "flowpilot.events" {
		t.Fatalf("unexpected metadata %v", meta)
	}
	meta["queue"] = "tampered"
	if err.Metadata()["queue"] != "flowpilot.events" {
		t.Fatalf("metadata accessor must return a copy")
	}
}

func TestAttributesOfUnknownCode(t *testing.T) {
	attr := AttributesOf(Code("NO_SUCH_CODE"))
	if attr.Severity != SeverityCritical {
		t.Fatalf("unknown codes must map to the UNKNOWN attributes, got %+v", attr)
	}
}

func TestEmptyMessageFallsBackToRegistry(t *testing.T) {
	err := New(CodeTimeout, "")
	if err.Message() != "operation timed out" {
		t.Fatalf("unexpected message %q", err.Message())
	}
}
