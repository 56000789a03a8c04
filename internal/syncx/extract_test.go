package syncx

import (
	"errors"
	"strings"
	"testing"
)

func validItem() PushItem {
	return PushItem{
		RecordID:        "r1",
		Type:            "prayer_request",
		Version:         1,
		Payload:         "AAAA",
		ClientUpdatedAt: "2025-11-03T10:00:00Z",
	}
}

func TestExtractPushItem(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*PushItem)
		wantReason Reason
		wantErr    error
	}{
		{
			name:   "valid record",
			mutate: func(*PushItem) {},
		},
		{
			name:       "unparseable timestamp",
			mutate:     func(i *PushItem) { i.ClientUpdatedAt = "not-a-time" },
			wantReason: ReasonInvalidTimestamp,
		},
		{
			name:       "empty timestamp",
			mutate:     func(i *PushItem) { i.ClientUpdatedAt = "" },
			wantReason: ReasonInvalidTimestamp,
		},
		{
			name:       "missing record id",
			mutate:     func(i *PushItem) { i.RecordID = "" },
			wantReason: ReasonInvalidRecord,
			wantErr:    ErrMissingRecordID,
		},
		{
			name:       "missing type",
			mutate:     func(i *PushItem) { i.Type = "" },
			wantReason: ReasonInvalidRecord,
			wantErr:    ErrMissingType,
		},
		{
			name:       "version zero",
			mutate:     func(i *PushItem) { i.Version = 0 },
			wantReason: ReasonInvalidRecord,
			wantErr:    ErrBadVersion,
		},
		{
			name:       "payload too large",
			mutate:     func(i *PushItem) { i.Payload = strings.Repeat("A", MaxPayloadBytes+4) },
			wantReason: ReasonInvalidRecord,
			wantErr:    ErrPayloadTooLarge,
		},
		{
			name:       "payload not base64",
			mutate:     func(i *PushItem) { i.Payload = "not base64!" },
			wantReason: ReasonInvalidRecord,
			wantErr:    ErrPayloadEncoding,
		},
		{
			name:   "unpadded payload",
			mutate: func(i *PushItem) { i.Payload = "AAA" },
		},
		{
			name:       "empty payload on live record",
			mutate:     func(i *PushItem) { i.Payload = "" },
			wantReason: ReasonInvalidRecord,
			wantErr:    ErrEmptyPayload,
		},
		{
			name: "empty payload on tombstone",
			mutate: func(i *PushItem) {
				i.Payload = ""
				i.Deleted = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(&item)

			ext, reason, err := ExtractPushItem(item)
			if reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q (err=%v)", reason, tt.wantReason, err)
			}
			if tt.wantReason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if ext.Item.RecordID != item.RecordID {
					t.Errorf("RecordID = %q, want %q", ext.Item.RecordID, item.RecordID)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsBase64(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"AAAA", true},
		{"QUJD", true},
		{"QUI=", true},
		{"QQ==", true},
		{"AAA", true},
		{"BBB", true},
		{"QQ", true},
		{"QQ=", false},
		{"Q===", false},
		{"QQ=A", false},
		{"a-b_", false},
	}
	for _, tt := range tests {
		if got := isBase64(tt.in); got != tt.want {
			t.Errorf("isBase64(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReasonRetryable(t *testing.T) {
	if !ReasonTransient.Retryable() {
		t.Error("transient_storage_error should be retryable")
	}
	for _, r := range []Reason{ReasonForbidden, ReasonVersionConflict, ReasonInvalidTimestamp, ReasonInvalidRecord} {
		if r.Retryable() {
			t.Errorf("%s should not be retryable", r)
		}
	}
}
