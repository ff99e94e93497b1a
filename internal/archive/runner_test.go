package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type stubArchiver struct {
	cutoff   time.Time
	archived int64
	err      error
}

func (s *stubArchiver) ArchiveClosed(_ context.Context, before time.Time) (int64, error) {
	s.cutoff = before
	return s.archived, s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunUsesRetentionCutoff(t *testing.T) {
	stub := &stubArchiver{archived: 3}
	r := NewRunner(stub, 30, discard())

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := time.Now().UTC().Add(-30 * 24 * time.Hour)
	diff := stub.cutoff.Sub(want)
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", stub.cutoff, want)
	}
}

func TestRunPropagatesArchiverError(t *testing.T) {
	stub := &stubArchiver{err: errors.New("bucket unreachable")}
	r := NewRunner(stub, 7, discard())

	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestNextCronTime(t *testing.T) {
	base := time.Date(2026, time.March, 14, 2, 30, 45, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{
			name: "every minute",
			expr: "* * * * *",
			want: time.Date(2026, time.March, 14, 2, 31, 0, 0, time.UTC),
		},
		{
			name: "daily at three",
			expr: "0 3 * * *",
			want: time.Date(2026, time.March, 14, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "first of month",
			expr: "0 0 1 * *",
			want: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "sunday morning",
			expr: "0 3 * * 0",
			want: time.Date(2026, time.March, 15, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextCronTime(tt.expr, base)
			if err != nil {
				t.Fatalf("nextCronTime(%q): %v", tt.expr, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("nextCronTime(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestNextCronTimeRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "* * *", "a b c d e", "1,x * * * *"} {
		if _, err := nextCronTime(expr, time.Now()); err == nil {
			t.Errorf("nextCronTime(%q): expected error, got nil", expr)
		}
	}
}
