// Package archive schedules cold-storage archival runs that move the
// journals of long-closed portfolios out of PostgreSQL and into object
// storage.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// Runner drives the domain Archiver on a retention policy.
type Runner struct {
	archiver      domain.Archiver
	retentionDays int
	logger        *slog.Logger
}

// NewRunner creates a Runner that archives closed portfolios whose last
// update is older than retentionDays.
func NewRunner(archiver domain.Archiver, retentionDays int, logger *slog.Logger) *Runner {
	return &Runner{
		archiver:      archiver,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run executes a single archive pass. The cutoff is now minus the retention
// window; portfolios closed and untouched since before the cutoff are moved
// to cold storage.
func (r *Runner) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
	r.logger.InfoContext(ctx, "archive: starting pass",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", r.retentionDays),
	)

	archived, err := r.archiver.ArchiveClosed(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: closed portfolios before %v: %w", cutoff, err)
	}

	r.logger.InfoContext(ctx, "archive: pass complete",
		slog.Int64("portfolios_archived", archived),
	)
	return nil
}

// RunCron runs archive passes on a cron schedule until the context is
// cancelled. Expressions use the standard 5-field format:
// "minute hour day-of-month month day-of-week".
//
// Example: "0 3 * * 0" runs at 03:00 every Sunday.
func (r *Runner) RunCron(ctx context.Context, cronExpr string) error {
	r.logger.InfoContext(ctx, "archive: cron schedule started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("archive: parse cron %q: %w", cronExpr, err)
		}

		r.logger.InfoContext(ctx, "archive: waiting for next trigger",
			slog.Time("next_run", next),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := r.Run(ctx); err != nil {
				r.logger.ErrorContext(ctx, "archive: pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is one parsed field of a cron expression.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var (
		parsed parsedCron
		err    error
	)
	names := []string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	dests := []*cronField{&parsed.minute, &parsed.hour, &parsed.dayOfMonth, &parsed.month, &parsed.dayOfWeek}
	for i, raw := range fields {
		*dests[i], err = parseCronField(raw)
		if err != nil {
			return parsedCron{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
	}
	return parsed, nil
}

// nextCronTime finds the first minute after 'after' matching the expression,
// searching at most one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
