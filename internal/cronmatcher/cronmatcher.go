// Package cronmatcher implements the CronMatcher: a pure,
// side-effect-free predicate over a five-field cron expression and a wall
// clock minute, grounded on
// original_source/usbackup/services/job.py::_is_cron_field_due, extended
// with the list (A,B,C) field form the Python source lacks, and with the
// classic cron weekday convention (Sun=0..Sat=6, same as Go's
// time.Weekday) so that "1-5" reads as the familiar Mon-Fri business week.
package cronmatcher

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/viperadnan-git/usbackup/internal/model"
)

// Expression is a parsed five-field cron schedule (minute hour day month
// weekday). Parsing is eager so that malformed schedules are rejected at
// config-load time rather than at first scheduler tick.
type Expression struct {
	minute, hour, day, month, weekday field
}

// field is one parsed cron field: a set of predicates, any of which
// matching the field's value makes the field match ("," is union).
type field []predicate

type predicate func(value int) bool

// Parse parses a five-field cron expression. Each field independently
// supports `*`, an integer literal, `*/N` (step), `A-B` (inclusive range),
// and `A,B,C` (list of any of the above, comma-joined).
func Parse(expr string) (Expression, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Expression{}, fmt.Errorf("%w: cron expression %q must have 5 fields, got %d",
			model.ErrConfigInvalid, expr, len(parts))
	}

	minute, err := parseField(parts[0])
	if err != nil {
		return Expression{}, err
	}
	hour, err := parseField(parts[1])
	if err != nil {
		return Expression{}, err
	}
	day, err := parseField(parts[2])
	if err != nil {
		return Expression{}, err
	}
	month, err := parseField(parts[3])
	if err != nil {
		return Expression{}, err
	}
	weekday, err := parseField(parts[4])
	if err != nil {
		return Expression{}, err
	}

	return Expression{minute: minute, hour: hour, day: day, month: month, weekday: weekday}, nil
}

func parseField(raw string) (field, error) {
	var f field
	for _, term := range strings.Split(raw, ",") {
		p, err := parseTerm(term)
		if err != nil {
			return nil, err
		}
		f = append(f, p)
	}
	return f, nil
}

func parseTerm(term string) (predicate, error) {
	switch {
	case term == "*":
		return func(int) bool { return true }, nil

	case strings.HasPrefix(term, "*/"):
		step, err := strconv.Atoi(term[2:])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("%w: invalid step field %q", model.ErrConfigInvalid, term)
		}
		return func(value int) bool { return value%step == 0 }, nil

	case strings.Contains(term, "-"):
		bounds := strings.SplitN(term, "-", 2)
		start, errA := strconv.Atoi(bounds[0])
		end, errB := strconv.Atoi(bounds[1])
		if errA != nil || errB != nil || start > end {
			return nil, fmt.Errorf("%w: invalid range field %q", model.ErrConfigInvalid, term)
		}
		return func(value int) bool { return value >= start && value <= end }, nil

	default:
		n, err := strconv.Atoi(term)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid field term %q", model.ErrConfigInvalid, term)
		}
		return func(value int) bool { return value == n }, nil
	}
}

func (f field) match(value int) bool {
	for _, p := range f {
		if p(value) {
			return true
		}
	}
	return false
}

// Match reports whether t falls in every one of e's five fields.
func (e Expression) Match(t time.Time) bool {
	return e.minute.match(t.Minute()) &&
		e.hour.match(t.Hour()) &&
		e.day.match(t.Day()) &&
		e.month.match(int(t.Month())) &&
		e.weekday.match(int(t.Weekday()))
}

// Match parses expr and evaluates it against t in one call. Schedulers that
// re-evaluate the same expression every tick should Parse once and call
// Expression.Match instead.
func Match(expr string, t time.Time) (bool, error) {
	e, err := Parse(expr)
	if err != nil {
		return false, err
	}
	return e.Match(t), nil
}
