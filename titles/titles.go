// Package titles allocates human-readable document titles of the form
// DOC<ddmmyy>-<nnnn>. The sequence restarts every calendar day.
package titles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/satheeshds/invoicedesk/apperr"
)

// MaxSequence is the largest per-day sequence a title can carry.
const MaxSequence = 9999

const prefixLen = len("DOC") + 6

// DatePrefix returns "DOC" followed by t formatted as ddmmyy.
func DatePrefix(t time.Time) string {
	return "DOC" + t.Format("020106")
}

// FormatTitle returns a title like "DOC161026-0001".
func FormatTitle(t time.Time, seq int) string {
	return fmt.Sprintf("%s-%04d", DatePrefix(t), seq)
}

// ParseTitle splits "DOC161026-0042" into its date prefix and sequence.
func ParseTitle(title string) (prefix string, seq int, err error) {
	if len(title) != prefixLen+5 || !strings.HasPrefix(title, "DOC") || title[prefixLen] != '-' {
		return "", 0, fmt.Errorf("invalid document title %q", title)
	}
	prefix = title[:prefixLen]
	if _, err := time.Parse("020106", prefix[3:]); err != nil {
		return "", 0, fmt.Errorf("invalid date in document title %q: %w", title, err)
	}
	digits := title[prefixLen+1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", 0, fmt.Errorf("invalid sequence in document title %q", title)
		}
	}
	seq, _ = strconv.Atoi(digits)
	return prefix, seq, nil
}

// Sequence hands out increasing per-prefix values shared by every instance.
// The returned value is always greater than floor.
type Sequence interface {
	Next(ctx context.Context, prefix string, floor int) (int, error)
}

// Directory answers questions about titles already taken by documents.
type Directory interface {
	// LatestSequence returns the highest sequence used under prefix, or 0.
	LatestSequence(ctx context.Context, prefix string) (int, error)
	TitleExists(ctx context.Context, title string) (bool, error)
}

// Allocator suggests the next free title. The suggestion is a hint: the
// documents table's unique title constraint remains the authority, so
// callers must still handle a conflict on insert.
type Allocator struct {
	dir         Directory
	seq         Sequence // optional
	maxAttempts int
	now         func() time.Time
	log         *slog.Logger
}

// NewAllocator returns an Allocator. seq may be nil, in which case the
// latest stored title is incremented directly.
func NewAllocator(dir Directory, seq Sequence) *Allocator {
	return &Allocator{
		dir:         dir,
		seq:         seq,
		maxAttempts: 5,
		now:         time.Now,
		log:         slog.With("component", "titles"),
	}
}

// Next returns an unused title for today. Lookup failures degrade to the
// first sequence of the day rather than failing the caller.
func (a *Allocator) Next(ctx context.Context) (string, error) {
	const op = "titles.Next"
	now := a.now()
	prefix := DatePrefix(now)

	floor, err := a.dir.LatestSequence(ctx, prefix)
	if err != nil {
		a.log.Warn("latest title lookup failed, starting from 0001", "prefix", prefix, "error", err)
		floor = 0
	}

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		seq := floor + 1
		if a.seq != nil {
			if v, err := a.seq.Next(ctx, prefix, floor); err != nil {
				a.log.Warn("title sequence unavailable", "prefix", prefix, "error", err)
			} else {
				seq = v
			}
		}
		if seq > MaxSequence {
			return "", apperr.Conflict(op, "title", "daily document title sequence exhausted")
		}

		title := FormatTitle(now, seq)
		taken, err := a.dir.TitleExists(ctx, title)
		if err != nil {
			a.log.Warn("title existence check failed", "title", title, "error", err)
			return title, nil
		}
		if !taken {
			return title, nil
		}
		floor = seq
	}
	return "", apperr.Conflict(op, "title", "could not allocate a free document title")
}
