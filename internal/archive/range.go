package archive

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Range errors.
var (
	ErrParse         = errors.New("archive: invalid range expression")
	ErrIndex         = errors.New("archive: range index out of bounds")
	ErrReversedRange = errors.New("archive: range start is after range end")
)

// ParseError reports a malformed range expression.
type ParseError struct {
	Expr   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid range %q: %s (want <end> or <start>:<end>)", e.Expr, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// IndexError reports a range that reaches past the discovered archives.
type IndexError struct {
	Range  Range
	Length int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("range %s out of bounds: %d archives available (max index %d)",
		e.Range, e.Length, e.Length-1)
}

func (e *IndexError) Unwrap() error { return ErrIndex }

// Range selects archives by 0-based index, both ends inclusive.
type Range struct {
	Start int
	End   int
}

func (r Range) String() string {
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

// Len returns the number of indices covered by a validated range.
func (r Range) Len() int {
	return r.End - r.Start + 1
}

// Indices returns Start..End in ascending order.
func (r Range) Indices() []int {
	if r.End < r.Start {
		return nil
	}
	idx := make([]int, 0, r.Len())
	for i := r.Start; i <= r.End; i++ {
		idx = append(idx, i)
	}
	return idx
}

// ParseRange parses "<end>" as [0, end] and "<start>:<end>" as [start, end].
// It does not check the bounds; see Validate.
func ParseRange(expr string) (Range, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return Range{}, &ParseError{Expr: expr, Reason: "empty"}
	}

	startStr, endStr, hasColon := strings.Cut(s, ":")
	if !hasColon {
		end, err := parseIndex(expr, "end", s)
		if err != nil {
			return Range{}, err
		}
		return Range{Start: 0, End: end}, nil
	}

	start, err := parseIndex(expr, "start", startStr)
	if err != nil {
		return Range{}, err
	}
	end, err := parseIndex(expr, "end", endStr)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: start, End: end}, nil
}

// Validate checks the range against a list of n archives.
func (r Range) Validate(n int) error {
	if r.Start > r.End {
		return fmt.Errorf("%w: %s", ErrReversedRange, r)
	}
	if r.Start < 0 || r.End >= n {
		return &IndexError{Range: r, Length: n}
	}
	return nil
}

func parseIndex(expr, name, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ParseError{Expr: expr, Reason: name + " index is missing"}
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, &ParseError{Expr: expr, Reason: fmt.Sprintf("%s index %q is not a number", name, s)}
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ParseError{Expr: expr, Reason: fmt.Sprintf("%s index %q is too large", name, s)}
	}
	return n, nil
}
