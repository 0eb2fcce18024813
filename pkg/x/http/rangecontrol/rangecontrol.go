package rangecontrol

import (
	"errors"
	"strconv"
	"strings"
)

// Resumable transfers ask for an open-ended range and read the position
// the server actually starts from out of Content-Range (RFC 9110).
//
// Range: bytes=200-
// Content-Range: bytes 200-299/300
// Content-Range: bytes 200-299/*
// Content-Range: bytes */300

var ErrInvalidContentRange = errors.New("invalid Content-Range")

// From returns the Range header value requesting everything from offset on.
func From(offset int64) string {
	return "bytes=" + strconv.FormatInt(offset, 10) + "-"
}

type ContentRange struct {
	Start       int64 // undefined if Unsatisfied
	End         int64
	Size        int64 // -1 if unknown
	Unsatisfied bool  // "*/size"
}

// Length returns the number of bytes the response carries.
func (c *ContentRange) Length() int64 {
	if c.Unsatisfied {
		return 0
	}
	return c.End - c.Start + 1
}

func ParseContentRange(header string) (*ContentRange, error) {
	header = strings.TrimSpace(header)

	unit, value, ok := strings.Cut(header, " ")
	if !ok || unit != "bytes" {
		return nil, ErrInvalidContentRange
	}

	rangePart, sizePart, ok := strings.Cut(value, "/")
	if !ok {
		return nil, ErrInvalidContentRange
	}

	size := int64(-1)
	if sizePart != "*" {
		n, err := strconv.ParseInt(sizePart, 10, 64)
		if err != nil || n < 0 {
			return nil, ErrInvalidContentRange
		}
		size = n
	}

	if rangePart == "*" {
		if size < 0 {
			return nil, ErrInvalidContentRange
		}
		return &ContentRange{Size: size, Unsatisfied: true}, nil
	}

	startStr, endStr, ok := strings.Cut(rangePart, "-")
	if !ok {
		return nil, ErrInvalidContentRange
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, ErrInvalidContentRange
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return nil, ErrInvalidContentRange
	}
	if size >= 0 && end >= size {
		return nil, ErrInvalidContentRange
	}

	return &ContentRange{Start: start, End: end, Size: size}, nil
}
