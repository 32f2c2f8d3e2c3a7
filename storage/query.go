package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/axon/errs"
	"github.com/arloliu/axon/format"
	"github.com/arloliu/axon/page"
)

// ParseQuery turns a minimal query string into a page query. The full query
// language lives above this layer; the core accepts the plan form
//
//	<param>:<lo>:<hi>[:<dir>]
//
// where param is a numeric series id, lo/hi are inclusive timestamps ("*"
// for unbounded) and dir is "fwd" (default) or "bwd".
func ParseQuery(query string) (page.Query, error) {
	parts := strings.Split(query, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return page.Query{}, fmt.Errorf("query %q: %w", query, errs.ErrInvalidQuery)
	}

	param, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return page.Query{}, fmt.Errorf("query param %q: %w", parts[0], errs.ErrInvalidQuery)
	}

	lo, err := parseBound(parts[1], format.MinTimestamp)
	if err != nil {
		return page.Query{}, fmt.Errorf("query lower bound %q: %w", parts[1], errs.ErrInvalidQuery)
	}
	hi, err := parseBound(parts[2], format.MaxTimestamp)
	if err != nil {
		return page.Query{}, fmt.Errorf("query upper bound %q: %w", parts[2], errs.ErrInvalidQuery)
	}

	dir := format.Forward
	if len(parts) == 4 {
		switch parts[3] {
		case "fwd", "":
			dir = format.Forward
		case "bwd":
			dir = format.Backward
		default:
			return page.Query{}, fmt.Errorf("query direction %q: %w", parts[3], errs.ErrInvalidQuery)
		}
	}

	return page.Query{Param: param, Lo: lo, Hi: hi, Dir: dir}, nil
}

func parseBound(s string, unbounded int64) (int64, error) {
	if s == "*" || s == "" {
		return unbounded, nil
	}

	return strconv.ParseInt(s, 10, 64)
}
