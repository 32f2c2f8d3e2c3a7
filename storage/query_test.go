package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/axon/errs"
	"github.com/arloliu/axon/format"
	"github.com/arloliu/axon/page"
)

func TestParseQuery(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  page.Query
	}{
		{
			name:  "explicit forward",
			query: "7:10:20:fwd",
			want:  page.Query{Param: 7, Lo: 10, Hi: 20, Dir: format.Forward},
		},
		{
			name:  "backward",
			query: "7:10:20:bwd",
			want:  page.Query{Param: 7, Lo: 10, Hi: 20, Dir: format.Backward},
		},
		{
			name:  "default direction",
			query: "1:0:5",
			want:  page.Query{Param: 1, Lo: 0, Hi: 5, Dir: format.Forward},
		},
		{
			name:  "unbounded range",
			query: "3:*:*",
			want: page.Query{
				Param: 3,
				Lo:    format.MinTimestamp,
				Hi:    format.MaxTimestamp,
				Dir:   format.Forward,
			},
		},
		{
			name:  "negative timestamps",
			query: "3:-100:-1",
			want:  page.Query{Param: 3, Lo: -100, Hi: -1, Dir: format.Forward},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseQuery(tc.query)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	t.Run("malformed", func(t *testing.T) {
		for _, q := range []string{"", "1", "1:2", "1:2:3:4:5", "x:0:1", "1:y:2", "1:0:z", "1:0:1:sideways"} {
			_, err := ParseQuery(q)
			require.ErrorIs(t, err, errs.ErrInvalidQuery, "query %q", q)
		}
	})
}
