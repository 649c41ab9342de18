package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "transient wrapper",
			err:  &TransientError{Op: "ftp retr", Err: errors.New("connection reset")},
			want: true,
		},
		{
			name: "wrapped transient wrapper",
			err:  fmt.Errorf("fetch: %w", &TransientError{Op: "ftp retr", Err: errors.New("reset")}),
			want: true,
		},
		{
			name: "network timeout",
			err:  timeoutErr{},
			want: true,
		},
		{
			name: "malformed archive is permanent",
			err:  &MalformedArchiveError{Archive: "a.zip"},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("file not found"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestMalformedArchiveError_Message(t *testing.T) {
	none := &MalformedArchiveError{Archive: "PRISM_tmean_stable_4kmD2_20050615_bil.zip"}
	assert.Contains(t, none.Error(), "no .bil raster")

	many := &MalformedArchiveError{Archive: "a.zip", Rasters: []string{"one.bil", "two.bil"}}
	assert.Contains(t, many.Error(), "2 .bil rasters")
	assert.Contains(t, many.Error(), "one.bil")
}
