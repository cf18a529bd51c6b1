package store

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
		{
			name: "disk full errno",
			err:  fmt.Errorf("write items: %w", syscall.ENOSPC),
			want: "The disk is full. Free up space and try saving again.",
		},
		{
			name: "disk full message",
			err:  errors.New("database or disk is full"),
			want: "The disk is full. Free up space and try saving again.",
		},
		{
			name: "permission denied",
			err:  fmt.Errorf("open catalog: %w", os.ErrPermission),
			want: "Permission denied writing the catalog. Check that the database path is writable.",
		},
		{
			name: "read-only volume",
			err:  fmt.Errorf("save: %w", syscall.EROFS),
			want: "The catalog is on a read-only volume and cannot be modified.",
		},
		{
			name: "readonly database message",
			err:  errors.New("attempt to write a readonly database"),
			want: "The catalog is on a read-only volume and cannot be modified.",
		},
		{
			name: "codec failure",
			err:  fmt.Errorf("image 0: %w", ErrImageEncode),
			want: "An image could not be encoded for storage. The item was not saved.",
		},
		{
			name: "unknown cause falls back to raw message",
			err:  errors.New("constraint failed: items.detection_id"),
			want: "constraint failed: items.detection_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}
