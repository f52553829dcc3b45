package rtlog

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/undefinedlabs/go-mpatch"
)

// safeUnpatch mirrors the teacher's cmd/list/list_test.go helper: report a
// failed unpatch instead of silently leaking a patched time.Now across
// tests.
func safeUnpatch(t *testing.T, patch *mpatch.Patch) {
	if err := patch.Unpatch(); err != nil {
		t.Errorf("failed to unpatch: %v", err)
	}
}

func TestLogTimestampUsesTimeNow(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	patch, err := mpatch.PatchMethod(time.Now, func() time.Time { return fixed })
	require.NoError(t, err)
	defer safeUnpatch(t, patch)

	var buf bytes.Buffer
	l := &Logger{out: &buf, level: INFO, format: Text}
	l.Info("hello")

	require.Contains(t, buf.String(), fixed.Format("2006/01/02 15:04:05"))
}
