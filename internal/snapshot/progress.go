package snapshot

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
)

// IterationBar renders a progress bar over a fixed iteration count, the
// same library and options the teacher used to track an upload's byte
// count, repointed at solver iterations instead.
type IterationBar struct {
	bar *progressbar.ProgressBar
}

// NewIterationBar creates a progress bar for total iterations.
func NewIterationBar(total int, description string) *IterationBar {
	return &IterationBar{
		bar: progressbar.NewOptions(
			total,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWidth(15),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { fmt.Println() }),
		),
	}
}

// Add advances the bar by n completed iterations.
func (b *IterationBar) Add(n int) error {
	return b.bar.Add(n)
}

// Finish marks the bar as complete.
func (b *IterationBar) Finish() error {
	return b.bar.Finish()
}
