package mindar

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// NewProgressBar returns a byte counting progress bar for an export of
// unknown size, rendered to w.
func NewProgressBar(w io.Writer, table string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("exporting "+table),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(10),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
