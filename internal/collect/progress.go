package collect

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// dirProgress shows how many images of a directory have been handled.
type dirProgress struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

func newDirProgress(out io.Writer, dir string, count int) *dirProgress {
	if out == nil || count == 0 {
		return nil
	}
	bar := progressbar.NewOptions(count,
		progressbar.OptionSetDescription(color.CyanString("Reading %s", dir)),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.CyanString("█"),
			SaucerHead:    color.CyanString("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(out),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &dirProgress{bar: bar, out: out}
}

func (p *dirProgress) Add(n int) {
	if p == nil {
		return
	}
	_ = p.bar.Add(n)
}

func (p *dirProgress) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}
