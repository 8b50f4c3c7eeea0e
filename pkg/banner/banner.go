package banner

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
)

const (
	colorReset = "\x1b[0m"
	colorBlue  = "\x1b[1;34m"
)

// Print writes an ASCII banner for the daemon start to stdout.
func Print(text string) {
	fig := figure.NewFigure(text, "", true)
	for _, line := range fig.Slicify() {
		fmt.Println(colorBlue + line + colorReset)
	}
}
