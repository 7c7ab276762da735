// Package gpu lists display adapters and selects one for PRIME offload.
package gpu

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Auto leaves adapter selection to the system.
const Auto = -1

var classes = []string{"VGA", "3D", "Display"}

// Detect runs lspci and returns one description per display adapter, in
// bus order. Index i in the result is the DRI_PRIME value for that adapter.
func Detect(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "lspci").Output()
	if err != nil {
		return nil, fmt.Errorf("running lspci: %w", err)
	}
	return Parse(bytes.NewReader(out)), nil
}

// Parse extracts adapter descriptions from lspci output.
func Parse(r io.Reader) []string {
	var gpus []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !isDisplay(line) {
			continue
		}
		if _, desc, ok := strings.Cut(line, ": "); ok {
			line = desc
		}
		gpus = append(gpus, line)
	}
	return gpus
}

func isDisplay(line string) bool {
	for _, c := range classes {
		if strings.Contains(line, c) {
			return true
		}
	}
	return false
}

// EnvFor returns the variables selecting adapter index, or nil for Auto.
func EnvFor(index int) map[string]string {
	if index < 0 {
		return nil
	}
	return map[string]string{"DRI_PRIME": strconv.Itoa(index)}
}
