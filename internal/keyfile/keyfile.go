// Package keyfile reads raw private keys from an operator-supplied file.
package keyfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrKeyFileMissing indicates the key file could not be opened.
var ErrKeyFileMissing = errors.New("key file missing")

// Load reads one hex-encoded private key per line, trimming whitespace and
// skipping blank lines. Malformed keys are returned as-is; rejection happens
// at derivation time so one bad line cannot sink the whole batch.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyFileMissing, path)
		}
		return nil, fmt.Errorf("open key file: %w", err)
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	return keys, nil
}
