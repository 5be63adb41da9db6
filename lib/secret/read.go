// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// ReadFromPath loads a secret from a file into a locked Buffer. The path
// "-" reads a single line from stdin instead, for credentials piped into
// the CLI. Surrounding whitespace is stripped so a trailing newline from
// an editor or echo never becomes part of the secret, and every
// intermediate plaintext copy is zeroed before returning. The caller owns
// the Buffer and must Close it.
func ReadFromPath(path string) (*Buffer, error) {
	raw, err := readSource(path)
	if err != nil {
		return nil, err
	}

	value := bytes.TrimSpace(raw)
	if len(value) == 0 {
		Zero(raw)
		return nil, fmt.Errorf("secret: empty after trimming whitespace")
	}

	// NewFromBytes wipes value, which aliases raw. Zero(raw) catches the
	// trimmed whitespace on either side of it.
	buffer, err := NewFromBytes(value)
	Zero(raw)
	return buffer, err
}

func readSource(path string) ([]byte, error) {
	if path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("secret: %w", err)
		}
		return data, nil
	}
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Bytes(), nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("secret: reading stdin: %w", err)
	}
	return nil, fmt.Errorf("secret: stdin closed without input")
}
