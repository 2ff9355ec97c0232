// Package readmatrix loads whitespace-separated numeric text files into
// gonum matrices. It is used to feed grayscale images to the classifier
// without going through an image decoder.
package readmatrix

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ReadMatrix parses the named file into a dense matrix. Blank lines and
// lines starting with '#' are skipped. A single leading non-numeric
// line is treated as a header and skipped as well. Every remaining row
// must have the same number of columns.
func ReadMatrix(filename string) (*mat.Dense, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("readmatrix: open: %w", err)
	}
	defer file.Close()

	var rows [][]float64
	scanner := bufio.NewScanner(file)
	sawHeader := false

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		fields := strings.Fields(line)

		if !sawHeader && len(rows) == 0 {
			numeric := true
			for _, field := range fields {
				if _, err := strconv.ParseFloat(field, 64); err != nil {
					numeric = false
					break
				}
			}
			if !numeric {
				sawHeader = true
				continue
			}
		}

		row := make([]float64, len(fields))
		for i, field := range fields {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("readmatrix: line %d, column %d: %w", len(rows)+1, i+1, err)
			}
			row[i] = val
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("readmatrix: read: %w", err)
	}

	if len(rows) == 0 {
		return &mat.Dense{}, nil
	}

	cols := len(rows[0])
	flat := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("readmatrix: row %d has %d columns, expected %d", i+1, len(row), cols)
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(len(rows), cols, flat), nil
}
