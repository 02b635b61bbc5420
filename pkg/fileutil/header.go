package fileutil

import (
	"fmt"
	"strings"
)

// MapHeader maps each expected column name to its index in header, ignoring case
func MapHeader(header []string, expected []string) (map[string]int, error) {
	columnMap := make(map[string]int, len(expected))

	for _, column := range expected {
		found := false
		for i, field := range header {
			if strings.EqualFold(column, strings.TrimSpace(field)) {
				columnMap[column] = i
				found = true
				break
			}
		}

		if !found {
			return nil, fmt.Errorf("required field '%s' not found in CSV header", column)
		}
	}

	return columnMap, nil
}

// MaxIndex returns the highest column index in columnMap, -1 when empty
func MaxIndex(columnMap map[string]int) int {
	maxIndex := -1
	for _, idx := range columnMap {
		if idx > maxIndex {
			maxIndex = idx
		}
	}
	return maxIndex
}
