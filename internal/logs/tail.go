package logs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LastLines returns up to limit trailing lines of the file at path.
// A missing file yields no lines and no error.
func LastLines(path string, limit int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	lines, err := lastLines(file, limit)
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return lines, nil
}

// TailText returns the last limit lines of text joined by newlines.
func TailText(text string, limit int) string {
	lines, _ := lastLines(strings.NewReader(text), limit)
	return strings.Join(lines, "\n")
}

func lastLines(r io.Reader, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ring := make([]string, limit)
	count, idx := 0, 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	lines := make([]string, count)
	if count == limit {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Excerpt labels a block of diagnostic lines for inclusion in a stage report.
// Empty input yields an empty string so callers can append unconditionally.
func Excerpt(label, text string) string {
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return fmt.Sprintf("--- %s ---\n%s", label, text)
}

// JoinExcerpts concatenates non-empty excerpts separated by blank lines.
func JoinExcerpts(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "\n\n")
}
