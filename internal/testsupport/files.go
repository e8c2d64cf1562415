package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path string, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t testing.TB, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// SampleDataset is a small raw weather dataset in the input file layout.
const SampleDataset = `city,date,temp_max,temp_min,temp_mean,precipitation,rain
Madrid,2023-01-01,12.1,3.4,7.8,0.0,0
Madrid,2023-01-02,13.5,4.1,8.6,1.2,1
Sevilla,2023-07-01,38.2,22.0,30.1,0.0,0
`

// TemperatureRows and PrecipitationRows are raw part-file rows the fake
// cluster emits for the two jobs.
const (
	TemperatureRows   = "Madrid,2023,1,January,12.8,3.75,8.2,13.5,3.4,2\nSevilla,2023,7,July,38.2,22.0,30.1,38.2,22.0,1\n"
	PrecipitationRows = "Madrid,2023,Winter,1.2,1.2,1.2,1,1\nSevilla,2023,Summer,0.0,0.0,0.0,0,1\n"
)
