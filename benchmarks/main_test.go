package benchmarks

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupBenchCache()
	os.Exit(code)
}
