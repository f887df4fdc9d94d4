package source

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/zsiec/tsingest/internal/config"
)

// ErrNoObjects is returned when the objects file lists nothing.
var ErrNoObjects = errors.New("objects file has no entries")

// LoadObjects reads one object key per line, ignoring blank lines.
func LoadObjects(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open objects file: %w", err)
	}
	defer f.Close()

	var objects []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			objects = append(objects, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read objects file: %w", err)
	}
	if len(objects) == 0 {
		return nil, ErrNoObjects
	}
	return objects, nil
}

// Pick returns one object chosen uniformly at random.
func Pick(objects []string, rng *rand.Rand) string {
	return objects[rng.Intn(len(objects))]
}

// Join appends an object key to a base URL.
func Join(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(key, "/")
}

// Resolve returns the object URL to ingest: the configured URL if set,
// otherwise a random entry of the objects file under the base URL.
func Resolve(cfg *config.SourceConfig) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}

	objects, err := LoadObjects(cfg.ObjectsFile)
	if err != nil {
		return "", err
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return Join(cfg.BaseURL, Pick(objects, rng)), nil
}
