package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/segmentio/encoding/json"
	"gopkg.in/yaml.v3"

	"github.com/skilleval/engine/pkg/types"
)

// LoadFile reads a JSON or YAML trace document, then normalises and
// validates it.
func LoadFile(path string) (*types.Trace, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	if info.Size() > MaxTraceSize {
		return nil, fmt.Errorf("trace %s is %d bytes, limit is %d", path, info.Size(), MaxTraceSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	var t types.Trace
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &t)
	default:
		err = json.Unmarshal(data, &t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode trace %s: %w", path, err)
	}

	Normalize(&t)
	if rpcErr := Validate(&t); rpcErr != nil {
		return nil, rpcErr
	}
	return &t, nil
}
