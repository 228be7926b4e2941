package waypoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cjeanneret/LabMonkey/internal/logic/rig"
)

// ErrEmptyPath is returned by Save and Load when no file name is given.
var ErrEmptyPath = errors.New("waypoint file path is required")

// Save writes list as a JSON array of arrays, one inner array per pose,
// indented with four spaces.
func Save(path string, list []rig.Pose) error {
	if path == "" {
		return ErrEmptyPath
	}
	if list == nil {
		list = []rig.Pose{}
	}
	data, err := json.MarshalIndent(list, "", "    ")
	if err != nil {
		return fmt.Errorf("encode waypoints: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write waypoints: %w", err)
	}
	return nil
}

// Load reads a list written by Save. Pose widths are not validated.
func Load(path string) ([]rig.Pose, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read waypoints: %w", err)
	}
	var list []rig.Pose
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode waypoints %s: %w", path, err)
	}
	return list, nil
}
