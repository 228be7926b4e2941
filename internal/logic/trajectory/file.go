package trajectory

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type sampleJSON struct {
	T   float64 `json:"t"`
	Pos int     `json:"pos"`
}

// Save writes samples as a JSON list of {"t": seconds, "pos": position}.
func Save(path string, samples []Sample) error {
	out := make([]sampleJSON, len(samples))
	for i, s := range samples {
		out[i] = sampleJSON{T: s.Elapsed.Seconds(), Pos: s.Position}
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("encode trajectory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trajectory: %w", err)
	}
	return nil
}

// Load reads a file written by Save. Timestamps must be non-decreasing.
func Load(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trajectory: %w", err)
	}
	var in []sampleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode trajectory %s: %w", path, err)
	}

	samples := make([]Sample, len(in))
	for i, s := range in {
		samples[i] = Sample{
			Elapsed:  time.Duration(s.T * float64(time.Second)).Round(time.Microsecond),
			Position: s.Pos,
		}
		if i > 0 && samples[i].Elapsed < samples[i-1].Elapsed {
			return nil, fmt.Errorf("trajectory %s: sample %d goes back in time", path, i)
		}
	}
	return samples, nil
}
