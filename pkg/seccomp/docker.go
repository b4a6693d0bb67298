package seccomp

import (
	"encoding/json"
	"fmt"
)

// DockerProfileJSON renders DefaultProfile in the format accepted by
// `docker run --security-opt seccomp=<file>`. The OCI field names and action
// strings are the ones Docker reads, so the OCI type marshals as is.
func DockerProfileJSON() ([]byte, error) {
	data, err := json.MarshalIndent(DefaultProfile(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling seccomp profile: %w", err)
	}
	return data, nil
}
