package state

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imamik/edgefip/internal/floatingip"
)

// Store loads and saves interface runtime state.
type Store interface {
	// Load returns the state of an interface, or an empty state when none
	// was saved.
	Load(ctx context.Context, id string) (*floatingip.RuntimeState, error)
	// Save stores the state. An empty state removes the record.
	Save(ctx context.Context, id string, s *floatingip.RuntimeState) error
}

func isEmpty(s *floatingip.RuntimeState) bool {
	return s == nil || (s.PublicIP == "" && s.Pending == "")
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("invalid interface id %q", id)
	}
	return nil
}

func decode(data []byte) (*floatingip.RuntimeState, error) {
	var s floatingip.RuntimeState
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return &s, nil
}
