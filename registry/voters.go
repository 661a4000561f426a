package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrUnknownVoter is returned for identities the registry does not know.
var ErrUnknownVoter = errors.New("voter not found in registry")

// ErrInactiveVoter is returned for known but ineligible identities.
var ErrInactiveVoter = errors.New("voter is not eligible")

// VoterRegistry is the external source of voter eligibility. Identities
// are opaque stable strings.
type VoterRegistry interface {
	CheckEligible(voterID string) error
}

// VoterDetails is one registry entry.
type VoterDetails struct {
	VoterID  string `json:"voter_id"`
	IsActive bool   `json:"is_active"`
}

// RegistryConfig points a FileVoterRegistry at its backing file.
type RegistryConfig struct {
	VotersFilePath string `json:"voters_file_path"`
}

// FileVoterRegistry implements VoterRegistry from a JSON file of the form
// {"voters":[{"voter_id":"...","is_active":true}]}.
type FileVoterRegistry struct {
	voters map[string]*VoterDetails
	mu     sync.RWMutex
	config RegistryConfig
}

// NewFileVoterRegistry loads the registry, creating an empty file if none
// exists.
func NewFileVoterRegistry(config RegistryConfig) (*FileVoterRegistry, error) {
	registry := &FileVoterRegistry{
		voters: make(map[string]*VoterDetails),
		config: config,
	}

	dir := filepath.Dir(config.VotersFilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := registry.LoadVotersFromFile(); err != nil {
		return nil, err
	}
	return registry, nil
}

// NewStaticVoterRegistry returns an in-memory registry where every listed
// identity is active.
func NewStaticVoterRegistry(voterIDs ...string) *FileVoterRegistry {
	registry := &FileVoterRegistry{voters: make(map[string]*VoterDetails, len(voterIDs))}
	for _, id := range voterIDs {
		registry.voters[id] = &VoterDetails{VoterID: id, IsActive: true}
	}
	return registry
}

// LoadVotersFromFile replaces the in-memory registry with the file content.
func (m *FileVoterRegistry) LoadVotersFromFile() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.config.VotersFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return m.createEmptyVotersFile()
		}
		return fmt.Errorf("failed to read voters file: %w", err)
	}

	var votersData struct {
		Voters []*VoterDetails `json:"voters"`
	}
	if err := json.Unmarshal(data, &votersData); err != nil {
		return fmt.Errorf("failed to unmarshal voter data: %w", err)
	}

	voters := make(map[string]*VoterDetails, len(votersData.Voters))
	for i, voter := range votersData.Voters {
		if strings.TrimSpace(voter.VoterID) == "" {
			return fmt.Errorf("voter entry %d has no voter_id", i)
		}
		if _, dup := voters[voter.VoterID]; dup {
			return fmt.Errorf("duplicate voter_id at entry %d", i)
		}
		voters[voter.VoterID] = voter
	}
	m.voters = voters
	return nil
}

func (m *FileVoterRegistry) createEmptyVotersFile() error {
	data, err := json.MarshalIndent(struct {
		Voters []*VoterDetails `json:"voters"`
	}{Voters: []*VoterDetails{}}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal voter data: %w", err)
	}
	if err := os.WriteFile(m.config.VotersFilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to save voters file: %w", err)
	}
	return nil
}

func (m *FileVoterRegistry) CheckEligible(voterID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	voter, exists := m.voters[voterID]
	if !exists {
		return ErrUnknownVoter
	}
	if !voter.IsActive {
		return ErrInactiveVoter
	}
	return nil
}

// Len returns the number of known identities, active or not.
func (m *FileVoterRegistry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.voters)
}
