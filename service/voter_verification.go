package service

import (
	"errors"
	"fmt"
	"regexp"

	"blind-voting/registry"
)

var voterIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@+\-]{1,128}$`)

// ErrInvalidVoterID is returned for identities that are not well formed.
var ErrInvalidVoterID = errors.New("invalid voter id")

// VoterVerificationService checks a voter identity against the voter
// registry before it reaches the gate.
type VoterVerificationService struct {
	voterRegistry registry.VoterRegistry
}

func NewVoterVerificationService(voters registry.VoterRegistry) *VoterVerificationService {
	return &VoterVerificationService{voterRegistry: voters}
}

// VerifyVoter returns nil if voterID is well formed and eligible.
func (vvs *VoterVerificationService) VerifyVoter(voterID string) error {
	if !voterIDPattern.MatchString(voterID) {
		return ErrInvalidVoterID
	}
	if err := vvs.voterRegistry.CheckEligible(voterID); err != nil {
		return fmt.Errorf("voter verification failed: %w", err)
	}
	return nil
}
