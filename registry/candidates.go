package registry

import (
	"errors"
	"fmt"
	"strings"

	"blind-voting/models"
)

// Candidates is the ordered candidate registry of one election. Codes run
// from 1 to Len() in the order the names were given. It is immutable.
type Candidates struct {
	list   []models.Candidate
	byCode map[uint32]string
}

// NewCandidates numbers the given names starting at 1.
func NewCandidates(names []string) (*Candidates, error) {
	if len(names) == 0 {
		return nil, errors.New("no candidates")
	}
	c := &Candidates{
		list:   make([]models.Candidate, 0, len(names)),
		byCode: make(map[uint32]string, len(names)),
	}
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("candidate %d has an empty name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate candidate %q", name)
		}
		seen[name] = true
		code := uint32(i + 1)
		c.list = append(c.list, models.Candidate{Code: code, Name: name})
		c.byCode[code] = name
	}
	return c, nil
}

// Name resolves a ballot code.
func (c *Candidates) Name(code uint32) (string, bool) {
	name, ok := c.byCode[code]
	return name, ok
}

// List returns the candidates in code order.
func (c *Candidates) List() []models.Candidate {
	out := make([]models.Candidate, len(c.list))
	copy(out, c.list)
	return out
}

func (c *Candidates) Len() int { return len(c.list) }

// MaxCode is the largest valid ballot code.
func (c *Candidates) MaxCode() uint32 { return uint32(len(c.list)) }
