package service

import (
	"crypto/rand"
	"math/big"

	"blind-voting/models"
)

// AnonymizationService mixes published records so that their order does
// not reveal the order in which votes were cast.
type AnonymizationService struct{}

func NewAnonymizationService() *AnonymizationService {
	return &AnonymizationService{}
}

// Shuffle returns a Fisher–Yates permutation of records drawn from
// crypto/rand. The input slice is not modified.
func (as *AnonymizationService) Shuffle(records []models.VoteRecord) ([]models.VoteRecord, error) {
	mixed := make([]models.VoteRecord, len(records))
	copy(mixed, records)
	for i := len(mixed) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, err
		}
		mixed[i], mixed[j.Int64()] = mixed[j.Int64()], mixed[i]
	}
	return mixed, nil
}
