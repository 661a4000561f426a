package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/spf13/cobra"

	"blind-voting/blindsig"
	"blind-voting/service"
	"blind-voting/storage"
	"blind-voting/tally"
)

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run an in-memory election where every voter picks a random candidate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			if len(cfg.candidates) == 0 {
				cfg.candidates = []string{"Alice", "Bob", "Carol"}
			}
			if len(cfg.voters) == 0 {
				for i := 1; i <= 10; i++ {
					cfg.voters = append(cfg.voters, fmt.Sprintf("voter-%d", i))
				}
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func runDemo(ctx context.Context, out io.Writer, cfg *ballotConfig) error {
	key, err := blindsig.GenerateKey(rand.Reader, cfg.keyOptions())
	if err != nil {
		return err
	}
	sc := cfg.serviceConfig()
	sc.StorageType = storage.TypeMemory
	sc.Key = key
	sc.Difficulty = 0
	vs, err := service.NewVotingService(sc)
	if err != nil {
		return err
	}
	defer vs.Close()

	fmt.Fprintf(out, "authority key %s (%d bits)\n", key.Fingerprint().Hex(), key.N.BitLen())
	candidates := big.NewInt(int64(len(cfg.candidates)))
	for _, voter := range cfg.voters {
		if _, err := vs.RegisterVoter(ctx, voter); err != nil {
			return fmt.Errorf("register %s: %w", voter, err)
		}
		pick, err := rand.Int(rand.Reader, candidates)
		if err != nil {
			return err
		}
		if _, err := vs.CastVote(ctx, voter, uint32(pick.Int64())+1); err != nil {
			return fmt.Errorf("vote %s: %w", voter, err)
		}
	}
	vs.EndVotingSession()

	results := vs.GetResults()
	printResults(out, results.Summary)
	if !results.Conserved || !results.Consistent {
		return errors.New("tally does not match the ledger")
	}
	return nil
}

func printResults(out io.Writer, s tally.Summary) {
	fmt.Fprintf(out, "\n--- Final vote counts ---\n")
	fmt.Fprintf(out, "Total number of voters: %d\n", s.TotalVotes)
	for _, r := range s.Results {
		fmt.Fprintf(out, "  %d. %s: %d votes\n", r.Code, r.Name, r.Count)
	}
	fmt.Fprintf(out, "\n%s\n", s.Outcome)
}
