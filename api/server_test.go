package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blind-voting/blindsig"
	"blind-voting/models"
	"blind-voting/service"
	"blind-voting/storage"
)

const testToken = "s3cret"

func newTestServer(t *testing.T, withQueue bool) (*httptest.Server, *service.VotingService) {
	t.Helper()
	key, err := blindsig.NewKeyPair(big.NewInt(33), big.NewInt(7), big.NewInt(3))
	require.NoError(t, err)
	vs, err := service.NewVotingService(service.Config{
		DataDir:     t.TempDir(),
		StorageType: storage.TypeMemory,
		Candidates:  []string{"Ada", "Grace", "Edsger"},
		Voters:      []string{"v1", "v2", "v3"},
		Key:         key,
	})
	require.NoError(t, err)

	opts := Options{AdminToken: testToken}
	if withQueue {
		qp := service.NewQueueProcessor(vs, 8)
		qp.Start(context.Background())
		t.Cleanup(func() { qp.Stop() })
		opts.Queue = qp
	}
	ts := httptest.NewServer(NewServer(vs, opts))
	t.Cleanup(func() {
		ts.Close()
		vs.Close()
	})
	return ts, vs
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestVotingFlow(t *testing.T) {
	for _, withQueue := range []bool{false, true} {
		name := "direct"
		if withQueue {
			name = "queued"
		}
		t.Run(name, func(t *testing.T) {
			ts, _ := newTestServer(t, withQueue)

			resp := post(t, ts.URL+"/api/register", RegisterVoterRequest{VoterID: "v1"})
			assert.Equal(t, http.StatusCreated, resp.StatusCode)
			resp = post(t, ts.URL+"/api/register", RegisterVoterRequest{VoterID: "v1"})
			assert.Equal(t, http.StatusConflict, resp.StatusCode)
			resp = post(t, ts.URL+"/api/register", RegisterVoterRequest{VoterID: "nobody"})
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)

			resp = post(t, ts.URL+"/api/vote", CastVoteRequest{VoterID: "v1", Candidate: 9})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			resp = post(t, ts.URL+"/api/vote", CastVoteRequest{VoterID: "v1", Candidate: 3})
			require.Equal(t, http.StatusCreated, resp.StatusCode)
			var record models.VoteRecord
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
			assert.Equal(t, int64(3), record.Ballot.Int64())

			resp = post(t, ts.URL+"/api/vote", CastVoteRequest{VoterID: "v1", Candidate: 1})
			assert.Equal(t, http.StatusConflict, resp.StatusCode)

			resp = post(t, ts.URL+"/api/vote", CastVoteRequest{VoterID: "v2", Candidate: 1})
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)

			var results service.ResultsResponse
			get(t, ts.URL+"/api/results", &results)
			assert.Equal(t, 1, results.TotalVotes)
			require.Len(t, results.Winners, 1)
			assert.Equal(t, "Edsger", results.Winners[0].Name)
			assert.True(t, results.Consistent)
		})
	}
}

func TestPublicKeyAndVerify(t *testing.T) {
	ts, vs := newTestServer(t, false)

	var pk PublicKeyResponse
	resp := get(t, ts.URL+"/api/public-key", &pk)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(33), pk.Key.N.Int64())
	assert.Equal(t, int64(7), pk.Key.E.Int64())
	assert.Equal(t, vs.PublicKey().Fingerprint().Hex(), pk.Fingerprint)

	ctx := context.Background()
	_, err := vs.RegisterVoter(ctx, "v1")
	require.NoError(t, err)
	_, err = vs.CastVote(ctx, "v1", 2)
	require.NoError(t, err)

	var records []models.VoteRecord
	get(t, ts.URL+"/api/records", &records)
	require.Len(t, records, 1)

	var verified VerifyResponse
	resp = post(t, ts.URL+"/api/verify", records[0])
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verified))
	assert.True(t, verified.Valid)

	records[0].Ballot = big.NewInt(3)
	resp = post(t, ts.URL+"/api/verify", records[0])
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verified))
	assert.False(t, verified.Valid)

	// A zero ballot with a zero signature satisfies 0^e mod n == 0 but is
	// outside the ballot domain.
	resp, err = http.Post(ts.URL+"/api/verify", "application/json",
		strings.NewReader(`{"id":"zero","ballot":"0x","signature":"0x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verified))
	assert.Equal(t, "zero", verified.ID)
	assert.False(t, verified.Valid)
}

func TestChainsAndStatus(t *testing.T) {
	ts, vs := newTestServer(t, false)
	_, err := vs.RegisterVoter(context.Background(), "v1")
	require.NoError(t, err)

	var chain service.BlockchainResponse
	resp := get(t, ts.URL+"/api/blockchain/gate", &chain)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, chain.BlockCount)
	assert.True(t, chain.IsValid)

	resp = get(t, ts.URL+"/api/blockchain/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var status StatusResponse
	get(t, ts.URL+"/api/status", &status)
	assert.True(t, status.Session.Active)
	assert.Equal(t, 1, status.Statistics.RegisteredCount)
}

func TestEndSessionRequiresToken(t *testing.T) {
	ts, vs := newTestServer(t, false)

	resp := post(t, ts.URL+"/api/admin/end-session", struct{}{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, vs.IsVotingActive())

	for _, header := range []string{"Bearer " + testToken + "x", "Bearer s3cre", "bearer " + testToken, testToken} {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/admin/end-session", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", header)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, header)
	}
	assert.True(t, vs.IsVotingActive())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/admin/end-session", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, vs.IsVotingActive())

	resp = post(t, ts.URL+"/api/register", RegisterVoterRequest{VoterID: "v2"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, false)
	post(t, ts.URL+"/api/register", RegisterVoterRequest{VoterID: "v1"})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), `ballot_registrations_total{result="ok"} 1`))
}

func TestBadRequestBody(t *testing.T) {
	ts, _ := newTestServer(t, false)
	resp, err := http.Post(ts.URL+"/api/vote", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
