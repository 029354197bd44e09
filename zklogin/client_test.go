////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zklogin

import (
	"bytes"
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"
	"gitlab.com/elixxir/zklogin/ledger"
	"gitlab.com/elixxir/zklogin/oauth"
	"gitlab.com/elixxir/zklogin/prover"
	"gitlab.com/elixxir/zklogin/storage"
	"gitlab.com/elixxir/zklogin/transaction"
	"gitlab.com/elixxir/zklogin/zkcrypto"
)

const testDigest = "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"

type fakeLedger struct {
	mux        sync.Mutex
	epoch      uint64
	epochBlock chan struct{}
	balance    int64
	calls      map[string]int
}

func newFakeLedger(epoch uint64) *fakeLedger {
	return &fakeLedger{epoch: epoch, balance: 2 * ledger.MistPerSui,
		calls: map[string]int{}}
}

func (l *fakeLedger) called(method string) int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.calls[method]
}

func (l *fakeLedger) record(method string) {
	l.mux.Lock()
	defer l.mux.Unlock()
	l.calls[method]++
}

func (l *fakeLedger) CurrentEpoch(context.Context) (uint64, error) {
	l.record("epoch")
	if l.epochBlock != nil {
		<-l.epochBlock
	}
	return l.epoch, nil
}

func (l *fakeLedger) Balance(context.Context, string) (*big.Int, error) {
	l.record("balance")
	return big.NewInt(l.balance), nil
}

func (l *fakeLedger) BuildTransfer(context.Context, string, string, uint64,
	uint64) ([]byte, error) {
	l.record("build")
	return []byte("transfer"), nil
}

func (l *fakeLedger) Execute(context.Context, []byte, string) (
	*ledger.ExecutionResult, error) {
	l.record("execute")
	return &ledger.ExecutionResult{Digest: testDigest, Status: "success"}, nil
}

type fakeTokens struct {
	mux      sync.Mutex
	exchange func(code string) (string, error)
	codes    []string
}

func (f *fakeTokens) AuthorizationURL(nonce string) (string, error) {
	return "https://provider/authorize?nonce=" + nonce, nil
}

func (f *fakeTokens) ExchangeCodeForToken(_ context.Context, code string) (
	string, error) {
	f.mux.Lock()
	f.codes = append(f.codes, code)
	exchange := f.exchange
	f.mux.Unlock()
	return exchange(code)
}

type fakeFaucet struct {
	recipients []string
}

func (f *fakeFaucet) Request(_ context.Context, recipient string) (uint64,
	error) {
	f.recipients = append(f.recipients, recipient)
	return ledger.MistPerSui, nil
}

const proofJSON = `{
	"proofPoints": {"a": ["1", "2", "1"], "b": [["3", "4"], ["5", "6"], ["1", "0"]], "c": ["7", "8", "1"]},
	"issBase64Details": {"value": "wiaXNzIjoicHJvdmlkZXIiLC", "indexMod4": 2},
	"headerBase64": "eyJhbGciOiJSUzI1NiJ9"
}`

type testEnv struct {
	client      *Client
	ledger      *fakeLedger
	tokens      *fakeTokens
	faucet      *fakeFaucet
	proverCalls *int
	proverMux   *sync.Mutex
	store       *storage.Session
}

// newTestEnv builds a Client with fake collaborators. The prover is the real
// client pointed at a server answering with status and body.
func newTestEnv(t *testing.T, proverStatus int, proverBody string) *testEnv {
	var (
		calls int
		mux   sync.Mutex
	)
	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			mux.Lock()
			calls++
			mux.Unlock()
			w.WriteHeader(proverStatus)
			w.Write([]byte(proverBody))
		}))
	t.Cleanup(ts.Close)

	env := &testEnv{
		ledger:      newFakeLedger(100),
		tokens:      &fakeTokens{},
		faucet:      &fakeFaucet{},
		proverCalls: &calls,
		proverMux:   &mux,
		store:       storage.New(ekv.MakeMemstore(), ekv.MakeMemstore()),
	}

	params := GetDefaultParams()
	params.ClientID = "client1"
	params.BalancePollInterval = 10 * time.Millisecond

	c, err := NewClient(params, env.store, Collaborators{
		Ledger: env.ledger,
		Prover: prover.NewClient(ts.URL, ts.Client()),
		Tokens: env.tokens,
		Faucet: env.faucet,
	}, bytes.NewReader(bytes.Repeat([]byte{7}, 1024)), nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	env.client = c
	return env
}

func (env *testEnv) proverCount() int {
	env.proverMux.Lock()
	defer env.proverMux.Unlock()
	return *env.proverCalls
}

func makeToken(t *testing.T, nonce string) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   "provider",
		"aud":   "client1",
		"sub":   "u1",
		"nonce": nonce,
	}).SignedString([]byte("test key"))
	require.NoError(t, err)
	return token
}

// login runs the steps up to a stored identity token, answering the code
// exchange with a token carrying the session nonce.
func (env *testEnv) login(t *testing.T) *oauth.Claims {
	require.NoError(t, env.client.Start())
	_, err := env.client.ResolveEpoch(context.Background())
	require.NoError(t, err)
	nonce, err := env.client.Nonce()
	require.NoError(t, err)

	env.tokens.exchange = func(string) (string, error) {
		return makeToken(t, nonce), nil
	}
	claims, err := env.client.CompleteLogin(context.Background(),
		"http://localhost:3001/?code=abc123")
	require.NoError(t, err)
	return claims
}

// Generate a key, resolve the epoch 100 into 110, and derive a nonce that
// is reproducible from the same inputs.
func TestClient_KeyEpochNonce(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client

	require.NoError(t, c.Start())
	expiry, err := c.ResolveEpoch(context.Background())
	require.NoError(t, err)
	if expiry != 110 {
		t.Errorf("Unexpected expiry epoch.\nexpected: %d\nreceived: %d",
			110, expiry)
	}

	nonce, err := c.Nonce()
	require.NoError(t, err)
	again, err := c.Nonce()
	require.NoError(t, err)
	require.Equal(t, nonce, again)

	kp, err := c.keys.Restore()
	require.NoError(t, err)
	randomness, _, err := c.keys.RestoreRandomness()
	require.NoError(t, err)
	direct, err := zkcrypto.ComputeNonce(kp.PublicKey(), 110, randomness)
	require.NoError(t, err)
	require.Equal(t, nonce, direct)

	authURL, err := c.AuthorizationURL()
	require.NoError(t, err)
	require.Contains(t, authURL, nonce)
}

// Exchange the code abc123, decode the claims and check that the address
// depends on the salt.
func TestClient_LoginAndAddress(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client

	claims := env.login(t)
	require.Equal(t, []string{"abc123"}, env.tokens.codes)
	require.Equal(t, oauth.Claims{Issuer: "provider", Audience: "client1",
		Subject: "u1", Nonce: claims.Nonce}, *claims)

	_, err := c.Address()
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, []string{"salt"}, pe.Missing)

	require.NoError(t, env.store.SetString(storage.DurableScope,
		storage.UserSaltKey, "1"))
	a1, err := c.Address()
	require.NoError(t, err)
	a1Again, err := c.Address()
	require.NoError(t, err)
	require.Equal(t, a1, a1Again)

	require.NoError(t, env.store.SetString(storage.DurableScope,
		storage.UserSaltKey, "2"))
	a2, err := c.Address()
	require.NoError(t, err)
	require.NotEqual(t, a1, a2)
}

// Tests that a token from the fragment is used without an exchange.
func TestClient_CompleteLogin_Fragment(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	require.NoError(t, c.Start())
	_, err := c.ResolveEpoch(context.Background())
	require.NoError(t, err)
	nonce, err := c.Nonce()
	require.NoError(t, err)

	_, err = c.CompleteLogin(context.Background(),
		"http://localhost:3001/#id_token="+makeToken(t, nonce))
	require.NoError(t, err)
	require.Empty(t, env.tokens.codes)
}

// Tests that a token for another nonce is a protocol invariant error and
// is not stored.
func TestClient_CompleteLogin_NonceMismatch(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	require.NoError(t, c.Start())
	_, err := c.ResolveEpoch(context.Background())
	require.NoError(t, err)

	env.tokens.exchange = func(string) (string, error) {
		return makeToken(t, "someone else's nonce"), nil
	}
	_, err = c.CompleteLogin(context.Background(), "http://x/?code=abc123")
	var ie *ProtocolInvariantError
	require.True(t, errors.As(err, &ie))
	require.ErrorIs(t, err, ErrNonceMismatch)

	claims, err := c.Claims()
	require.NoError(t, err)
	require.Nil(t, claims)
}

// Tests that a new session started while a login is completing leaves the
// token of the old session unstored.
func TestClient_CompleteLogin_StartDuringExchange(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	require.NoError(t, c.Start())
	_, err := c.ResolveEpoch(context.Background())
	require.NoError(t, err)
	nonce, err := c.Nonce()
	require.NoError(t, err)

	env.tokens.exchange = func(string) (string, error) {
		require.NoError(t, c.Start())
		return makeToken(t, nonce), nil
	}
	_, err = c.CompleteLogin(context.Background(), "http://x/?code=abc123")
	require.ErrorIs(t, err, ErrStaleResult)

	claims, err := c.Claims()
	require.NoError(t, err)
	require.Nil(t, claims)
}

// Tests that a malformed token is a decode error.
func TestClient_CompleteLogin_Malformed(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	require.NoError(t, c.Start())
	_, err := c.ResolveEpoch(context.Background())
	require.NoError(t, err)

	env.tokens.exchange = func(string) (string, error) {
		return "not-a-jwt", nil
	}
	_, err = c.CompleteLogin(context.Background(), "http://x/?code=abc123")
	var de *DecodeError
	require.True(t, errors.As(err, &de))
}

// The prover answers 400 with {"message": "invalid nonce"}; the error text
// is exactly that message.
func TestClient_FetchProof_ServerMessage(t *testing.T) {
	env := newTestEnv(t, http.StatusBadRequest,
		`{"message": "invalid nonce"}`)
	c := env.client
	env.login(t)
	_, err := c.EnsureSalt()
	require.NoError(t, err)

	_, err = c.FetchProof(context.Background())
	require.Error(t, err)
	require.Equal(t, "invalid nonce", err.Error())
	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	require.Equal(t, callProof, ne.Call)
}

// Tests that a proof is not requested before its inputs exist.
func TestClient_FetchProof_Precondition(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	require.NoError(t, c.Start())

	_, err := c.FetchProof(context.Background())
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	require.ElementsMatch(t, []string{"jwt", "maxEpoch", "salt"}, pe.Missing)
	require.Zero(t, env.proverCount())
}

// Tests that a proof is reused for identical inputs and dropped when an
// input changes.
func TestClient_FetchProof_Reuse(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	env.login(t)
	_, err := c.EnsureSalt()
	require.NoError(t, err)

	p1, err := c.FetchProof(context.Background())
	require.NoError(t, err)
	p2, err := c.FetchProof(context.Background())
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Equal(t, 1, env.proverCount())

	require.NoError(t, env.store.SetString(storage.DurableScope,
		storage.UserSaltKey, "99"))
	proof, err := c.Proof()
	require.NoError(t, err)
	require.Nil(t, proof)

	_, err = c.FetchProof(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, env.proverCount())
}

// Tests that a token whose nonce commits to another expiry epoch is
// refused before any proof request or ledger call.
func TestClient_TokenBoundToOtherEpoch(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	env.login(t)
	_, err := c.EnsureSalt()
	require.NoError(t, err)

	// Another process sharing the durable scope moves the expiry epoch.
	require.NoError(t, env.store.SetString(storage.DurableScope,
		storage.MaxEpochKey, "115"))

	_, err = c.FetchProof(context.Background())
	var ie *ProtocolInvariantError
	require.True(t, errors.As(err, &ie))
	require.ErrorIs(t, err, ErrNonceMismatch)
	require.Zero(t, env.proverCount())

	_, err = c.Transfer(context.Background())
	require.True(t, errors.As(err, &ie))
	require.ErrorIs(t, err, ErrNonceMismatch)
	require.Zero(t, env.ledger.called("build"))
	require.Zero(t, env.ledger.called("execute"))
}

// Tests that resolving a new expiry epoch drops the token bound to the old
// one, and that resolving the same epoch keeps it.
func TestClient_ResolveEpoch_DropsBoundToken(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	env.login(t)
	_, err := c.EnsureSalt()
	require.NoError(t, err)
	_, err = c.FetchProof(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, env.proverCount())

	env.ledger.mux.Lock()
	env.ledger.epoch = 105
	env.ledger.mux.Unlock()
	expiry, err := c.ResolveEpoch(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 115, expiry)

	claims, err := c.Claims()
	require.NoError(t, err)
	require.Nil(t, claims)
	proof, err := c.Proof()
	require.NoError(t, err)
	require.Nil(t, proof)

	_, err = c.FetchProof(context.Background())
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	require.Contains(t, pe.Missing, "jwt")
	require.Equal(t, 1, env.proverCount())

	env.login(t)
	_, err = c.ResolveEpoch(context.Background())
	require.NoError(t, err)
	claims, err = c.Claims()
	require.NoError(t, err)
	require.NotNil(t, claims)
}

// With the proof present but the claims absent, a transfer does nothing
// and makes no ledger call.
func TestClient_Transfer_ClaimsAbsent(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	env.login(t)
	_, err := c.EnsureSalt()
	require.NoError(t, err)
	_, err = c.FetchProof(context.Background())
	require.NoError(t, err)

	require.NoError(t, env.store.Delete(storage.SessionScope,
		storage.IDTokenKey))

	_, err = c.Transfer(context.Background())
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	require.Contains(t, pe.Missing, "claims")
	require.Zero(t, env.ledger.called("build"))
	require.Zero(t, env.ledger.called("execute"))
	require.Equal(t, transaction.Idle, c.TransactionState())
}

// Tests the complete pipeline through to a confirmed transfer.
func TestClient_Transfer(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	env.login(t)
	_, err := c.EnsureSalt()
	require.NoError(t, err)
	_, err = c.FetchProof(context.Background())
	require.NoError(t, err)

	amount, err := c.RequestFaucet(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, ledger.MistPerSui, amount)
	address, err := c.Address()
	require.NoError(t, err)
	require.Equal(t, []string{address}, env.faucet.recipients)

	result, err := c.Transfer(context.Background())
	require.NoError(t, err)
	require.Equal(t, testDigest, result.Digest)
	require.Equal(t, 1, env.ledger.called("execute"))

	status := c.Status()
	require.Equal(t, address, status.Address)
	require.True(t, status.Proof)
	require.Equal(t, "confirmed", status.Transaction)
	require.Equal(t, testDigest, status.LastDigest)
	require.True(t, status.SessionMemory)
}

// Tests that an expired key is a protocol invariant error and nothing is
// submitted.
func TestClient_Transfer_Expired(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	env.login(t)
	_, err := c.EnsureSalt()
	require.NoError(t, err)
	_, err = c.FetchProof(context.Background())
	require.NoError(t, err)

	env.ledger.mux.Lock()
	env.ledger.epoch = 111
	env.ledger.mux.Unlock()

	_, err = c.Transfer(context.Background())
	var ie *ProtocolInvariantError
	require.True(t, errors.As(err, &ie))
	require.ErrorIs(t, err, transaction.ErrEpochExpired)
	require.Zero(t, env.ledger.called("execute"))
}

// Tests that a reset clears both scopes.
func TestClient_Reset(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	env.login(t)
	_, err := c.EnsureSalt()
	require.NoError(t, err)
	before := c.Status().Session

	require.NoError(t, c.Reset())

	kp, err := c.keys.Restore()
	require.NoError(t, err)
	require.Nil(t, kp)
	_, ok, err := c.salt()
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = c.epochs.Stored()
	require.NoError(t, err)
	require.False(t, ok)

	status := c.Status()
	require.NotEqual(t, before, status.Session)
	require.Empty(t, status.Address)
	require.Nil(t, status.Claims)
}

// Tests that a result arriving after a reset is discarded.
func TestClient_StaleResult(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client
	require.NoError(t, c.Start())

	env.ledger.epochBlock = make(chan struct{})
	errs := make(chan error)
	go func() {
		_, err := c.ResolveEpoch(context.Background())
		errs <- err
	}()

	require.Eventually(t, func() bool {
		return env.ledger.called("epoch") == 1
	}, time.Second, time.Millisecond)

	_, err := c.ResolveEpoch(context.Background())
	require.ErrorIs(t, err, ErrBusy)

	require.NoError(t, c.Reset())
	close(env.ledger.epochBlock)
	require.ErrorIs(t, <-errs, ErrStaleResult)

	_, ok, err := c.epochs.Stored()
	require.NoError(t, err)
	require.False(t, ok)
}

// Tests that polling delivers balances and stops on reset.
func TestClient_BalancePolling(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client

	err := c.StartBalancePolling(func(*big.Int, error) {})
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))

	env.login(t)
	_, err = c.EnsureSalt()
	require.NoError(t, err)

	balances := make(chan *big.Int, 64)
	require.NoError(t, c.StartBalancePolling(func(b *big.Int, err error) {
		if err == nil {
			balances <- b
		}
	}))

	select {
	case b := <-balances:
		require.Equal(t, "2.000000", ledger.FormatSUI(b))
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for a balance.")
	}
	require.Equal(t, "2000000000", c.Status().Balance)

	require.NoError(t, c.Reset())
	c.mux.Lock()
	require.Nil(t, c.polling)
	c.mux.Unlock()
}

// Tests that poll results of an earlier session, errors included, never
// reach the callback.
func TestClient_PollCallback_Stale(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	c := env.client

	var received []error
	cb := c.pollCallback(c.currentGeneration(), func(_ *big.Int, err error) {
		received = append(received, err)
	})

	cb(nil, errors.New("connection refused"))
	require.Len(t, received, 1)
	var ne *NetworkError
	require.True(t, errors.As(received[0], &ne))
	require.Equal(t, callBalance, ne.Call)

	require.NoError(t, c.Reset())
	cb(nil, errors.New("connection refused"))
	cb(big.NewInt(5), nil)
	require.Len(t, received, 1)
	require.Empty(t, c.Status().Balance)
}

// Tests that EnsureSalt generates the salt once.
func TestClient_EnsureSalt(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, proofJSON)
	s1, err := env.client.EnsureSalt()
	require.NoError(t, err)
	s2, err := env.client.EnsureSalt()
	require.NoError(t, err)
	require.Equal(t, s1, s2)

	require.NoError(t, env.client.Start())
	s3, err := env.client.EnsureSalt()
	require.NoError(t, err)
	require.Equal(t, s1, s3)
}

// Tests that NewClient rejects missing collaborators.
func TestNewClient_MissingCollaborator(t *testing.T) {
	_, err := NewClient(GetDefaultParams(),
		storage.New(ekv.MakeMemstore(), ekv.MakeMemstore()),
		Collaborators{}, nil, nil)
	require.Error(t, err)
}
