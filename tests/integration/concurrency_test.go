package integration

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentProposals fires proposals for the same voucher at once.
// Exactly one may open; the rest see the voucher as already claimed.
func TestConcurrentProposals(t *testing.T) {
	app := newTestApp(t)
	owner := app.newUser(t)
	offered := app.listVerified(t, owner, "Acme", "Food", "50.00")

	const concurrency = 20
	recipients := make([]user, concurrency)
	for i := range recipients {
		recipients[i] = app.newUser(t)
	}

	var created, claimed, other atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(to user) {
			defer wg.Done()
			resp := app.propose(t, owner, to, offered.ID, nil)
			switch {
			case resp.Status == http.StatusCreated:
				created.Add(1)
			case resp.ErrorCode == "TRD_005":
				claimed.Add(1)
			default:
				other.Add(1)
			}
		}(recipients[i])
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(concurrency-1), claimed.Load())
	assert.Zero(t, other.Load())

	var open []tradeView
	app.do(t, http.MethodGet, "/api/v1/trades?status=pending", &owner, nil).decode(t, &open)
	assert.Len(t, open, 1)
}

// TestConcurrentAcceptAndCancel races the recipient's accept against the
// initiator's cancel. Exactly one wins and the vouchers agree with it.
func TestConcurrentAcceptAndCancel(t *testing.T) {
	app := newTestApp(t)

	for round := 0; round < 10; round++ {
		alice, bob := app.newUser(t), app.newUser(t)
		offered := app.listVerified(t, alice, "Acme", "Food", "60.00")
		wanted := app.listVerified(t, bob, "Globex", "Food", "55.00")

		proposed := app.propose(t, alice, bob, offered.ID, &wanted.ID)
		require.Equal(t, http.StatusCreated, proposed.Status)
		var trade tradeView
		proposed.decode(t, &trade)

		var acceptResp, cancelResp apiResponse
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			acceptResp = app.do(t, http.MethodPost, "/api/v1/trades/"+trade.ID+"/respond", &bob, map[string]bool{"accept": true})
		}()
		go func() {
			defer wg.Done()
			cancelResp = app.do(t, http.MethodPost, "/api/v1/trades/"+trade.ID+"/cancel", &alice, nil)
		}()
		wg.Wait()

		acceptWon := acceptResp.Status == http.StatusOK
		cancelWon := cancelResp.Status == http.StatusOK
		require.True(t, acceptWon != cancelWon,
			"round %d: accept=%d cancel=%d", round, acceptResp.Status, cancelResp.Status)

		var final tradeView
		app.do(t, http.MethodGet, "/api/v1/trades/"+trade.ID, &alice, nil).decode(t, &final)

		wantVoucher := "verified"
		if acceptWon {
			assert.Equal(t, "completed", final.Status)
			wantVoucher = "sold"
		} else {
			assert.Equal(t, "cancelled", final.Status)
		}
		assert.Equal(t, wantVoucher, app.voucher(t, alice, offered.ID).Status)
		assert.Equal(t, wantVoucher, app.voucher(t, bob, wanted.ID).Status)
	}
}
