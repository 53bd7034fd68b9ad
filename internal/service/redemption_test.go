package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/models"
)

func TestNormalizeCode(t *testing.T) {
	const token = "0123456789abcdef0123456789abcdef"

	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"bare", token, token, true},
		{"upper case with spaces", "  " + strings.ToUpper(token) + "\n", token, true},
		{"prefixed", "byb:" + token, token, true},
		{"prefixed upper", "BYB:" + token, token, true},
		{"url path", "https://backyardbar.uy/t/" + token, token, true},
		{"url query", "https://backyardbar.uy/validar?t=" + token, token, true},
		{"too short", "ABC123", "", false},
		{"not hex", strings.Repeat("z", 32), "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeCode(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func issuedTicket(t *testing.T, env *testEnv) models.Ticket {
	t.Helper()
	event, tiers := env.seedEvent(t, false, 10)
	env.seedBuyer(t, 1)
	resp := env.reserve(t, 1, event.ID, tiers[0].ID, 1)
	tickets := env.approve(t, resp.ReservationID, "PAY-T")
	require.Len(t, tickets, 1)
	return tickets[0]
}

func TestValidateOneShot(t *testing.T) {
	env := newTestEnv(t)
	ticket := issuedTicket(t, env)
	firstScan := env.clock.Now()

	verdict, err := env.svc.Redemption.Validate(context.Background(), "byb:"+ticket.Token, 500)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, MsgEntryGranted, verdict.Message)
	require.NotNil(t, verdict.Detail)
	assert.Equal(t, "Ana Pereira", verdict.Detail.BuyerName)
	assert.Equal(t, "4.123.456-7", verdict.Detail.BuyerDocument)
	assert.Equal(t, "Preventa", verdict.Detail.TierName)
	assert.Equal(t, "Backyard Sessions", verdict.Detail.EventTitle)
	require.NotNil(t, verdict.Detail.UsedAt)
	assert.True(t, firstScan.Equal(*verdict.Detail.UsedAt))

	env.clock.Advance(3 * time.Second)

	again, err := env.svc.Redemption.Validate(context.Background(), ticket.Token, 501)
	require.NoError(t, err)
	assert.False(t, again.Valid)
	assert.Equal(t, MsgAlreadyUsed, again.Message)
	require.NotNil(t, again.Detail.UsedAt)
	assert.True(t, firstScan.Equal(*again.Detail.UsedAt))

	assert.Equal(t, 1, env.pub.count(models.EventTicketRedeemed))
}

func TestValidateConcurrentScans(t *testing.T) {
	env := newTestEnv(t)
	ticket := issuedTicket(t, env)

	var wg sync.WaitGroup
	verdicts := make([]*models.ValidationResponse, 16)
	for i := range verdicts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := env.svc.Redemption.Validate(context.Background(), ticket.Token, int64(100+i))
			assert.NoError(t, err)
			verdicts[i] = v
		}(i)
	}
	wg.Wait()

	valid := 0
	for _, v := range verdicts {
		if v.Valid {
			valid++
		}
	}
	assert.Equal(t, 1, valid)
}

func TestValidateUnknownCode(t *testing.T) {
	env := newTestEnv(t)

	verdict, err := env.svc.Redemption.Validate(context.Background(), "ABC123", 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.False(t, verdict.Valid)
	assert.Nil(t, verdict.Detail)

	verdict, err = env.svc.Redemption.Validate(context.Background(), strings.Repeat("a", 32), 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, MsgInvalidCode, verdict.Message)
}
