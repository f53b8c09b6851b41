package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/errors"
)

func TestAdviceValidate(t *testing.T) {
	valid := func() Advice {
		return Advice{
			Action:     "BUY",
			Confidence: 0.8,
			Size:       0.05,
			StopLoss:   98,
			TakeProfit: 106,
			RiskReward: 3.0,
			Reasoning:  "momentum with volume confirmation",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Advice)
		wantErr bool
	}{
		{"valid buy", func(a *Advice) {}, false},
		{"valid hold", func(a *Advice) { a.Action = "HOLD" }, false},
		{"unknown action", func(a *Advice) { a.Action = "LEVERAGE_UP" }, true},
		{"lowercase action", func(a *Advice) { a.Action = "buy" }, true},
		{"confidence above one", func(a *Advice) { a.Confidence = 7 }, true},
		{"negative confidence", func(a *Advice) { a.Confidence = -0.1 }, true},
		{"size above one", func(a *Advice) { a.Size = 1.5 }, true},
		{"negative risk reward", func(a *Advice) { a.RiskReward = -1 }, true},
		{"negative stop", func(a *Advice) { a.StopLoss = -98 }, true},
		{"zero levels ok", func(a *Advice) { a.StopLoss = 0; a.TakeProfit = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid()
			tt.mutate(&a)
			err := a.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseAdvice(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		advice, err := parseAdvice(`{"action":"SELL","confidence":0.7,"riskReward":2.0}`)
		require.NoError(t, err)
		assert.Equal(t, "SELL", advice.Action)
		assert.Equal(t, 0.7, advice.Confidence)
	})

	t.Run("code fence", func(t *testing.T) {
		content := "```json\n{\"action\":\"BUY\",\"confidence\":0.9,\"reasoning\":\"breakout\"}\n```"
		advice, err := parseAdvice(content)
		require.NoError(t, err)
		assert.Equal(t, "BUY", advice.Action)
		assert.Equal(t, "breakout", advice.Reasoning)
	})

	t.Run("surrounding prose", func(t *testing.T) {
		content := `Here is my analysis: {"action":"HOLD","confidence":0.5} Let me know.`
		advice, err := parseAdvice(content)
		require.NoError(t, err)
		assert.Equal(t, "HOLD", advice.Action)
	})

	t.Run("no json", func(t *testing.T) {
		_, err := parseAdvice("I cannot advise on this.")
		require.Error(t, err)
		var oerr *errors.OracleError
		assert.ErrorAs(t, err, &oerr)
	})
}

func TestStaticAdvisor(t *testing.T) {
	want := &Advice{Action: "BUY", Confidence: 0.8}

	t.Run("returns advice", func(t *testing.T) {
		s := &StaticAdvisor{Advice: want}
		got, err := s.Advise(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("returns error", func(t *testing.T) {
		s := &StaticAdvisor{Err: errors.ErrOracleUnavailable}
		_, err := s.Advise(context.Background(), Request{})
		assert.ErrorIs(t, err, errors.ErrOracleUnavailable)
	})

	t.Run("respects context deadline", func(t *testing.T) {
		s := &StaticAdvisor{Advice: want, Delay: time.Second}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		_, err := s.Advise(ctx, Request{})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
