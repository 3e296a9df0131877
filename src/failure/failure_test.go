package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Internal},
		{"plain", errors.New("boom"), Internal},
		{"context cancelled", context.Canceled, Cancelled},
		{"wrapped cancelled", fmt.Errorf("stream: %w", context.Canceled), Cancelled},
		{"typed", New(RequestRejected, "llm", nil), RequestRejected},
		{"wrapped typed", fmt.Errorf("run 3: %w", New(TransientNetwork, "llm", errors.New("503"))), TransientNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorIsMatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &Error{Kind: TransientNetwork, Op: "llm.stream", Status: 503})
	assert.ErrorIs(t, err, ErrTransientNetwork)
	assert.NotErrorIs(t, err, ErrRequestRejected)
}

func TestErrorMessageAndPartial(t *testing.T) {
	err := &Error{Kind: TransientNetwork, Op: "llm.stream", Status: 502, Partial: "half an ans", Err: errors.New("eof")}
	assert.Equal(t, "llm.stream: transient_network (status 502): eof", err.Error())
	assert.Equal(t, "half an ans", PartialText(fmt.Errorf("x: %w", err)))
	assert.Empty(t, PartialText(errors.New("other")))
}

func TestSilentKinds(t *testing.T) {
	assert.True(t, Cancelled.Silent())
	assert.True(t, SelectionTooShort.Silent())
	assert.False(t, PrivacyBlocked.Silent())
	assert.False(t, TransientNetwork.Silent())
}
