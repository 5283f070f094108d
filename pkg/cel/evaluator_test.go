package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateRule(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid bool expression",
			expr:      `chat_type == 2 && red_channel != 32`,
			wantError: false,
		},
		{
			name:      "valid string comparison",
			expr:      `peer_uid == "10001"`,
			wantError: false,
		},
		{
			name:      "non-bool expression",
			expr:      `peer_uid`,
			wantError: true,
		},
		{
			name:      "syntax error",
			expr:      `chat_type ==`,
			wantError: true,
		},
		{
			name:      "unknown variable",
			expr:      `unknown_field == "x"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateRule(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluateRule(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	vars := map[string]interface{}{
		"peer_uid":    "grp-42",
		"peer_name":   "team chat",
		"chat_type":   2,
		"sender_uin":  "10001",
		"sender_name": "alice",
		"title":       "QQ红包",
		"red_channel": 0,
		"bill_no":     "1001:abc",
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{
			name: "group match",
			expr: `chat_type == 2`,
			want: true,
		},
		{
			name: "sender mismatch",
			expr: `sender_uin == "99999"`,
			want: false,
		},
		{
			name: "title contains",
			expr: `title.contains("红包")`,
			want: true,
		},
		{
			name: "passcode channel check",
			expr: `red_channel == 32`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.EvaluateRule(context.Background(), tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateRuleErrors(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	_, err = eval.EvaluateRule(context.Background(), `peer_uid ==`, map[string]interface{}{})
	assert.Error(t, err)
}
