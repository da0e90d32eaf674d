package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/gatekeep/model"
)

func TestPolicy_Evaluate(t *testing.T) {
	p, err := New(&Config{
		DefaultTTL: time.Hour,
		Operations: map[string]*Operation{
			"read_contact":   {Mode: ModeNone},
			"delete_contact": {Mode: ModeAlways, TTL: 10 * time.Minute},
			"send_message": {Mode: ModeConditional, Sensitive: []*Argument{
				{Name: "recipient", Default: "self"},
				{Name: "priority", Default: 1},
				{Name: "body", Redact: true},
			}},
			"update_contact": {Mode: ModeConditional},
		},
	})
	require.NoError(t, err)

	testCases := []struct {
		description string
		operation   string
		args        map[string]interface{}
		expectGated bool
		expectMode  Mode
		expectWarn  bool
	}{
		{description: "none", operation: "read_contact", args: map[string]interface{}{"id": 1}, expectMode: ModeNone},
		{description: "always", operation: "delete_contact", args: map[string]interface{}{"id": 42}, expectGated: true, expectMode: ModeAlways},
		{description: "conditional defaults", operation: "send_message", args: map[string]interface{}{"recipient": "self", "priority": 1.0}, expectMode: ModeConditional},
		{description: "conditional absent means default", operation: "send_message", args: map[string]interface{}{"subject": "hi"}, expectMode: ModeConditional},
		{description: "conditional non default", operation: "send_message", args: map[string]interface{}{"recipient": "ops@x.com"}, expectGated: true, expectMode: ModeConditional},
		{description: "conditional value over empty default", operation: "send_message", args: map[string]interface{}{"body": "hello"}, expectGated: true, expectMode: ModeConditional},
		{description: "conditional without declarations", operation: "update_contact", args: map[string]interface{}{}, expectGated: true, expectMode: ModeAlways, expectWarn: true},
		{description: "unknown operation", operation: "drop_table", args: nil, expectGated: true, expectMode: ModeAlways, expectWarn: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			gating := p.Evaluate(testCase.operation, testCase.args)
			assert.Equal(t, testCase.expectGated, gating.Gated)
			assert.Equal(t, testCase.expectMode, gating.Mode)
			if !testCase.expectWarn {
				assert.Nil(t, gating.Warning)
				return
			}
			require.NotNil(t, gating.Warning)
			assert.True(t, errors.Is(gating.Warning, model.ErrConfiguration))
			assert.Equal(t, testCase.operation, gating.Warning.Operation)
		})
	}

	assert.Equal(t, 10*time.Minute, p.TTL("delete_contact"))
	assert.Equal(t, time.Hour, p.TTL("send_message"))
	assert.Equal(t, []string{"body"}, p.Redacted("send_message"))
	assert.Equal(t, []string{"delete_contact", "read_contact", "send_message", "update_contact"}, p.Operations())
}

func TestPolicy_Immutable(t *testing.T) {
	cfg := &Config{Operations: map[string]*Operation{"read_contact": {Mode: ModeNone}}}
	p, err := New(cfg)
	require.NoError(t, err)
	cfg.Operations["read_contact"].Mode = ModeAlways
	cfg.Operations["drop_table"] = &Operation{Mode: ModeNone}

	assert.False(t, p.Evaluate("read_contact", nil).Gated)
	assert.True(t, p.Evaluate("drop_table", nil).Gated)
	assert.Equal(t, DefaultTTL, p.TTL("read_contact"))
}

func TestNilPolicy(t *testing.T) {
	var p *Policy
	gating := p.Evaluate("anything", nil)
	assert.True(t, gating.Gated)
	assert.NotNil(t, gating.Warning)
	assert.Equal(t, DefaultTTL, p.TTL("anything"))
}

func TestNew_Invalid(t *testing.T) {
	testCases := []struct {
		description string
		cfg         *Config
	}{
		{description: "bad mode", cfg: &Config{Operations: map[string]*Operation{"x": {Mode: "sometimes"}}}},
		{description: "bad tier", cfg: &Config{Operations: map[string]*Operation{"x": {Mode: ModeAlways, RiskTier: "extreme"}}}},
		{description: "unnamed argument", cfg: &Config{Operations: map[string]*Operation{"x": {Mode: ModeConditional, Sensitive: []*Argument{{}}}}}},
		{description: "negative ttl", cfg: &Config{DefaultTTL: -time.Second}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			_, err := New(testCase.cfg)
			assert.Error(t, err)
		})
	}
}
