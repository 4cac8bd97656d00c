package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/domain/variables"
)

func formFlow(cfg flow.FormConfig) *flow.Definition {
	return flow.NewDefinition("flow1", "bot1",
		[]*flow.Node{
			node("start", flow.StartConfig{}),
			node("signup", cfg),
			node("done", flow.MessageConfig{Text: "thanks {{name}}"}),
			node("end", flow.EndConfig{}),
		},
		[]*flow.Edge{
			edge("start", "signup", flow.EdgeDefault),
			edge("signup", "done", flow.EdgeDefault),
			edge("done", "end", flow.EdgeDefault),
		})
}

func TestFormCollectsFieldsAcrossTurns(t *testing.T) {
	def := formFlow(flow.FormConfig{
		Scope: variables.ScopeUser,
		Fields: []flow.FormField{
			{Name: "name", Prompt: "Your name?", Type: flow.FieldText, Required: true},
			{Name: "age", Prompt: "Your age?", Type: flow.FieldNumber, Required: true},
			{Name: "email", Prompt: "Your email?", Type: flow.FieldEmail, Required: true},
		},
	})

	eng := newTestEngine()
	sess := session.New("bot1", "user1", "flow1")

	res, err := eng.Execute(context.Background(), def, sess, messageEvent("/signup"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "Your name?", res.Actions[0].Text)

	res, err = eng.Execute(context.Background(), def, sess, messageEvent("Ada"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "Your age?", res.Actions[0].Text)
	assert.Equal(t, 1, sess.PendingWait.FormFieldIndex)

	res, err = eng.Execute(context.Background(), def, sess, messageEvent("36"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "Your email?", res.Actions[0].Text)

	res, err = eng.Execute(context.Background(), def, sess, messageEvent("ada@lovelace.dev"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "thanks Ada", res.Actions[0].Text)
	assert.True(t, res.Completed)

	userVars := sess.Variables[variables.ScopeUser]
	assert.Equal(t, "Ada", userVars["name"])
	assert.Equal(t, float64(36), userVars["age"])
	assert.Equal(t, "ada@lovelace.dev", userVars["email"])
	// The holding slot lived in session scope and never leaked elsewhere.
	assert.NotContains(t, userVars, formTempKey("signup"))
}

func TestFormRetriesInvalidInput(t *testing.T) {
	def := formFlow(flow.FormConfig{
		RetryPrompt: "That doesn't look right, try again.",
		Fields: []flow.FormField{
			{Name: "age", Prompt: "Your age?", Type: flow.FieldNumber, Required: true},
		},
	})

	eng := newTestEngine()
	sess := session.New("bot1", "user1", "flow1")

	_, err := eng.Execute(context.Background(), def, sess, messageEvent("/signup"))
	require.NoError(t, err)

	res, err := eng.Execute(context.Background(), def, sess, messageEvent("forty"))
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "That doesn't look right, try again.", res.Actions[0].Text)
	assert.Equal(t, 0, sess.PendingWait.FormFieldIndex, "invalid input keeps the cursor in place")

	res, err = eng.Execute(context.Background(), def, sess, messageEvent("40"))
	require.NoError(t, err)
	assert.True(t, res.Completed)
}

func TestValidateFieldInput(t *testing.T) {
	cases := []struct {
		name    string
		field   flow.FormField
		input   string
		want    any
		wantErr bool
	}{
		{"text ok", flow.FormField{Name: "n", Type: flow.FieldText, Required: true}, "hi", "hi", false},
		{"required empty", flow.FormField{Name: "n", Type: flow.FieldText, Required: true}, "  ", nil, true},
		{"optional empty", flow.FormField{Name: "n", Type: flow.FieldText}, "", "", false},
		{"number ok", flow.FormField{Name: "n", Type: flow.FieldNumber}, "3.5", 3.5, false},
		{"number bad", flow.FormField{Name: "n", Type: flow.FieldNumber}, "abc", nil, true},
		{"email ok", flow.FormField{Name: "n", Type: flow.FieldEmail}, "a@b.co", "a@b.co", false},
		{"email bad", flow.FormField{Name: "n", Type: flow.FieldEmail}, "not-an-email", nil, true},
		{"phone ok", flow.FormField{Name: "n", Type: flow.FieldPhone}, "+1 (555) 123-4567", "+1 (555) 123-4567", false},
		{"phone bad", flow.FormField{Name: "n", Type: flow.FieldPhone}, "call me", nil, true},
		{"regex ok", flow.FormField{Name: "n", Type: flow.FieldRegex, Validation: `^[A-Z]{3}$`}, "ABC", "ABC", false},
		{"regex bad", flow.FormField{Name: "n", Type: flow.FieldRegex, Validation: `^[A-Z]{3}$`}, "abc", nil, true},
		{"regex invalid pattern", flow.FormField{Name: "n", Type: flow.FieldRegex, Validation: `([`}, "abc", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := validateFieldInput(tc.field, tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
