package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timelyrain333/bifang-sub000/internal/model"
)

func TestResolve_Precedence(t *testing.T) {
	in := Input{
		TaskConfig:     map[string]any{"region": "task-region"},
		PluginProvider: "aws",
		Account:        &model.CloudAccount{Provider: "AWS", IsActive: true, Config: model.JSONMap{"region": "acct-region", "access_key_id": "acct-ak"}},
		UserDefault:    &model.UserProviderConfig{Provider: "aws", IsActive: true, Config: model.JSONMap{"access_key_id": "user-ak", "secret_access_key": "user-sk"}},
	}
	out := Resolve(in)
	require.Equal(t, "task-region", out["region"])
	require.Equal(t, "acct-ak", out["access_key_id"])
	require.Equal(t, "user-sk", out["secret_access_key"])
	require.NotContains(t, out, AIConfigKey)
}

func TestResolve_ProviderScoping(t *testing.T) {
	out := Resolve(Input{
		PluginProvider: "aws",
		Account:        &model.CloudAccount{Provider: "aliyun", IsActive: true, Config: model.JSONMap{"access_key_id": "ali"}},
		UserDefault:    &model.UserProviderConfig{Provider: "aws", IsActive: false, Config: model.JSONMap{"access_key_id": "off"}},
	})
	require.Empty(t, out)

	out = Resolve(Input{
		Account: &model.CloudAccount{Provider: "aws", IsActive: true, Config: model.JSONMap{"access_key_id": "x"}},
	})
	require.Empty(t, out, "plugins without a provider family never get credentials")
}

func TestResolve_AIConfigLayered(t *testing.T) {
	ai := &model.AIConfig{Provider: "openai", Model: "gpt-4o", APIKey: "k", Enabled: true}
	out := Resolve(Input{TaskConfig: map[string]any{"x": 1}, AI: ai})
	require.Equal(t, map[string]any{"provider": "openai", "model": "gpt-4o", "api_key": "k", "base_url": ""}, out[AIConfigKey])

	ai.Enabled = false
	require.NotContains(t, Resolve(Input{AI: ai}), AIConfigKey)
}

func TestResolve_PureAndDeterministic(t *testing.T) {
	task := map[string]any{"a": 1}
	acct := &model.CloudAccount{Provider: "aws", IsActive: true, Config: model.JSONMap{"b": 2}}
	in := Input{TaskConfig: task, PluginProvider: "aws", Account: acct}

	first := Resolve(in)
	second := Resolve(in)
	require.Equal(t, first, second)

	first["a"] = 99
	require.Equal(t, map[string]any{"a": 1}, task, "input not mutated")
	require.Equal(t, model.JSONMap{"b": 2}, acct.Config)
	require.Equal(t, 1, Resolve(in)["a"])
}
