package autowire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

type store struct{ *core.BaseComponent }

type consumer struct {
	*core.BaseComponent
	Store    *store         `infra:"dep:store"`
	Optional core.Component `infra:"dep:missing?"`
}

func TestInjectAll(t *testing.T) {
	c := core.NewContainer()
	s := &store{core.NewBaseComponent("store")}
	cons := &consumer{BaseComponent: core.NewBaseComponent("consumer")}
	require.NoError(t, c.Register("store", s))
	require.NoError(t, c.Register("consumer", cons))

	require.NoError(t, InjectAll(c))
	require.Same(t, s, cons.Store)
	require.Nil(t, cons.Optional)
	require.Equal(t, []string{"store"}, cons.Dependencies())

	ordered, err := c.ValidateDependencies()
	require.NoError(t, err)
	require.Equal(t, "store", ordered[0].Name())
}

func TestInject_MissingRequired(t *testing.T) {
	c := core.NewContainer()
	cons := &consumer{BaseComponent: core.NewBaseComponent("consumer")}
	require.NoError(t, c.Register("consumer", cons))
	require.Error(t, InjectAll(c))
}
