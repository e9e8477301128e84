package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingComp struct {
	*BaseComponent
	log     *[]string
	failure error
}

func (r *recordingComp) Start(ctx context.Context) error {
	if r.failure != nil {
		return r.failure
	}
	*r.log = append(*r.log, "start:"+r.Name())
	return r.BaseComponent.Start(ctx)
}

func (r *recordingComp) Stop(ctx context.Context) error {
	*r.log = append(*r.log, "stop:"+r.Name())
	return r.BaseComponent.Stop(ctx)
}

func TestLifecycle_OrderAndReverseStop(t *testing.T) {
	var log []string
	c := NewContainer()
	require.NoError(t, c.Register("db", &recordingComp{BaseComponent: NewBaseComponent("db"), log: &log}))
	require.NoError(t, c.Register("svc", &recordingComp{BaseComponent: NewBaseComponent("svc", "db"), log: &log}))
	require.NoError(t, c.Register("api", &recordingComp{BaseComponent: NewBaseComponent("api", "svc"), log: &log}))

	lm := NewLifecycleManager(c)
	require.NoError(t, lm.StartAll(context.Background()))
	lm.StopAll(context.Background())
	lm.StopAll(context.Background())

	require.Equal(t, []string{"start:db", "start:svc", "start:api", "stop:api", "stop:svc", "stop:db"}, log)
}

func TestLifecycle_StartFailureStopsStarted(t *testing.T) {
	var log []string
	c := NewContainer()
	require.NoError(t, c.Register("db", &recordingComp{BaseComponent: NewBaseComponent("db"), log: &log}))
	require.NoError(t, c.Register("svc", &recordingComp{BaseComponent: NewBaseComponent("svc", "db"), log: &log, failure: errors.New("boom")}))

	err := NewLifecycleManager(c).StartAll(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"start:db", "stop:db"}, log)
}

func TestValidateDependencies_Missing(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register("svc", NewBaseComponent("svc", "nope")))
	_, err := c.ValidateDependencies()
	require.ErrorContains(t, err, "svc -> [nope]")
}
