package bridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/mattjoyce/blockbridge/internal/bridge"
	"github.com/mattjoyce/blockbridge/internal/bridge/mocks"
)

func eventIs(event string, wait bool) gomock.Matcher {
	return requestMatcher{event: event, wait: wait}
}

type requestMatcher struct {
	event string
	wait  bool
}

func (m requestMatcher) Matches(x interface{}) bool {
	req, ok := x.(bridge.Request)
	return ok && req.Event == m.event && req.Wait == m.wait
}

func (m requestMatcher) String() string {
	return "request for " + m.event
}

func TestClickAndForgetInvokesHandlerExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := mocks.NewMockHandler(ctrl)
	h.EXPECT().
		Dispatch(gomock.Any(), eventIs(bridge.OpcodeSpriteClicked, false)).
		Return(bridge.Resolved(nil)).
		Times(1)

	b := bridge.New(bridge.WithClickWindow(time.Hour))
	b.SetCallback(h)

	assert.Equal(t, bridge.CodeDispatched, b.ClickAndForget(context.Background(), bridge.OpcodeSpriteClicked))
	assert.Equal(t, bridge.CodeSuppressed, b.ClickAndForget(context.Background(), bridge.OpcodeSpriteClicked))
}

func TestReplacedHandlerNeverInvoked(t *testing.T) {
	ctrl := gomock.NewController(t)
	h1 := mocks.NewMockHandler(ctrl)
	h2 := mocks.NewMockHandler(ctrl)

	h1.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Times(0)
	h2.EXPECT().Dispatch(gomock.Any(), eventIs("gs_motion_move", false)).Return(nil)
	h2.EXPECT().Dispatch(gomock.Any(), eventIs("gs_light_change", true)).Return(bridge.Resolved(1))

	b := bridge.New()
	b.SetCallback(h1)
	b.SetCallback(h2)

	assert.Equal(t, bridge.CodeDispatched, b.DispatchAndForget(context.Background(), "gs_motion_move", bridge.Payload{"LEFT": 10}))
	assert.Equal(t, 1, b.DispatchAndAwait(context.Background(), "gs_light_change", nil))
}

func TestObserverReceivesFault(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := mocks.NewMockHandler(ctrl)
	obs := mocks.NewMockObserver(ctrl)

	h.EXPECT().Dispatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, bridge.Request) *bridge.Future { panic("wire cut") },
	)
	obs.EXPECT().Observe(gomock.Any()).Do(func(o bridge.Outcome) {
		assert.Equal(t, bridge.StatusFault, o.Status)
		assert.Equal(t, bridge.CodeFault, o.Result)
		assert.ErrorContains(t, o.Err, "wire cut")
	})

	b := bridge.New(bridge.WithObserver(obs))
	b.SetCallback(h)

	assert.Equal(t, bridge.CodeFault, b.DispatchAndAwait(context.Background(), "x", nil))
}
