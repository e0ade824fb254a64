package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"rodina-chat/domain"
	"rodina-chat/mocks"
)

func newTestRegistry() *Registry {
	return NewRegistry(logs.GetLoggerFromLevel(slog.LevelError), time.Second)
}

func Test_Publish_Delivers_To_All_Group_Members(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	first := mocks.NewMockSink(ctrl)
	second := mocks.NewMockSink(ctrl)
	first.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	second.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	registry.Subscribe("u1", first)
	registry.Subscribe("u1", second)

	delivered := registry.Publish(context.Background(), "u1", domain.Information{NewMessages: 1})
	req.Equal(2, delivered)
}

func Test_Publish_Failure_Does_Not_Abort_Other_Deliveries(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	failing := mocks.NewMockSink(ctrl)
	healthy := mocks.NewMockSink(ctrl)
	failing.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(fmt.Errorf("dead socket")).Times(1)
	healthy.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	registry.Subscribe("u1", failing)
	registry.Subscribe("u1", healthy)

	delivered := registry.Publish(context.Background(), "u1", domain.Information{NewMessages: 1})
	req.Equal(1, delivered)
}

func Test_Subscribe_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	sink := mocks.NewMockSink(ctrl)
	sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	registry.Subscribe("u1", sink)
	registry.Subscribe("u1", sink)
	req.Equal(1, registry.Members("u1"))

	delivered := registry.Publish(context.Background(), "u1", domain.Information{})
	req.Equal(1, delivered)
}

func Test_Unsubscribe_Drops_Empty_Group(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	sink := mocks.NewMockSink(ctrl)
	registry.Subscribe("u1", sink)
	req.Equal(1, registry.Members("u1"))

	registry.Unsubscribe("u1", sink)
	req.Equal(0, registry.Members("u1"))

	// Removing an absent member is a no-op
	registry.Unsubscribe("u1", sink)
	registry.Unsubscribe("ghost", sink)
}

func Test_Publish_To_Unknown_Group_Delivers_Nothing(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()

	delivered := registry.Publish(context.Background(), "nobody", domain.Information{})
	req.Equal(0, delivered)
}

func Test_Publish_Preserves_Invocation_Order_Per_Sink(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	var received []int
	sink := mocks.NewMockSink(ctrl)
	sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e domain.Envelope) error {
			received = append(received, e.(domain.Information).NewMessages)
			return nil
		}).Times(3)

	registry.Subscribe("u1", sink)
	for i := 0; i < 3; i++ {
		registry.Publish(context.Background(), "u1", domain.Information{NewMessages: i})
	}
	req.Equal([]int{0, 1, 2}, received)
}

func Test_Concurrent_Membership_And_Publish(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	sink := mocks.NewMockSink(ctrl)
	sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// Unrelated groups churn while one group receives traffic; the
	// membership table must stay consistent throughout.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			group := fmt.Sprintf("user-%d", n%4)
			for j := 0; j < 50; j++ {
				registry.Subscribe(group, sink)
				registry.Publish(context.Background(), group, domain.Information{NewMessages: j})
				registry.Unsubscribe(group, sink)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		req.Equal(0, registry.Members(fmt.Sprintf("user-%d", i)))
	}
}
