package message_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture is a target that records transferred ports without replying.
type capture struct {
	mu    sync.Mutex
	ports []*message.Port
	data  []any
}

func (c *capture) PostMessage(ctx context.Context, data any, ports ...*message.Port) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, data)
	c.ports = append(c.ports, ports...)
	return nil
}

func (c *capture) port(t *testing.T) *message.Port {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.ports, 1)
	return c.ports[0]
}

// replier answers every message with each of the given replies, in order.
func replier(replies ...any) message.TargetFunc {
	return func(ctx context.Context, data any, ports ...*message.Port) error {
		go func() {
			for _, r := range replies {
				_ = ports[0].Post(context.Background(), r)
			}
		}()
		return nil
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveExchange(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func TestSend_ResolvesWithReply(t *testing.T) {
	reply := domain.Success(domain.ActionGetStorage, "v")

	got, err := message.Send(context.Background(), replier(reply), domain.Envelope{Action: domain.ActionGetStorage, Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, reply, got)
}

func TestSend_SecondReplyIsIgnored(t *testing.T) {
	target := &capture{}
	done := make(chan error, 1)
	var got any
	go func() {
		var err error
		got, err = message.Send(context.Background(), target, "ping")
		done <- err
	}()

	require.Eventually(t, func() bool {
		target.mu.Lock()
		defer target.mu.Unlock()
		return len(target.ports) == 1
	}, time.Second, 5*time.Millisecond)

	remote := target.port(t)
	require.NoError(t, remote.Post(context.Background(), "first"))
	require.NoError(t, <-done)
	assert.Equal(t, "first", got)

	err := remote.Post(context.Background(), "second")
	assert.ErrorIs(t, err, message.ErrPortClosed)
}

func TestSend_TimeoutReleasesPorts(t *testing.T) {
	target := &capture{}
	payload := domain.Envelope{Action: domain.ActionGetStorage, Key: "k"}

	start := time.Now()
	_, err := message.Send(context.Background(), target, payload, message.WithTimeout(50*time.Millisecond))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, message.ErrTimeout)
	assert.Contains(t, err.Error(), "messaging timeout: ")
	assert.Contains(t, err.Error(), `"action":"GET_STORAGE"`)
	assert.Contains(t, err.Error(), `"key":"k"`)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)

	remote := target.port(t)
	assert.True(t, remote.Closed(), "transferred port should be released on timeout")
	assert.ErrorIs(t, remote.Post(context.Background(), "late"), message.ErrPortClosed)
}

func TestSend_ErrorMarkerRejectsWithReply(t *testing.T) {
	reply := domain.Failure(domain.ActionSetStorage, errors.New("disk full"))

	_, err := message.Send(context.Background(), replier(reply), "set")
	var replyErr *message.ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, reply, replyErr.Reply)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSend_ErrorMarkerInDecodedMap(t *testing.T) {
	reply := map[string]any{"action": "FAILED", "error": "boom"}

	_, err := message.Send(context.Background(), replier(reply), "x")
	var replyErr *message.ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, reply, replyErr.Reply)
}

func TestSend_FailedActionInDecodedMap(t *testing.T) {
	reply := map[string]any{"action": "FAILED", "request": "GET_STORAGE"}

	_, err := message.Send(context.Background(), replier(reply), "x")
	var replyErr *message.ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, reply, replyErr.Reply)
}

func TestSend_ZeroTimeoutWaits(t *testing.T) {
	target := message.TargetFunc(func(ctx context.Context, data any, ports ...*message.Port) error {
		go func() {
			time.Sleep(80 * time.Millisecond)
			_ = ports[0].Post(context.Background(), "slow")
		}()
		return nil
	})

	got, err := message.Send(context.Background(), target, "x", message.WithTimeout(0))
	require.NoError(t, err)
	assert.Equal(t, "slow", got)
}

func TestSend_ContextCanceled(t *testing.T) {
	target := &capture{}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := message.Send(ctx, target, "x", message.WithTimeout(time.Second))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, message.ErrTimeout)
	assert.True(t, target.port(t).Closed())
}

func TestSend_PostFailure(t *testing.T) {
	boom := errors.New("unreachable")
	target := message.TargetFunc(func(ctx context.Context, data any, ports ...*message.Port) error {
		return boom
	})

	_, err := message.Send(context.Background(), target, "x")
	assert.ErrorIs(t, err, boom)
}

func TestSend_SelfTargetUsesWildcardOrigin(t *testing.T) {
	bus := message.NewBus(message.WithOrigin("page"))
	defer bus.Close()

	origins := make(chan string, 1)
	bus.AddMessageListener(func(msg message.Message) {
		origins <- msg.Origin
		_ = msg.Ports[0].Post(context.Background(), "pong")
	})

	got, err := message.Send(context.Background(), bus, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
	assert.Equal(t, domain.WildcardOrigin, <-origins)
}

func TestSend_Observer(t *testing.T) {
	obs := &recordingObserver{}

	_, err := message.Send(context.Background(), replier("ok"), "x", message.WithObserver(obs))
	require.NoError(t, err)
	_, err = message.Send(context.Background(), &capture{}, "x", message.WithObserver(obs), message.WithTimeout(10*time.Millisecond))
	require.Error(t, err)

	assert.Equal(t, []string{message.OutcomeOK, message.OutcomeTimeout}, obs.outcomes)
}
