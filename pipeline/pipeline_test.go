package pipeline

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/axon/errs"
	"github.com/arloliu/axon/storage"
)

// mockConn records writes and can be told to fail or block. It is driven by
// the single worker, so per-sample bookkeeping needs no lock beyond the one
// protecting reads from the test goroutine after Stop.
type mockConn struct {
	mu       sync.Mutex
	count    int
	perParam map[uint64][]int64
	failAt   map[int]error
	gate     chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		perParam: make(map[uint64][]int64),
		failAt:   make(map[int]error),
	}
}

func (m *mockConn) Write(s storage.Sample) error {
	if m.gate != nil {
		<-m.gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	if err, ok := m.failAt[m.count]; ok {
		return err
	}
	m.perParam[s.Param] = append(m.perParam[s.Param], s.Time)

	return nil
}

func (m *mockConn) Search(string) (storage.Cursor, error) {
	return nil, errs.ErrBadArg
}

func (m *mockConn) SeriesToParamID(name []byte) (storage.Sample, error) {
	return storage.Sample{Param: uint64(len(name))}, nil
}

func (m *mockConn) ParamIDToSeries(uint64, []byte) int {
	return 0
}

func (m *mockConn) observed() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.count
}

func TestPipeline_StartStop(t *testing.T) {
	p, err := New(newMockConn())
	require.NoError(t, err)

	p.Start()
	p.Stop()
	p.Stop() // idempotent

	_, err = p.MakeSpout()
	require.ErrorIs(t, err, errs.ErrPipelineStopped)
}

// Eight spouts on four queues, ten thousand samples each: every write lands
// exactly once and per-spout FIFO order holds end to end.
func TestPipeline_FanIn(t *testing.T) {
	const (
		spouts    = 8
		perSpout  = 10000
		queues    = 4
		totalSent = spouts * perSpout
	)

	conn := newMockConn()
	p, err := New(conn,
		WithQueueCount(queues),
		WithBackoff(LinearBackoff),
		WithPoolSize(256),
	)
	require.NoError(t, err)
	p.Start()

	var wg sync.WaitGroup
	handles := make([]*Spout, spouts)
	for i := range handles {
		s, err := p.MakeSpout()
		require.NoError(t, err)
		handles[i] = s
	}

	for i, s := range handles {
		wg.Add(1)
		go func(param uint64, s *Spout) {
			defer wg.Done()
			for ts := int64(0); ts < perSpout; ts++ {
				s.Write(storage.FloatSample(param, ts, float64(ts)))
			}
		}(uint64(i+1), s)
	}

	wg.Wait()
	p.Stop()

	require.Equal(t, totalSent, conn.observed())
	for i := range handles {
		times := conn.perParam[uint64(i+1)]
		require.Len(t, times, perSpout)
		for j, ts := range times {
			require.Equal(t, int64(j), ts, "spout %d out of order at %d", i, j)
		}
	}

	// No slot remains in flight after Stop.
	for i, s := range handles {
		require.Equal(t, s.Created(), s.Released(), "spout %d", i)
		require.Equal(t, uint64(perSpout), s.Created(), "spout %d", i)
	}

	require.Equal(t, float64(totalSent), testutil.ToFloat64(p.Metrics().SamplesWritten))
}

// A storage failure on the Nth sample reaches the error callback exactly
// once, with the release count identifying the failed sample; ingestion then
// continues.
func TestPipeline_ErrorCallback(t *testing.T) {
	const total = 1000

	conn := newMockConn()
	conn.failAt[100] = errs.ErrIO

	p, err := New(conn, WithQueueCount(1))
	require.NoError(t, err)
	p.Start()

	var (
		mu    sync.Mutex
		calls []uint64
		errsC []error
	)
	s, err := p.MakeSpout()
	require.NoError(t, err)
	s.SetErrorCallback(func(err error, released uint64) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, released)
		errsC = append(errsC, err)
	})

	for ts := int64(0); ts < total; ts++ {
		s.Write(storage.FloatSample(1, ts, 0))
	}
	p.Stop()

	require.Len(t, calls, 1)
	require.Equal(t, uint64(100), calls[0])
	require.ErrorIs(t, errsC[0], errs.ErrIO)

	require.Equal(t, total, conn.observed())
	require.Len(t, conn.perParam[1], total-1)
	require.Equal(t, uint64(total), s.Released())
	require.Equal(t, float64(1), testutil.ToFloat64(p.Metrics().WriteErrors))
}

// Poison-pill drain: everything enqueued before Stop is observed by storage.
func TestPipeline_DrainOnStop(t *testing.T) {
	const k = 500

	conn := newMockConn()
	p, err := New(conn, WithQueueCount(4), WithQueueCapacity(256))
	require.NoError(t, err)
	p.Start()

	s, err := p.MakeSpout()
	require.NoError(t, err)
	for ts := int64(0); ts < k; ts++ {
		s.Write(storage.FloatSample(1, ts, 0))
	}

	p.Stop()
	require.Equal(t, k, conn.observed())
	require.Equal(t, uint64(k), s.Released())
}

// The worker must be live when Start returns: a sample written immediately
// afterwards is drained without further coordination.
func TestPipeline_StartBarrier(t *testing.T) {
	conn := newMockConn()
	p, err := New(conn)
	require.NoError(t, err)
	p.Start()

	s, err := p.MakeSpout()
	require.NoError(t, err)
	s.Write(storage.FloatSample(1, 1, 1))

	require.Eventually(t, func() bool {
		return conn.observed() == 1
	}, 5*time.Second, time.Millisecond)

	p.Stop()
}

// Past the idle threshold the worker parks on the clock between scan rounds
// instead of spinning. With a mock clock the park is observable: a sample
// written while the worker sleeps is not drained until the clock advances.
func TestPipeline_IdleSleep(t *testing.T) {
	conn := newMockConn()
	mock := clock.NewMock()

	p, err := New(conn, WithQueueCount(1), WithClock(mock))
	require.NoError(t, err)
	p.Start()

	s, err := p.MakeSpout()
	require.NoError(t, err)

	// Let the worker burn through the idle threshold on empty queues; the
	// spin takes well under this on any machine, after which the worker is
	// blocked in the mock clock's sleep.
	time.Sleep(200 * time.Millisecond)

	s.Write(storage.FloatSample(1, 1, 1))
	require.Never(t, func() bool { return conn.observed() > 0 },
		100*time.Millisecond, 5*time.Millisecond)

	// One tick releases one scan round; the parked worker wakes and drains.
	cancel := advanceUntil(mock)
	require.Eventually(t, func() bool { return conn.observed() == 1 },
		5*time.Second, time.Millisecond)

	p.Stop()
	cancel()
	require.Equal(t, uint64(1), s.Released())
}

// The pool never exceeds its bound: created-released stays within POOL_SIZE
// at every observation.
func TestSpout_PoolBound(t *testing.T) {
	conn := newMockConn()
	p, err := New(conn, WithPoolSize(16), WithQueueCount(1))
	require.NoError(t, err)
	p.Start()

	s, err := p.MakeSpout()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ts := int64(0); ts < 5000; ts++ {
			s.Write(storage.FloatSample(1, ts, 0))
		}
	}()

	for {
		select {
		case <-done:
			p.Stop()
			require.LessOrEqual(t, s.Created()-s.Released(), uint64(16))
			return
		default:
			created, released := s.Created(), s.Released()
			require.LessOrEqual(t, created-released, uint64(16))
			require.GreaterOrEqual(t, created, released)
			runtime.Gosched()
		}
	}
}
