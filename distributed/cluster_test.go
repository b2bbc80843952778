package distributed

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/oblivml/mpcserve/fixed"
	"github.com/oblivml/mpcserve/model"
	"github.com/oblivml/mpcserve/mpc"
	"github.com/oblivml/mpcserve/plainUtils"
)

//startCluster brings up two compute workers and the crypto provider on
//loopback ports.
func startCluster(t *testing.T) (workers [3]*Worker, addrs [3]string) {
	t.Helper()
	for i := 0; i < 3; i++ {
		w := NewWorker(i, "127.0.0.1:0")
		require.NoError(t, w.Start())
		go w.Listen()
		t.Cleanup(w.Stop)
		workers[i] = w
		addrs[i] = w.ListenAddr()
	}
	return
}

func queryWorkers(t *testing.T, addrs [3]string, reqID string, seq int, x *fixed.Tensor, frac uint) (*fixed.Tensor, error) {
	t.Helper()
	x0, x1 := mpc.Split(x)
	results := make([]*fixed.Tensor, 2)
	errc := make(chan error, 2)
	for i, share := range []*fixed.Tensor{x0, x1} {
		go func(i int, share *fixed.Tensor) {
			env, err := NewEnvelope(INPUT, reqID, -1, InputMsg{Seq: seq, X: share})
			if err != nil {
				errc <- err
				return
			}
			reply, err := RoundTrip(addrs[i], env)
			if err != nil {
				errc <- err
				return
			}
			var res ResultMsg
			if err := UnmarshalPayload(reply, &res); err != nil {
				errc <- err
				return
			}
			if res.Err != "" {
				errc <- errorString(res.Err)
				return
			}
			results[i] = res.Y
			errc <- nil
		}(i, share)
	}
	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil {
			return nil, err
		}
	}
	return mpc.Reconstruct(results[0], results[1]), nil
}

type errorString string

func (e errorString) Error() string { return string(e) }

func TestClusterEvaluatesLikePlainModel(t *testing.T) {
	workers, addrs := startCluster(t)
	_ = workers

	n := model.RandomNetwork([]int{4, 6, 3}, 4, 1)
	frac := fixed.DefaultFracBits

	m, err := NewMaster([]string{addrs[0], addrs[1]}, addrs[2], frac, 1)
	require.NoError(t, err)
	require.NoError(t, m.ShareModel(n))
	require.NoError(t, m.Provision(2))

	X := mat.NewDense(1, 4, []float64{0.25, -0.5, 0.75, 0.1})
	want, err := n.EvalPlain(X)
	require.NoError(t, err)

	for seq := 0; seq < 2; seq++ {
		y, err := queryWorkers(t, addrs, "req-"+string(rune('a'+seq)), seq, fixed.FromDense(X, frac), frac)
		require.NoError(t, err)
		got := y.ToDense(frac)
		require.Less(t, plainUtils.MaxAbs(plainUtils.RowFlatten(want), plainUtils.RowFlatten(got)), 0.02,
			"seq %d: secure evaluation diverged from plain reference", seq)
	}

	//request 2 was never provisioned
	_, err = queryWorkers(t, addrs, "req-c", 2, fixed.FromDense(X, frac), frac)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no triples")
}

func TestWorkerRejectsWrongInputShape(t *testing.T) {
	_, addrs := startCluster(t)

	n := model.RandomNetwork([]int{3, 2}, 2, 7)
	frac := fixed.DefaultFracBits

	m, err := NewMaster([]string{addrs[0], addrs[1]}, addrs[2], frac, 1)
	require.NoError(t, err)
	require.NoError(t, m.ShareModel(n))
	require.NoError(t, m.Provision(1))

	bad := fixed.FromVec([]float64{1, 2, 3, 4}, frac) //4 features, model wants 3
	_, err = queryWorkers(t, addrs, "req-bad", 0, bad, frac)
	require.Error(t, err)
	require.Contains(t, err.Error(), "input shape")
}

//Triple delivery is acknowledged: the receiving worker acks only after
//the bundle is stored and usable, so a provision ack means every
//granted request can actually be evaluated.
func TestTripleDeliveryAcknowledged(t *testing.T) {
	workers, addrs := startCluster(t)

	dims := []LayerDims{{Rows: 3, Cols: 2, ActMuls: 1}}
	b0, _ := dealBundle(0, 1, dims)
	env, err := NewEnvelope(TRIPLES, "", mpc.Provider, b0)
	require.NoError(t, err)
	require.NoError(t, RoundTripAck(addrs[0], env))

	w := workers[0]
	w.mu.Lock()
	_, stored := w.bundles[0]
	w.mu.Unlock()
	require.True(t, stored, "acked bundle must already be stored")
}

func TestProvisionRejectedByComputeWorker(t *testing.T) {
	_, addrs := startCluster(t)

	n := model.RandomNetwork([]int{2, 2}, 2, 3)
	//provider endpoint deliberately points at compute worker 0
	m, err := NewMaster([]string{addrs[0], addrs[1]}, addrs[0], fixed.DefaultFracBits, 1)
	require.NoError(t, err)
	require.NoError(t, m.ShareModel(n))
	err = m.Provision(1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not the crypto provider")
}

type flakyListener struct {
	net.Listener
	tripped bool
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if !l.tripped {
		l.tripped = true
		return nil, errors.New("accept: transient failure")
	}
	return l.Listener.Accept()
}

//A transient accept error must not take the worker out of service.
func TestListenSurvivesAcceptError(t *testing.T) {
	w := NewWorker(1, "127.0.0.1:0")
	require.NoError(t, w.Start())
	w.ln = &flakyListener{Listener: w.ln}
	go w.Listen()
	t.Cleanup(w.Stop)

	env, err := NewEnvelope(END, "", -1, AckMsg{})
	require.NoError(t, err)
	require.NoError(t, RoundTripAck(w.ListenAddr(), env))
}

func TestMasterEndStopsWorkers(t *testing.T) {
	workers, addrs := startCluster(t)
	m, err := NewMaster([]string{addrs[0], addrs[1]}, addrs[2], fixed.DefaultFracBits, 1)
	require.NoError(t, err)
	require.NoError(t, m.End())
	//listeners go away shortly after the ack
	for i := range workers {
		i := i
		require.Eventually(t, func() bool {
			c, err := net.Dial("tcp", addrs[i])
			if err == nil {
				c.Close()
			}
			return err != nil
		}, time.Second, 10*time.Millisecond)
	}
}

func TestTLVFraming(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	payload := []byte(`{"hello":"world"}`)
	go func() {
		WriteTo(a, payload)
	}()
	got, err := ReadFrom(b)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

//The simulated-LAN wrappers let the cluster tests run latency-sensitive
//paths on a single machine. Both endpoints must be wrapped.
func TestSimulatedLanFraming(t *testing.T) {
	base, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer base.Close()

	ln := Local.Listener(base)

	done := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			done <- nil
			return
		}
		defer c.Close()
		buf, _ := ReadFrom(c)
		done <- buf
	}()

	dialer := Local.TimeoutDialer(net.DialTimeout)
	c, err := dialer("tcp", base.Addr().String(), time.Second)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, WriteTo(c, []byte("ping")))
	require.Equal(t, []byte("ping"), <-done)
}
