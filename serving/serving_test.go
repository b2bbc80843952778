package serving

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/oblivml/mpcserve/cluster"
	"github.com/oblivml/mpcserve/distributed"
	"github.com/oblivml/mpcserve/model"
	"github.com/oblivml/mpcserve/plainUtils"
)

func startWorkers(t *testing.T) []string {
	t.Helper()
	addrs := make([]string, 3)
	for i := 0; i < 3; i++ {
		w := distributed.NewWorker(i, "127.0.0.1:0")
		require.NoError(t, w.Start())
		go w.Listen()
		t.Cleanup(w.Stop)
		addrs[i] = w.ListenAddr()
	}
	return addrs
}

func TestServeBoundedRequests(t *testing.T) {
	addrs := startWorkers(t)
	cfg := &cluster.Config{
		QueueAddr:   "127.0.0.1:0",
		Workers:     addrs,
		FracBits:    16,
		BatchSize:   1,
		NumRequests: 3,
	}
	require.NoError(t, cfg.Validate())

	n := model.RandomNetwork([]int{6, 8, 4}, 4, 3)

	qs, err := NewQueueServer(cfg, n)
	require.NoError(t, err)
	require.NoError(t, qs.Start())
	defer qs.Stop()

	serveDone := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() { serveDone <- qs.Serve(ctx, cfg.NumRequests) }()

	client := NewClient(qs.Addr())
	x := []float64{0.1, 0.9, -0.3, 0.5, 0.0, -0.7}

	X := mat.NewDense(1, 6, x)
	want, err := n.EvalPlain(X)
	require.NoError(t, err)
	wantFlat := plainUtils.RowFlatten(want)

	for i := 0; i < cfg.NumRequests; i++ {
		scores, err := client.Predict(x)
		require.NoError(t, err, "request %d", i)
		require.Len(t, scores, 4)
		require.Less(t, plainUtils.MaxAbs(wantFlat, scores), 0.02, "request %d", i)
		//both paths agree on the class
		require.Equal(t, plainUtils.ArgMax(wantFlat), plainUtils.ArgMax(scores))
	}

	//the queue drains once the bound is spent and every request completed
	require.NoError(t, <-serveDone)

	//request N+1 is refused
	_, err = client.Predict(x)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	addrs := startWorkers(t)
	cfg := &cluster.Config{
		QueueAddr: "127.0.0.1:0",
		Workers:   addrs,
		FracBits:  16,
		BatchSize: 1,
	}
	n := model.RandomNetwork([]int{3, 2}, 2, 11)

	qs, err := NewQueueServer(cfg, n)
	require.NoError(t, err)
	require.NoError(t, qs.Start())
	defer qs.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go qs.Serve(ctx, 1)

	client := NewClient(qs.Addr())
	_, err = client.Predict([]float64{1, 2}) //model expects 3 features
	require.Error(t, err)
	require.Contains(t, err.Error(), "features")
}

//takeOnlySlot registers until the queue grants the slot, without ever
//completing the request.
func takeOnlySlot(t *testing.T, queueAddr string) distributed.GrantMsg {
	t.Helper()
	var grant distributed.GrantMsg
	require.Eventually(t, func() bool {
		reg, err := distributed.NewEnvelope(distributed.REGISTER, "", -1, distributed.RegisterMsg{})
		if err != nil {
			return false
		}
		reply, err := distributed.RoundTrip(queueAddr, reg)
		if err != nil {
			return false
		}
		if err := distributed.UnmarshalPayload(reply, &grant); err != nil {
			return false
		}
		return grant.Granted
	}, 5*time.Second, 50*time.Millisecond)
	return grant
}

//A granted slot must keep the cluster alive until the request reports
//completion; draining on the grant alone would let shutdown kill
//requests that are still in flight.
func TestServeWaitsForGrantedRequests(t *testing.T) {
	addrs := startWorkers(t)
	cfg := &cluster.Config{
		QueueAddr: "127.0.0.1:0",
		Workers:   addrs,
		FracBits:  16,
		BatchSize: 1,
	}
	n := model.RandomNetwork([]int{3, 2}, 2, 9)

	qs, err := NewQueueServer(cfg, n)
	require.NoError(t, err)
	require.NoError(t, qs.Start())
	defer qs.Stop()

	serveDone := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() { serveDone <- qs.Serve(ctx, 1) }()

	grant := takeOnlySlot(t, qs.Addr())

	select {
	case err := <-serveDone:
		t.Fatalf("Serve returned with a granted request still in flight: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	done, err := distributed.NewEnvelope(distributed.DONE, grant.ReqID, -1, distributed.AckMsg{OK: true})
	require.NoError(t, err)
	require.NoError(t, distributed.SendOnce(qs.Addr(), done))
	require.NoError(t, <-serveDone)
}

//A client that takes a slot and vanishes must not hold the queue open
//forever: the grant expires and Serve returns.
func TestGrantExpiryUnblocksServe(t *testing.T) {
	old := grantTimeout
	grantTimeout = 200 * time.Millisecond
	defer func() { grantTimeout = old }()

	addrs := startWorkers(t)
	cfg := &cluster.Config{
		QueueAddr: "127.0.0.1:0",
		Workers:   addrs,
		FracBits:  16,
		BatchSize: 1,
	}
	n := model.RandomNetwork([]int{2, 2}, 2, 13)

	qs, err := NewQueueServer(cfg, n)
	require.NoError(t, err)
	require.NoError(t, qs.Start())
	defer qs.Stop()

	serveDone := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() { serveDone <- qs.Serve(ctx, 1) }()

	takeOnlySlot(t, qs.Addr())

	select {
	case err := <-serveDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the grant expired")
	}
}

func TestServeZeroRequests(t *testing.T) {
	addrs := startWorkers(t)
	cfg := &cluster.Config{
		QueueAddr: "127.0.0.1:0",
		Workers:   addrs,
		FracBits:  16,
		BatchSize: 1,
	}
	n := model.RandomNetwork([]int{2, 2}, 2, 5)

	qs, err := NewQueueServer(cfg, n)
	require.NoError(t, err)
	require.NoError(t, qs.Start())
	defer qs.Stop()

	require.NoError(t, qs.Serve(context.Background(), 0))
}
