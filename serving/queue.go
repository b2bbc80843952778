//Package serving exposes the model owner's queue and the querier
//client. The owner shares its model once, provisions a bounded number
//of requests and hands out slots; inputs and outputs travel only
//between the client and the two compute workers.
package serving

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/oblivml/mpcserve/cluster"
	"github.com/oblivml/mpcserve/distributed"
	"github.com/oblivml/mpcserve/model"
)

//ErrExhausted is returned to clients once the request bound is reached.
var ErrExhausted = errors.New("serving: request limit reached")

//grantTimeout bounds how long a granted slot may stay unreported before
//the queue counts it as finished anyway, so a crashed client cannot
//keep the cluster alive forever.
var grantTimeout = time.Minute

//QueueServer is the model owner's serving endpoint.
type QueueServer struct {
	cfg    *cluster.Config
	net    *model.Network
	master *distributed.Master

	ln net.Listener

	mu        sync.Mutex
	remaining int
	nextSeq   int
	//granted but not yet completed requests, with their expiry timers
	pending map[string]*time.Timer

	drained  chan struct{}
	drainSig sync.Once
	closing  sync.Once
}

func NewQueueServer(cfg *cluster.Config, n *model.Network) (*QueueServer, error) {
	master, err := distributed.NewMaster(cfg.ComputeWorkers(), cfg.ProviderAddr(), cfg.FracBits, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	return &QueueServer{
		cfg:     cfg,
		net:     n,
		master:  master,
		pending: make(map[string]*time.Timer),
		drained: make(chan struct{}),
	}, nil
}

//Start shares the model with the compute workers and binds the queue
//listener.
func (s *QueueServer) Start() error {
	if err := s.master.ShareModel(s.net); err != nil {
		return fmt.Errorf("serving: sharing model: %w", err)
	}
	ln, err := distributed.Listen(s.cfg.QueueAddr)
	if err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	s.ln = ln
	log.Infof("[*] queue -- listening at %s", ln.Addr())
	return nil
}

func (s *QueueServer) Addr() string {
	return s.ln.Addr().String()
}

//Serve provisions numRequests predictions and blocks until every
//granted request has completed (or expired) or ctx is done.
//Registrations beyond the bound are refused. Stopping the cluster is
//safe once Serve returns: no granted request is still in flight.
func (s *QueueServer) Serve(ctx context.Context, numRequests int) error {
	if err := s.master.Provision(numRequests); err != nil {
		return fmt.Errorf("serving: provisioning: %w", err)
	}
	s.mu.Lock()
	s.remaining = numRequests
	s.mu.Unlock()
	if numRequests == 0 {
		return nil
	}

	go s.acceptLoop()

	select {
	case <-s.drained:
		log.Infof("[*] queue -- all %d requests completed", numRequests)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *QueueServer) acceptLoop() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warnf("[*] queue -- accept: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		go s.handle(c)
	}
}

func (s *QueueServer) handle(c net.Conn) {
	defer c.Close()
	env, err := distributed.ReadMsg(c)
	if err != nil {
		return
	}
	switch env.Type {
	case distributed.REGISTER:
		grant := s.takeSlot()
		reply, err := distributed.NewEnvelope(distributed.GRANT, grant.ReqID, -1, grant)
		if err != nil {
			return
		}
		if err := distributed.WriteMsg(c, reply); err != nil {
			log.Warnf("[*] queue -- replying: %v", err)
		}
	case distributed.DONE:
		s.release(env.ReqID, false)
	default:
		log.Warnf("[*] queue -- unexpected message type %d", env.Type)
	}
}

func (s *QueueServer) takeSlot() *distributed.GrantMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining <= 0 {
		return &distributed.GrantMsg{Granted: false, Reason: ErrExhausted.Error()}
	}
	seq := s.nextSeq
	s.nextSeq++
	s.remaining--
	reqID := uuid.NewString()
	s.pending[reqID] = time.AfterFunc(grantTimeout, func() { s.release(reqID, true) })
	log.Infof("[*] queue -- slot %d granted to %s (%d left)", seq, reqID, s.remaining)
	return &distributed.GrantMsg{
		Granted:  true,
		Seq:      seq,
		ReqID:    reqID,
		Workers:  s.cfg.ComputeWorkers(),
		FracBits: s.cfg.FracBits,
		Batch:    s.cfg.BatchSize,
		InputDim: s.net.InputDim(),
	}
}

//release marks a granted request finished. The queue drains only when
//the bound is spent and nothing granted is still running.
func (s *QueueServer) release(reqID string, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[reqID]
	if !ok {
		return
	}
	t.Stop()
	delete(s.pending, reqID)
	if expired {
		log.Warnf("[*] queue -- request %s expired without completing", reqID)
	} else {
		log.Infof("[*] queue -- request %s completed", reqID)
	}
	if s.remaining == 0 && len(s.pending) == 0 {
		s.drainSig.Do(func() { close(s.drained) })
	}
}

//Stop closes the queue and tells every worker to shut down.
func (s *QueueServer) Stop() error {
	var err error
	s.closing.Do(func() {
		if s.ln != nil {
			s.ln.Close()
		}
		err = s.master.End()
	})
	return err
}
