package distributed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/oblivml/mpcserve/fixed"
	"github.com/oblivml/mpcserve/mpc"
)

var openTimeout = 30 * time.Second

//Worker is one of the three cluster processes. Workers 0 and 1 hold
//model and value shares and run the Beaver rounds between themselves;
//worker 2 is the crypto provider and only deals triples.
type Worker struct {
	ID   int
	Addr string

	ln net.Listener

	mu       sync.Mutex
	party    mpc.Party
	frac     uint
	batch    int
	layers   []LayerShare
	peerAddr string
	bundles  map[int]*TriplesMsg

	//in-flight Beaver rounds: reqID/layer/step -> chan *OpenMsg
	opens sync.Map

	closing sync.Once
	done    chan struct{}
}

func NewWorker(id int, addr string) *Worker {
	return &Worker{
		ID:      id,
		Addr:    addr,
		bundles: make(map[int]*TriplesMsg),
		done:    make(chan struct{}),
	}
}

//Start binds the listener. The effective address is available through
//ListenAddr afterwards (useful with ":0").
func (w *Worker) Start() error {
	ln, err := Listen(w.Addr)
	if err != nil {
		return fmt.Errorf("worker %d: %w", w.ID, err)
	}
	w.ln = ln
	log.Infof("[+] worker %d started at %s", w.ID, ln.Addr())
	return nil
}

func (w *Worker) ListenAddr() string {
	return w.ln.Addr().String()
}

//Listen accepts connections until Stop (blocking). Transient accept
//errors are retried so a single bad handshake cannot take the worker
//out of service.
func (w *Worker) Listen() {
	for {
		c, err := w.ln.Accept()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warnf("[+] worker %d accept: %v", w.ID, err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		go w.dispatch(c)
	}
}

//Stop closes the listener and unblocks Listen.
func (w *Worker) Stop() {
	w.closing.Do(func() {
		close(w.done)
		if w.ln != nil {
			w.ln.Close()
		}
		log.Infof("[+] worker %d stopped", w.ID)
	})
}

//dispatch handles one connection until EOF.
func (w *Worker) dispatch(c net.Conn) {
	defer c.Close()
	for {
		env, err := ReadMsg(c)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debugf("[+] worker %d read: %v", w.ID, err)
			}
			return
		}
		if err := w.handle(c, env); err != nil {
			log.Warnf("[+] worker %d handling %d: %v", w.ID, env.Type, err)
			return
		}
		if env.Type == END {
			return
		}
	}
}

func (w *Worker) handle(c net.Conn, env *Envelope) error {
	switch env.Type {
	case MODEL:
		return w.handleModel(c, env)
	case PROVISION:
		return w.handleProvision(c, env)
	case TRIPLES:
		return w.handleTriples(c, env)
	case INPUT:
		return w.handleInput(c, env)
	case OPEN:
		return w.handleOpen(env)
	case END:
		ack(c, true, "")
		w.Stop()
		return nil
	default:
		return fmt.Errorf("unknown message type %d", env.Type)
	}
}

func ack(c net.Conn, ok bool, errMsg string) {
	env, err := NewEnvelope(ACK, "", -1, AckMsg{OK: ok, Err: errMsg})
	if err != nil {
		return
	}
	WriteMsg(c, env)
}

func (w *Worker) handleModel(c net.Conn, env *Envelope) error {
	var msg ModelMsg
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		ack(c, false, err.Error())
		return err
	}
	w.mu.Lock()
	w.party = mpc.Party(msg.Party)
	w.peerAddr = msg.PeerAddr
	w.frac = msg.FracBits
	w.batch = msg.Batch
	w.layers = msg.Layers
	w.mu.Unlock()
	log.Infof("[+] worker %d received model shares: %d layers, party %d", w.ID, len(msg.Layers), msg.Party)
	ack(c, true, "")
	return nil
}

//handleProvision runs on the crypto provider: deal the triples every
//request will consume and push each compute worker its half. Delivery
//is acknowledged bundle by bundle, so when the provision ack goes out
//every granted request already has its triples stored at both workers.
func (w *Worker) handleProvision(c net.Conn, env *Envelope) error {
	var msg ProvisionMsg
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		ack(c, false, err.Error())
		return err
	}
	if w.ID != mpc.Provider {
		err := fmt.Errorf("worker %d is not the crypto provider", w.ID)
		ack(c, false, err.Error())
		return err
	}
	if len(msg.ComputeAddrs) != 2 {
		err := fmt.Errorf("provision needs 2 compute workers, got %d", len(msg.ComputeAddrs))
		ack(c, false, err.Error())
		return err
	}
	log.Infof("[+] worker %d dealing triples for %d requests", w.ID, msg.NumRequests)
	for seq := 0; seq < msg.NumRequests; seq++ {
		b0, b1 := dealBundle(seq, msg.Batch, msg.Layers)
		for i, bundle := range []*TriplesMsg{b0, b1} {
			out, err := NewEnvelope(TRIPLES, "", w.ID, bundle)
			if err != nil {
				ack(c, false, err.Error())
				return err
			}
			if err := RoundTripAck(msg.ComputeAddrs[i], out); err != nil {
				ack(c, false, err.Error())
				return fmt.Errorf("delivering triples to %s: %w", msg.ComputeAddrs[i], err)
			}
		}
	}
	ack(c, true, "")
	return nil
}

func dealBundle(seq, batch int, dims []LayerDims) (*TriplesMsg, *TriplesMsg) {
	b0 := &TriplesMsg{Seq: seq, Layers: make([]LayerTriples, len(dims))}
	b1 := &TriplesMsg{Seq: seq, Layers: make([]LayerTriples, len(dims))}
	for i, d := range dims {
		m0, m1 := mpc.DealMatMulTriple(batch, d.Rows, d.Cols)
		b0.Layers[i].MatMul = m0
		b1.Layers[i].MatMul = m1
		for t := 0; t < d.ActMuls; t++ {
			e0, e1 := mpc.DealElemTriple(batch, d.Cols)
			b0.Layers[i].Act = append(b0.Layers[i].Act, e0)
			b1.Layers[i].Act = append(b1.Layers[i].Act, e1)
		}
	}
	return b0, b1
}

//handleTriples stores one request's bundle and acks once it is usable,
//so the provider never reports provisioning done before the triples
//can actually serve an input.
func (w *Worker) handleTriples(c net.Conn, env *Envelope) error {
	var msg TriplesMsg
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		ack(c, false, err.Error())
		return err
	}
	w.mu.Lock()
	w.bundles[msg.Seq] = &msg
	w.mu.Unlock()
	ack(c, true, "")
	return nil
}

func (w *Worker) handleInput(c net.Conn, env *Envelope) error {
	var msg InputMsg
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	y, err := w.evaluate(env.ReqID, msg.Seq, msg.X)
	res := ResultMsg{Y: y}
	if err != nil {
		log.Warnf("[+] worker %d request %s: %v", w.ID, env.ReqID, err)
		res = ResultMsg{Err: err.Error()}
	}
	out, merr := NewEnvelope(RESULT, env.ReqID, w.ID, res)
	if merr != nil {
		return merr
	}
	return WriteMsg(c, out)
}

func (w *Worker) handleOpen(env *Envelope) error {
	var msg OpenMsg
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	ch := w.openChan(env.ReqID, msg.Layer, msg.Step)
	select {
	case ch <- &msg:
	default:
		return fmt.Errorf("duplicate open for %s/%d/%d", env.ReqID, msg.Layer, msg.Step)
	}
	return nil
}

func (w *Worker) openChan(reqID string, layer, step int) chan *OpenMsg {
	key := fmt.Sprintf("%s/%d/%d", reqID, layer, step)
	ch, _ := w.opens.LoadOrStore(key, make(chan *OpenMsg, 1))
	return ch.(chan *OpenMsg)
}

//exchangeOpen sends this party's masked shares to the peer and waits
//for the peer's, returning the opened values.
func (w *Worker) exchangeOpen(reqID string, layer, step int, e, f *fixed.Tensor) (*fixed.Tensor, *fixed.Tensor, error) {
	//register before sending so the peer's reply can never race us
	ch := w.openChan(reqID, layer, step)

	env, err := NewEnvelope(OPEN, reqID, w.ID, OpenMsg{Layer: layer, Step: step, E: e, F: f})
	if err != nil {
		return nil, nil, err
	}
	w.mu.Lock()
	peer := w.peerAddr
	w.mu.Unlock()
	if err := SendOnce(peer, env); err != nil {
		return nil, nil, fmt.Errorf("open to peer %s: %w", peer, err)
	}

	select {
	case theirs := <-ch:
		w.opens.Delete(fmt.Sprintf("%s/%d/%d", reqID, layer, step))
		return mpc.Open(e, theirs.E), mpc.Open(f, theirs.F), nil
	case <-time.After(openTimeout):
		return nil, nil, fmt.Errorf("timeout waiting peer open %s/%d/%d", reqID, layer, step)
	case <-w.done:
		return nil, nil, errors.New("worker stopped")
	}
}
