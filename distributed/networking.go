package distributed

//Contains networking technicalities and constants

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"google.golang.org/grpc/benchmark/latency"
)

var TYP = uint8(255)

const KB = 1024
const MB = 1024 * KB

//MAX_SIZE bounds a single frame. Model shares of wide layers dominate.
var MAX_SIZE = 64 * MB

var Local = latency.Network{ //simulates LAN on localhost
	Kbps:    1024 * 1024, //1 Gbps
	Latency: 2 * time.Millisecond,
	MTU:     1500, // Ethernet
}

var Lan = latency.Local //no overhead, used in real distributed env.

//Net is the latency model wrapped around every cluster connection.
//Defaults to Lan; swap in Local to rehearse LAN conditions on
//localhost. Dialing and listening sides must use the same model.
var Net = Lan

var dialTimeout = 5 * time.Second

//HELPERS

//write TLV value
func WriteTo(c io.Writer, buf []byte) error {
	if err := binary.Write(c, binary.LittleEndian, TYP); err != nil { //1-byte type
		return err
	}
	if err := binary.Write(c, binary.LittleEndian, uint32(len(buf))); err != nil { //4-byte len
		return err
	}
	return binary.Write(c, binary.LittleEndian, buf)
}

//reads TLV value
func ReadFrom(c io.Reader) ([]byte, error) {
	var typ uint8
	if err := binary.Read(c, binary.LittleEndian, &typ); err != nil {
		return nil, err
	}
	if typ != TYP {
		return nil, errors.New("not TYP")
	}
	var l uint32
	if err := binary.Read(c, binary.LittleEndian, &l); err != nil {
		return nil, err
	}
	if int(l) > MAX_SIZE {
		return nil, errors.New("payload too large")
	}
	buf := make([]byte, l)
	err := binary.Read(c, binary.LittleEndian, buf)
	return buf, err
}

//WriteMsg frames a JSON-encoded envelope.
func WriteMsg(c io.Writer, env *Envelope) error {
	buf, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return WriteTo(c, buf)
}

//ReadMsg reads one framed envelope.
func ReadMsg(c io.Reader) (*Envelope, error) {
	buf, err := ReadFrom(c)
	if err != nil {
		return nil, err
	}
	env := new(Envelope)
	if err := json.Unmarshal(buf, env); err != nil {
		return nil, fmt.Errorf("distributed: decoding envelope: %w", err)
	}
	return env, nil
}

func dial(addr string) (net.Conn, error) {
	return Net.TimeoutDialer(net.DialTimeout)("tcp", addr, dialTimeout)
}

//Listen binds a TCP listener wrapped with the cluster latency model.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return Net.Listener(ln), nil
}

//SendOnce dials addr, writes one envelope and closes.
func SendOnce(addr string, env *Envelope) error {
	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	return WriteMsg(c, env)
}

//RoundTrip dials addr, writes one envelope and reads one reply.
func RoundTrip(addr string, env *Envelope) (*Envelope, error) {
	c, err := dial(addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if err := WriteMsg(c, env); err != nil {
		return nil, err
	}
	return ReadMsg(c)
}

//RoundTripAck sends one envelope and fails unless the receiver acked
//it. Used wherever delivery must be confirmed before moving on.
func RoundTripAck(addr string, env *Envelope) error {
	reply, err := RoundTrip(addr, env)
	if err != nil {
		return err
	}
	if reply.Type != ACK {
		return fmt.Errorf("unexpected reply type %d from %s", reply.Type, addr)
	}
	var a AckMsg
	if err := UnmarshalPayload(reply, &a); err != nil {
		return err
	}
	if !a.OK {
		return errors.New(a.Err)
	}
	return nil
}
