// Command clusterdemo runs one *cluster.Cluster and wires it to the other
// demo role's process over a real QUIC datagram transport, demonstrating the
// send-callback/ingress wiring end to end. Run two copies, one per role:
//
//	clusterdemo -self 0 -peer 1
//	clusterdemo -self 1 -peer 0
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"log/slog"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/KarpelesLab/clustercore"
)

// demoAddrs maps each of the two demo roles to its UDP listen address. A
// real deployment would resolve this from a topology service; the demo
// hardcodes it to two local roles.
var demoAddrs = map[cluster.MemberID]string{
	0: "127.0.0.1:29301",
	1: "127.0.0.1:29302",
}

// demoSecret is a fixed shared master secret so both demo processes derive
// identical per-member keys without an out-of-band exchange step. Never
// reuse this in anything but a local demo.
var demoSecret = [64]byte{
	0xd3, 0x15, 0x7a, 0x9c, 0x4e, 0x22, 0x81, 0xab, 0x0f, 0x6b, 0x33, 0x5e, 0x71, 0x88, 0x9d, 0x44,
	0xcc, 0x02, 0x19, 0x3f, 0x5a, 0x8e, 0x60, 0x7d, 0x91, 0x2c, 0x48, 0xe6, 0x13, 0x77, 0xb2, 0xf0,
	0x64, 0x3d, 0xa1, 0x58, 0x2e, 0x99, 0x06, 0x4b, 0x87, 0x3a, 0x1d, 0x5f, 0x72, 0xc8, 0x0e, 0x96,
	0x41, 0x2b, 0xe3, 0x7c, 0x59, 0x84, 0x10, 0xaf, 0x6d, 0x95, 0x27, 0x4f, 0xb1, 0xd8, 0x03, 0x66,
}

func main() {
	var selfID, peerID int
	flag.IntVar(&selfID, "self", 0, "this node's member ID (0 or 1)")
	flag.IntVar(&peerID, "peer", 1, "the other node's member ID (0 or 1)")
	flag.Parse()

	self := cluster.MemberID(selfID)
	peer := cluster.MemberID(peerID)
	nodeName := uuid.New().String()

	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		slog.Error("generating self-signed cert", "error", err)
		os.Exit(1)
	}

	udpConn, err := net.ListenUDP("udp", mustResolveUDP(demoAddrs[self]))
	if err != nil {
		slog.Error("listening on udp", "addr", demoAddrs[self], "error", err)
		os.Exit(1)
	}
	defer udpConn.Close()

	transport := &quic.Transport{Conn: udpConn}
	defer transport.Close()

	listener, err := transport.Listen(tlsConf, &quic.Config{EnableDatagrams: true})
	if err != nil {
		slog.Error("quic listen", "error", err)
		os.Exit(1)
	}
	defer listener.Close()

	dialer := &quicDialer{
		transport: transport,
		peerAddr:  mustResolveUDP(demoAddrs[peer]),
		tlsConf:   &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"clusterdemo"}},
	}

	cfg := cluster.DefaultConfig()
	cfg.SelfID = self
	cfg.MasterSecret = demoSecret

	c, err := cluster.NewCluster(cfg, cluster.Collaborators{
		Send: dialer.send,
	}, cluster.WithBuildInfo(cluster.BuildInfo{Major: 1, Proto: 1}))
	if err != nil {
		slog.Error("NewCluster", "error", err)
		os.Exit(1)
	}
	if err := c.AddMember(peer); err != nil {
		slog.Error("AddMember", "error", err)
		os.Exit(1)
	}

	slog.Info("clusterdemo started", "node", nodeName, "self", self, "peer", peer, "listen", demoAddrs[self])

	go acceptLoop(listener, c, peer)
	go periodicLoop(c)

	for range time.Tick(5 * time.Second) {
		snap := c.Status()
		for _, m := range snap.Members {
			slog.Info("status", "member", m.ID, "alive", m.Alive, "peers", m.PeerCount)
		}
	}
}

// acceptLoop accepts the single demo peer connection and feeds every
// received datagram into HandleIncomingStateMessage.
func acceptLoop(listener *quic.Listener, c *cluster.Cluster, from cluster.MemberID) {
	for {
		conn, err := listener.Accept(context.Background())
		if err != nil {
			slog.Error("quic accept", "error", err)
			return
		}
		go func() {
			for {
				frame, err := conn.ReceiveDatagram(context.Background())
				if err != nil {
					slog.Debug("quic datagram receive ended", "error", err)
					return
				}
				c.HandleIncomingStateMessage(from, frame)
			}
		}()
	}
}

// periodicLoop drives DoPeriodicTasks on the cadence the core expects: far
// more often than its own internal cadences so they are never starved.
func periodicLoop(c *cluster.Cluster) {
	for range time.Tick(time.Second) {
		c.DoPeriodicTasks()
	}
}

// quicDialer lazily establishes and reuses one QUIC connection to the demo
// peer, implementing cluster.SendFunc.
type quicDialer struct {
	transport *quic.Transport
	peerAddr  *net.UDPAddr
	tlsConf   *tls.Config

	conn quic.Connection
}

func (d *quicDialer) send(to cluster.MemberID, frame []byte) {
	if d.conn == nil {
		conn, err := d.transport.Dial(context.Background(), d.peerAddr, d.tlsConf, &quic.Config{EnableDatagrams: true})
		if err != nil {
			slog.Debug("quic dial failed, dropping frame", "to", to, "error", err)
			return
		}
		d.conn = conn
	}
	if err := d.conn.SendDatagram(frame); err != nil {
		slog.Debug("quic datagram send failed, dropping frame", "to", to, "error", err)
		d.conn = nil
	}
}

func mustResolveUDP(addr string) *net.UDPAddr {
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		panic(err)
	}
	return a
}

// selfSignedTLSConfig generates an ephemeral self-signed certificate for
// the demo's QUIC listener. Production deployments would supply a real
// certificate; nothing in the core depends on this.
func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		DNSNames:     []string{"clusterdemo"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"clusterdemo"},
	}, nil
}
