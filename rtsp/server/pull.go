package server

import (
	"context"
	"time"

	"github.com/datarhei/rtsp/event"
	"github.com/datarhei/rtsp/log"
	"github.com/datarhei/rtsp/rtsp/client"

	"github.com/google/uuid"
	"github.com/pion/rtp"
)

// pull relays a remote stream into a channel.
type pull struct {
	id      string
	client  *client.Client
	channel *channel
	server  *server
	logger  log.Logger

	txbytes uint64
	rxbytes uint64
}

func (s *server) Pull(ctx context.Context, url, path string) (<-chan struct{}, error) {
	if s.closed.Load() {
		return nil, ErrServerClosed
	}

	p := &pull{
		id:     uuid.New().String(),
		server: s,
	}

	p.logger = s.logger.WithFields(log.Fields{
		"pull": p.id,
		"path": path,
	})

	cl, err := client.Dial(ctx, url, client.Config{
		Logger:    p.logger,
		UserAgent: s.name,
	})
	if err != nil {
		return nil, err
	}

	p.client = cl

	desc, base, err := cl.Describe(ctx)
	if err != nil {
		cl.Close()
		return nil, err
	}

	ch, err := newChannel(path, cl.URL(), desc, true, p.logger)
	if err != nil {
		cl.Close()
		return nil, err
	}

	if err := s.reserve(ch); err != nil {
		cl.Close()
		return nil, err
	}

	p.channel = ch

	// Interleaved channel to media index
	medias := map[uint8]int{}

	for i, m := range desc.Medias {
		track, err := cl.Setup(ctx, base, m, false)
		if err != nil {
			s.release(ch)
			cl.Close()
			return nil, err
		}

		medias[track.Channel] = i
	}

	cl.OnPacket(func(channel uint8, pkt *rtp.Packet) {
		if index, ok := medias[channel]; ok {
			ch.write(index, pkt, nil)
		}
	})

	cl.OnRTCP(func(channel uint8, data []byte) {
		if index, ok := medias[channel-1]; ok {
			ch.writeRTCP(index, data)
		}
	})

	ch.activate(p.id)

	if err := cl.Play(ctx); err != nil {
		s.release(ch)
		cl.Close()
		return nil, err
	}

	s.collector.Register(p.id, path, "pull", cl.URL(), 0, nil)

	s.log("PULL", "START", path, "", cl.URL())
	s.publishEvent(event.ActionPublish, path, p.id, cl.URL())

	done := make(chan struct{})

	go func() {
		defer close(done)

		p.run(ctx)
	}()

	return done, nil
}

// run accounts the traffic until the relay ends.
func (p *pull) run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	defer p.close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.client.Done():
			p.logger.Warn().Log("Remote stream ended")
			return
		case <-p.channel.done():
			return
		case <-ticker.C:
			p.account()
		}
	}
}

func (p *pull) account() {
	txbytes := p.client.TxBytes()
	rxbytes := p.client.RxBytes()

	p.server.collector.Ingress(p.id, int64(rxbytes-p.rxbytes))
	p.server.collector.Egress(p.id, int64(txbytes-p.txbytes))

	p.txbytes = txbytes
	p.rxbytes = rxbytes
}

func (p *pull) close() {
	p.account()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.client.Teardown(ctx); err != nil {
		p.logger.Debug().WithError(err).Log("Teardown failed")
	}

	p.client.Close()

	p.server.collector.Unregister(p.id)
	p.server.release(p.channel)

	p.server.log("PULL", "STOP", p.channel.path, "", p.client.URL())
}
