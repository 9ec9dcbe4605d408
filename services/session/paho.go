package session

import (
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"floraseven/errcode"
)

// PahoOptions configures a PahoClient.
type PahoOptions struct {
	Broker         string // tcp://host:1883
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration // default 5s
	WaitTimeout    time.Duration // subscribe/publish; default 5s
}

// PahoClient adapts the Eclipse Paho client. Reconnection is left to the
// Manager, so the library's own auto-reconnect is off.
type PahoClient struct {
	c    mqtt.Client
	qos  byte
	wait time.Duration
	conn time.Duration
	lost atomic.Pointer[func(error)]
}

func NewPahoClient(o PahoOptions) *PahoClient {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(o.ConnectTimeout)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	p := &PahoClient{
		qos:  o.QoS,
		wait: o.WaitTimeout,
		conn: o.ConnectTimeout,
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if f := p.lost.Load(); f != nil {
			(*f)(err)
		}
	})
	p.c = mqtt.NewClient(opts)
	return p
}

// OnConnectionLost implements LossNotifier.
func (p *PahoClient) OnConnectionLost(f func(err error)) { p.lost.Store(&f) }

func (p *PahoClient) IsConnected() bool { return p.c.IsConnected() }

func (p *PahoClient) Connect() error {
	return p.await("mqtt.connect", p.c.Connect(), p.conn+time.Second)
}

func (p *PahoClient) Subscribe(topic string, h Handler) error {
	t := p.c.Subscribe(topic, p.qos, func(_ mqtt.Client, m mqtt.Message) {
		h(m.Topic(), m.Payload())
	})
	return p.await("mqtt.subscribe "+topic, t, p.wait)
}

func (p *PahoClient) Publish(topic string, payload []byte) error {
	return p.await("mqtt.publish "+topic, p.c.Publish(topic, p.qos, false, payload), p.wait)
}

func (p *PahoClient) Disconnect() {
	if p.c.IsConnected() {
		p.c.Disconnect(250)
	}
}

func (p *PahoClient) await(op string, t mqtt.Token, d time.Duration) error {
	if !t.WaitTimeout(d) {
		return &errcode.E{C: errcode.Timeout, Op: op}
	}
	return t.Error()
}
