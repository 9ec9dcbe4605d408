//go:build rp2040

// Command pumpnode is the pump peripheral firmware: a two-wire bus target at
// 0x08 driving the pump relay and answering value requests.
package main

import (
	"bytes"
	"context"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"floraseven/protocol"
	"floraseven/services/peripheral"
)

const (
	pumpPin = machine.GP15
	sdaPin  = machine.GP4
	sclPin  = machine.GP5
)

func main() {
	// Allow the console to settle before the first line.
	time.Sleep(1500 * time.Millisecond)

	console := uartx.UART0
	_ = console.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	_, _ = console.Write([]byte("pumpnode: boot\r\n"))

	pumpPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p := peripheral.New(pumpPin, peripheral.PlaceholderSampler{}, console, peripheral.Config{})

	i2c := machine.I2C0
	peripheral.Boot(console, func() error {
		err := i2c.Configure(machine.I2CConfig{
			Mode: machine.I2CModeTarget,
			SDA:  sdaPin,
			SCL:  sclPin,
		})
		if err != nil {
			return err
		}
		return i2c.Listen(protocol.Address)
	}, peripheral.DefaultRestartDelay, machine.CPUReset)

	go serve(i2c, p, console)
	p.Run(context.Background())
}

// serve dispatches bus target events to the peripheral.
func serve(i2c *machine.I2C, p *peripheral.Peripheral, console *uartx.UART) {
	buf := make([]byte, 8)
	for {
		evt, n, err := i2c.WaitForEvent(buf)
		if err != nil {
			_, _ = console.Write([]byte("bus: " + err.Error() + "\r\n"))
			continue
		}
		switch evt {
		case machine.I2CReceive:
			p.OnCommandReceived(bytes.NewReader(buf[:n]))
		case machine.I2CRequest:
			v := p.OnReadRequested()
			_ = i2c.Reply(v[:])
		case machine.I2CFinish:
		}
	}
}
