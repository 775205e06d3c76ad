package s8

import (
	"errors"
	"testing"

	"co2mon/drivers/serial"
	"co2mon/hal/sim"
	"co2mon/kernel"
	"co2mon/kernel/irq"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sensorLine = 39

func newSensor(t *testing.T, peer sim.Peer) (*Device, *sim.UART) {
	t.Helper()
	cpu := sim.NewCPU(64)
	im := irq.New(irq.Config{Controller: cpu, Mask: cpu})
	im.Init()
	port := sim.NewUART(cpu, sensorLine, peer)
	link, err := serial.New(serial.Config{Port: port, IRQ: im, Mask: cpu, Baud: 9600})
	require.NoError(t, err)
	return New(Config{Link: link, Clock: &sim.StepClock{Step: 1}}), port
}

func TestReadSendsTheDocumentedFrame(t *testing.T) {
	dev, port := newSensor(t, sim.NewS8(812))

	r, err := dev.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFE, 0x04, 0x00, 0x00, 0x00, 0x04, 0xE5, 0xC6}, port.Sent())
	assert.Equal(t, uint16(812), r.CO2)
	assert.True(t, r.OK())
	assert.Len(t, dev.LastFrame(), 13)
}

func TestReadReportsStatus(t *testing.T) {
	s := sim.NewS8(400)
	s.SetStatus(0x0020)
	dev, _ := newSensor(t, s)

	r, err := dev.Read()
	require.NoError(t, err)
	assert.False(t, r.OK())
	assert.Equal(t, uint16(0x0020), r.Status)

	s.SetStatus(0)
	s.SetCO2(1500)
	r, err = dev.Read()
	require.NoError(t, err)
	assert.Equal(t, Reading{CO2: 1500}, r)
	assert.Equal(t, 2, s.Queries())
}

func TestReadTimesOut(t *testing.T) {
	s := sim.NewS8(400)
	s.SetMute(true)
	dev, _ := newSensor(t, s)

	_, err := dev.Read()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, kernel.Timeout, kernel.CodeOf(err))
}

type exceptionPeer struct{ n int }

func (p *exceptionPeer) Receive(b byte) []byte {
	p.n++
	if p.n < 8 {
		return nil
	}
	p.n = 0
	codec := modbus.NewRTUClientHandler("")
	codec.SlaveId = Address
	adu, _ := codec.Encode(&modbus.ProtocolDataUnit{FunctionCode: 0x84, Data: []byte{0x02}})
	return adu
}

func TestReadSurfacesModbusException(t *testing.T) {
	dev, _ := newSensor(t, &exceptionPeer{})

	_, err := dev.Read()
	var mbErr *modbus.ModbusError
	require.True(t, errors.As(err, &mbErr), "got %v", err)
	assert.Equal(t, byte(0x02), mbErr.ExceptionCode)
}

func TestResponseLength(t *testing.T) {
	assert.Equal(t, 13, responseLength([]byte{0xFE, 0x04, 0, 0, 0, 4, 0, 0}))
	assert.Equal(t, 6, responseLength([]byte{0xFE, 0x01, 0, 0, 0, 8, 0, 0}))
	assert.Equal(t, 8, responseLength([]byte{0xFE, 0x06, 0, 1, 0, 1, 0, 0}))
}
