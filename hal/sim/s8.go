package sim

import (
	"encoding/binary"
	"sync"

	"github.com/goburrow/modbus"
)

const (
	s8Address         = 0xFE
	s8RequestLen      = 8
	s8InputRegisters  = 4
	s8FuncInputRegs   = 0x04
	s8ExceptionOffset = 0x80
	s8IllegalAddress  = 0x02
)

// S8 emulates a Senseair S8 CO2 sensor answering Modbus RTU on a UART.
//
// Input registers: IR1 meter status, IR2 alarm status, IR3 output status,
// IR4 space CO2 in ppm.
type S8 struct {
	mu      sync.Mutex
	codec   *modbus.RTUClientHandler
	frame   []byte
	co2     uint16
	status  uint16
	mute    bool
	queries int
}

// NewS8 returns a sensor reading co2 ppm with a clean status.
func NewS8(co2 uint16) *S8 {
	codec := modbus.NewRTUClientHandler("")
	codec.SlaveId = s8Address
	return &S8{codec: codec, co2: co2}
}

func (s *S8) SetCO2(ppm uint16) {
	s.mu.Lock()
	s.co2 = ppm
	s.mu.Unlock()
}

func (s *S8) CO2() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.co2
}

func (s *S8) SetStatus(status uint16) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// SetMute makes the sensor swallow requests without answering.
func (s *S8) SetMute(mute bool) {
	s.mu.Lock()
	s.mute = mute
	s.mu.Unlock()
}

// Queries returns how many well-formed requests were answered.
func (s *S8) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

// Receive collects request bytes and answers each complete frame.
func (s *S8) Receive(b byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame = append(s.frame, b)
	if len(s.frame) < s8RequestLen {
		return nil
	}
	frame := s.frame
	s.frame = nil

	if frame[0] != s8Address {
		return nil
	}
	req, err := s.codec.Decode(frame)
	if err != nil || s.mute {
		return nil
	}
	s.queries++

	if req.FunctionCode != s8FuncInputRegs || len(req.Data) != 4 {
		return s.exception(req.FunctionCode, 0x01)
	}
	addr := binary.BigEndian.Uint16(req.Data[0:2])
	qty := binary.BigEndian.Uint16(req.Data[2:4])
	if qty == 0 || int(addr)+int(qty) > s8InputRegisters {
		return s.exception(req.FunctionCode, s8IllegalAddress)
	}

	regs := [s8InputRegisters]uint16{s.status, 0, 0, s.co2}
	data := make([]byte, 1+2*int(qty))
	data[0] = byte(2 * qty)
	for i := 0; i < int(qty); i++ {
		binary.BigEndian.PutUint16(data[1+2*i:], regs[int(addr)+i])
	}
	adu, err := s.codec.Encode(&modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: data})
	if err != nil {
		return nil
	}
	return adu
}

func (s *S8) exception(fc byte, code byte) []byte {
	adu, err := s.codec.Encode(&modbus.ProtocolDataUnit{
		FunctionCode: fc | s8ExceptionOffset,
		Data:         []byte{code},
	})
	if err != nil {
		return nil
	}
	return adu
}
