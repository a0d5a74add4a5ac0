// internal/server/handler.go
package server

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/simonvetter/modbus"

	"github.com/tamzrod/vsd-gateway/internal/regmap"
)

// Registers is the register image the handler serves.
// Satisfied by *regmap.Map.
type Registers interface {
	ReadRegisters(addr, qty uint16) ([]uint16, error)
	WriteRegisters(addr uint16, values []uint16) error
}

// Handler answers holding-register requests from the register map.
// Every other function code is an illegal function.
// Handler methods run on the server's per-client goroutines.
type Handler struct {
	regs   Registers
	unitID *uint8 // nil accepts any unit id
	log    zerolog.Logger
}

func NewHandler(regs Registers, unitID *uint8, logger zerolog.Logger) *Handler {
	return &Handler{
		regs:   regs,
		unitID: unitID,
		log:    logger.With().Str("component", "tcp-server").Logger(),
	}
}

func (h *Handler) HandleCoils(*modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *Handler) HandleDiscreteInputs(*modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *Handler) HandleInputRegisters(*modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *Handler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	// a foreign unit id is answered like an absent gateway target
	if h.unitID != nil && req.UnitId != *h.unitID {
		return nil, modbus.ErrGWTargetFailedToRespond
	}

	if req.IsWrite {
		h.log.Debug().
			Str("client", req.ClientAddr).
			Uint16("addr", req.Addr).
			Uint16("qty", req.Quantity).
			Msg("HR write")

		if err := h.regs.WriteRegisters(req.Addr, req.Args); err != nil {
			return nil, mapError(err)
		}
		return req.Args, nil
	}

	h.log.Debug().
		Str("client", req.ClientAddr).
		Uint16("addr", req.Addr).
		Uint16("qty", req.Quantity).
		Msg("HR read")

	res, err := h.regs.ReadRegisters(req.Addr, req.Quantity)
	if err != nil {
		return nil, mapError(err)
	}
	return res, nil
}

func mapError(err error) error {
	if errors.Is(err, regmap.ErrOutOfRange) {
		return modbus.ErrIllegalDataAddress
	}
	return modbus.ErrServerDeviceFailure
}
