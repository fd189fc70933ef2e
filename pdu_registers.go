package modbus

import "fmt"

// ReadHoldingRegistersRequest reads 1 to 125 contiguous holding registers
// starting at Address (function 0x03, spec §6).
type ReadHoldingRegistersRequest struct {
	Address  uint16
	Quantity uint16
}

// NewReadHoldingRegistersRequest validates and constructs a
// ReadHoldingRegistersRequest.
func NewReadHoldingRegistersRequest(address, quantity uint16) (*ReadHoldingRegistersRequest, error) {
	if err := checkQuantity(quantity, 1, 125); err != nil {
		return nil, err
	}
	return &ReadHoldingRegistersRequest{Address: address, Quantity: quantity}, nil
}

func (r *ReadHoldingRegistersRequest) FunctionCode() FunctionCode { return FnReadHoldingRegisters }

func (r *ReadHoldingRegistersRequest) ToBytes() []byte {
	return append([]byte{byte(FnReadHoldingRegisters)}, put(4, r.Address, r.Quantity)...)
}

func (r *ReadHoldingRegistersRequest) String() string {
	return fmt.Sprintf("ReadHoldingRegisters(address=%d, quantity=%d)", r.Address, r.Quantity)
}

// ReadHoldingRegistersRequestFromBytes decodes a PDU into a
// ReadHoldingRegistersRequest.
func ReadHoldingRegistersRequestFromBytes(buf []byte) (*ReadHoldingRegistersRequest, error) {
	if err := checkFunctionCode(buf, FnReadHoldingRegisters, 5); err != nil {
		return nil, err
	}
	return NewReadHoldingRegistersRequest(getUint16(buf, 1), getUint16(buf, 3))
}

func (r *ReadHoldingRegistersRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return readRegistersResponseFromBytes(buf, FnReadHoldingRegisters, r.Quantity)
	})
}

// ReadHoldingRegistersResponse carries the register values returned by a
// ReadHoldingRegistersRequest.
type ReadHoldingRegistersResponse struct {
	Values []uint16
}

func (r *ReadHoldingRegistersResponse) FunctionCode() FunctionCode { return FnReadHoldingRegisters }

func (r *ReadHoldingRegistersResponse) ToBytes() []byte {
	return readRegistersToBytes(FnReadHoldingRegisters, r.Values)
}

func (r *ReadHoldingRegistersResponse) String() string {
	return fmt.Sprintf("ReadHoldingRegistersResponse(values=%v)", r.Values)
}

// ReadInputRegistersRequest reads 1 to 125 contiguous input registers
// starting at Address (function 0x04, spec §6).
type ReadInputRegistersRequest struct {
	Address  uint16
	Quantity uint16
}

// NewReadInputRegistersRequest validates and constructs a
// ReadInputRegistersRequest.
func NewReadInputRegistersRequest(address, quantity uint16) (*ReadInputRegistersRequest, error) {
	if err := checkQuantity(quantity, 1, 125); err != nil {
		return nil, err
	}
	return &ReadInputRegistersRequest{Address: address, Quantity: quantity}, nil
}

func (r *ReadInputRegistersRequest) FunctionCode() FunctionCode { return FnReadInputRegisters }

func (r *ReadInputRegistersRequest) ToBytes() []byte {
	return append([]byte{byte(FnReadInputRegisters)}, put(4, r.Address, r.Quantity)...)
}

func (r *ReadInputRegistersRequest) String() string {
	return fmt.Sprintf("ReadInputRegisters(address=%d, quantity=%d)", r.Address, r.Quantity)
}

// ReadInputRegistersRequestFromBytes decodes a PDU into a
// ReadInputRegistersRequest.
func ReadInputRegistersRequestFromBytes(buf []byte) (*ReadInputRegistersRequest, error) {
	if err := checkFunctionCode(buf, FnReadInputRegisters, 5); err != nil {
		return nil, err
	}
	return NewReadInputRegistersRequest(getUint16(buf, 1), getUint16(buf, 3))
}

func (r *ReadInputRegistersRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		resp, err := readRegistersResponseFromBytes(buf, FnReadInputRegisters, r.Quantity)
		if err != nil {
			return nil, err
		}
		return (*ReadInputRegistersResponse)(resp), nil
	})
}

// ReadInputRegistersResponse carries the register values returned by a
// ReadInputRegistersRequest.
type ReadInputRegistersResponse ReadHoldingRegistersResponse

func (r *ReadInputRegistersResponse) FunctionCode() FunctionCode { return FnReadInputRegisters }

func (r *ReadInputRegistersResponse) ToBytes() []byte {
	return readRegistersToBytes(FnReadInputRegisters, r.Values)
}

func (r *ReadInputRegistersResponse) String() string {
	return fmt.Sprintf("ReadInputRegistersResponse(values=%v)", r.Values)
}

func readRegistersToBytes(code FunctionCode, values []uint16) []byte {
	packed := registersToBytes(values)
	out := make([]byte, 2+len(packed))
	out[0] = byte(code)
	out[1] = byte(len(packed))
	copy(out[2:], packed)
	return out
}

func readRegistersResponseFromBytes(buf []byte, code FunctionCode, quantity uint16) (*ReadHoldingRegistersResponse, error) {
	if err := checkFunctionCode(buf, code, 2); err != nil {
		return nil, err
	}
	n := int(buf[1])
	if n != 2*int(quantity) {
		return nil, newError(KindInvalidResponseData, fmt.Sprintf("register response declares %d bytes, want %d for quantity %d", n, 2*quantity, quantity))
	}
	if len(buf) < 2+n {
		return nil, incompletePdu("register response declares %d data bytes, got %d", n, len(buf)-2)
	}
	return &ReadHoldingRegistersResponse{Values: bytesToRegisters(buf[2 : 2+n])}, nil
}
