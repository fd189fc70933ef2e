package modbus

import "fmt"

// WriteMultipleCoilsRequest sets the coils starting at Address to Values
// (function 0x0F, spec §6). Values must be 1 to 1968 entries.
type WriteMultipleCoilsRequest struct {
	Address uint16
	Values  []bool
}

func NewWriteMultipleCoilsRequest(address uint16, values []bool) (*WriteMultipleCoilsRequest, error) {
	if err := checkQuantity(uint16(len(values)), 1, 1968); err != nil {
		return nil, err
	}
	return &WriteMultipleCoilsRequest{Address: address, Values: values}, nil
}

func (r *WriteMultipleCoilsRequest) FunctionCode() FunctionCode { return FnWriteMultipleCoils }

func (r *WriteMultipleCoilsRequest) ToBytes() []byte {
	packed := boolsToBytes(r.Values)
	buf := make([]byte, 6+len(packed))
	buf[0] = byte(FnWriteMultipleCoils)
	rest := put(5, r.Address, uint16(len(r.Values)), byte(len(packed)))
	copy(buf[1:], rest)
	copy(buf[6:], packed)
	return buf
}

func (r *WriteMultipleCoilsRequest) String() string {
	return fmt.Sprintf("WriteMultipleCoils(address=%d, quantity=%d)", r.Address, len(r.Values))
}

// WriteMultipleCoilsRequestFromBytes decodes a PDU into a
// WriteMultipleCoilsRequest.
func WriteMultipleCoilsRequestFromBytes(buf []byte) (*WriteMultipleCoilsRequest, error) {
	if err := checkFunctionCode(buf, FnWriteMultipleCoils, 6); err != nil {
		return nil, err
	}
	quantity := getUint16(buf, 3)
	n := int(buf[5])
	if err := checkByteCount(n); err != nil {
		return nil, err
	}
	if n != byteCount(quantity) {
		return nil, invalidOptions("byte count %d does not match quantity %d", n, quantity)
	}
	if len(buf) < 6+n {
		return nil, incompletePdu("write multiple coils declares %d data bytes, got %d", n, len(buf)-6)
	}
	return NewWriteMultipleCoilsRequest(getUint16(buf, 1), bytesToBools(quantity, buf[6:6+n]))
}

func (r *WriteMultipleCoilsRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return writeMultipleAckFromBytes(buf, FnWriteMultipleCoils)
	})
}

// WriteMultipleRegistersRequest writes Values to the holding registers
// starting at Address (function 0x10, spec §6). Values must be 1 to 123
// entries.
type WriteMultipleRegistersRequest struct {
	Address uint16
	Values  []uint16
}

func NewWriteMultipleRegistersRequest(address uint16, values []uint16) (*WriteMultipleRegistersRequest, error) {
	if err := checkQuantity(uint16(len(values)), 1, 123); err != nil {
		return nil, err
	}
	return &WriteMultipleRegistersRequest{Address: address, Values: values}, nil
}

func (r *WriteMultipleRegistersRequest) FunctionCode() FunctionCode { return FnWriteMultipleRegisters }

func (r *WriteMultipleRegistersRequest) ToBytes() []byte {
	packed := registersToBytes(r.Values)
	buf := make([]byte, 6+len(packed))
	buf[0] = byte(FnWriteMultipleRegisters)
	rest := put(5, r.Address, uint16(len(r.Values)), byte(len(packed)))
	copy(buf[1:], rest)
	copy(buf[6:], packed)
	return buf
}

func (r *WriteMultipleRegistersRequest) String() string {
	return fmt.Sprintf("WriteMultipleRegisters(address=%d, quantity=%d)", r.Address, len(r.Values))
}

// WriteMultipleRegistersRequestFromBytes decodes a PDU into a
// WriteMultipleRegistersRequest.
func WriteMultipleRegistersRequestFromBytes(buf []byte) (*WriteMultipleRegistersRequest, error) {
	if err := checkFunctionCode(buf, FnWriteMultipleRegisters, 6); err != nil {
		return nil, err
	}
	quantity := getUint16(buf, 3)
	n := int(buf[5])
	if err := checkByteCount(n); err != nil {
		return nil, err
	}
	if n != 2*int(quantity) {
		return nil, invalidOptions("byte count %d does not match quantity %d", n, quantity)
	}
	if len(buf) < 6+n {
		return nil, incompletePdu("write multiple registers declares %d data bytes, got %d", n, len(buf)-6)
	}
	return NewWriteMultipleRegistersRequest(getUint16(buf, 1), bytesToRegisters(buf[6:6+n]))
}

func (r *WriteMultipleRegistersRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return writeMultipleAckFromBytes(buf, FnWriteMultipleRegisters)
	})
}

// WriteMultipleAckResponse is the shared addr(2) qty(2) response shape for
// WriteMultipleCoils and WriteMultipleRegisters (spec §6).
type WriteMultipleAckResponse struct {
	Fn       FunctionCode
	Address  uint16
	Quantity uint16
}

func (r *WriteMultipleAckResponse) FunctionCode() FunctionCode { return r.Fn }

func (r *WriteMultipleAckResponse) ToBytes() []byte {
	return append([]byte{byte(r.Fn)}, put(4, r.Address, r.Quantity)...)
}

func (r *WriteMultipleAckResponse) String() string {
	return fmt.Sprintf("WriteMultipleAckResponse(fn=%s, address=%d, quantity=%d)", r.Fn, r.Address, r.Quantity)
}

func writeMultipleAckFromBytes(buf []byte, fn FunctionCode) (*WriteMultipleAckResponse, error) {
	if err := checkFunctionCode(buf, fn, 5); err != nil {
		return nil, err
	}
	return &WriteMultipleAckResponse{Fn: fn, Address: getUint16(buf, 1), Quantity: getUint16(buf, 3)}, nil
}
