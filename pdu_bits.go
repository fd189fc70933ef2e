package modbus

import "fmt"

// ReadCoilsRequest reads 1 to 2000 contiguous coil states starting at
// Address (function 0x01, spec §6).
type ReadCoilsRequest struct {
	Address  uint16
	Quantity uint16
}

// NewReadCoilsRequest validates and constructs a ReadCoilsRequest.
func NewReadCoilsRequest(address, quantity uint16) (*ReadCoilsRequest, error) {
	if err := checkQuantity(quantity, 1, 2000); err != nil {
		return nil, err
	}
	return &ReadCoilsRequest{Address: address, Quantity: quantity}, nil
}

func (r *ReadCoilsRequest) FunctionCode() FunctionCode { return FnReadCoils }

func (r *ReadCoilsRequest) ToBytes() []byte {
	return append([]byte{byte(FnReadCoils)}, put(4, r.Address, r.Quantity)...)
}

func (r *ReadCoilsRequest) String() string {
	return fmt.Sprintf("ReadCoils(address=%d, quantity=%d)", r.Address, r.Quantity)
}

// ReadCoilsRequestFromBytes decodes a PDU into a ReadCoilsRequest.
func ReadCoilsRequestFromBytes(buf []byte) (*ReadCoilsRequest, error) {
	if err := checkFunctionCode(buf, FnReadCoils, 5); err != nil {
		return nil, err
	}
	return NewReadCoilsRequest(getUint16(buf, 1), getUint16(buf, 3))
}

func (r *ReadCoilsRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return readBitsResponseFromBytes(buf, FnReadCoils, r.Quantity)
	})
}

// ReadCoilsResponse carries the coil values returned by a ReadCoilsRequest.
type ReadCoilsResponse struct {
	Values []bool
}

func (r *ReadCoilsResponse) FunctionCode() FunctionCode { return FnReadCoils }

func (r *ReadCoilsResponse) ToBytes() []byte {
	return readBitsToBytes(FnReadCoils, r.Values)
}

func (r *ReadCoilsResponse) String() string {
	return fmt.Sprintf("ReadCoilsResponse(values=%v)", r.Values)
}

// ReadDiscreteInputsRequest reads 1 to 2000 contiguous discrete inputs
// starting at Address (function 0x02, spec §6).
type ReadDiscreteInputsRequest struct {
	Address  uint16
	Quantity uint16
}

// NewReadDiscreteInputsRequest validates and constructs a
// ReadDiscreteInputsRequest.
func NewReadDiscreteInputsRequest(address, quantity uint16) (*ReadDiscreteInputsRequest, error) {
	if err := checkQuantity(quantity, 1, 2000); err != nil {
		return nil, err
	}
	return &ReadDiscreteInputsRequest{Address: address, Quantity: quantity}, nil
}

func (r *ReadDiscreteInputsRequest) FunctionCode() FunctionCode { return FnReadDiscreteInputs }

func (r *ReadDiscreteInputsRequest) ToBytes() []byte {
	return append([]byte{byte(FnReadDiscreteInputs)}, put(4, r.Address, r.Quantity)...)
}

func (r *ReadDiscreteInputsRequest) String() string {
	return fmt.Sprintf("ReadDiscreteInputs(address=%d, quantity=%d)", r.Address, r.Quantity)
}

// ReadDiscreteInputsRequestFromBytes decodes a PDU into a
// ReadDiscreteInputsRequest.
func ReadDiscreteInputsRequestFromBytes(buf []byte) (*ReadDiscreteInputsRequest, error) {
	if err := checkFunctionCode(buf, FnReadDiscreteInputs, 5); err != nil {
		return nil, err
	}
	return NewReadDiscreteInputsRequest(getUint16(buf, 1), getUint16(buf, 3))
}

func (r *ReadDiscreteInputsRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return readDiscreteInputsResponseFromBytes(buf, r.Quantity)
	})
}

// ReadDiscreteInputsResponse carries the discrete input values returned by
// a ReadDiscreteInputsRequest.
type ReadDiscreteInputsResponse struct {
	Values []bool
}

func (r *ReadDiscreteInputsResponse) FunctionCode() FunctionCode { return FnReadDiscreteInputs }

func (r *ReadDiscreteInputsResponse) ToBytes() []byte {
	return readBitsToBytes(FnReadDiscreteInputs, r.Values)
}

func (r *ReadDiscreteInputsResponse) String() string {
	return fmt.Sprintf("ReadDiscreteInputsResponse(values=%v)", r.Values)
}

// readBitsToBytes encodes a N(1) bits(ceil(qty/8)) response PDU (spec §6).
func readBitsToBytes(code FunctionCode, values []bool) []byte {
	packed := boolsToBytes(values)
	out := make([]byte, 2+len(packed))
	out[0] = byte(code)
	out[1] = byte(len(packed))
	copy(out[2:], packed)
	return out
}

func readBitsResponseFromBytes(buf []byte, code FunctionCode, quantity uint16) (*ReadCoilsResponse, error) {
	if err := checkFunctionCode(buf, code, 2); err != nil {
		return nil, err
	}
	n := int(buf[1])
	if err := checkByteCount(n); err != nil {
		return nil, err
	}
	if len(buf) < 2+n {
		return nil, incompletePdu("bit response declares %d data bytes, got %d", n, len(buf)-2)
	}
	return &ReadCoilsResponse{Values: bytesToBools(quantity, buf[2:2+n])}, nil
}

func readDiscreteInputsResponseFromBytes(buf []byte, quantity uint16) (*ReadDiscreteInputsResponse, error) {
	if err := checkFunctionCode(buf, FnReadDiscreteInputs, 2); err != nil {
		return nil, err
	}
	n := int(buf[1])
	if err := checkByteCount(n); err != nil {
		return nil, err
	}
	if len(buf) < 2+n {
		return nil, incompletePdu("bit response declares %d data bytes, got %d", n, len(buf)-2)
	}
	return &ReadDiscreteInputsResponse{Values: bytesToBools(quantity, buf[2:2+n])}, nil
}
