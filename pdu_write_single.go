package modbus

import "fmt"

// WriteSingleCoilRequest sets the coil at Address to Value (function 0x05,
// spec §6). On the wire Value is 0xFF00 (true) or 0x0000 (false).
type WriteSingleCoilRequest struct {
	Address uint16
	Value   bool
}

func NewWriteSingleCoilRequest(address uint16, value bool) (*WriteSingleCoilRequest, error) {
	return &WriteSingleCoilRequest{Address: address, Value: value}, nil
}

func (r *WriteSingleCoilRequest) FunctionCode() FunctionCode { return FnWriteSingleCoil }

func (r *WriteSingleCoilRequest) ToBytes() []byte {
	return append([]byte{byte(FnWriteSingleCoil)}, put(4, r.Address, r.Value)...)
}

func (r *WriteSingleCoilRequest) String() string {
	return fmt.Sprintf("WriteSingleCoil(address=%d, value=%v)", r.Address, r.Value)
}

// WriteSingleCoilRequestFromBytes decodes a PDU into a
// WriteSingleCoilRequest.
func WriteSingleCoilRequestFromBytes(buf []byte) (*WriteSingleCoilRequest, error) {
	if err := checkFunctionCode(buf, FnWriteSingleCoil, 5); err != nil {
		return nil, err
	}
	value, err := decodeCoilValue(getUint16(buf, 3))
	if err != nil {
		return nil, err
	}
	return &WriteSingleCoilRequest{Address: getUint16(buf, 1), Value: value}, nil
}

func (r *WriteSingleCoilRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return writeSingleCoilResponseFromBytes(buf)
	})
}

// WriteSingleCoilResponse echoes the address and value written.
type WriteSingleCoilResponse struct {
	Address uint16
	Value   bool
}

func (r *WriteSingleCoilResponse) FunctionCode() FunctionCode { return FnWriteSingleCoil }

func (r *WriteSingleCoilResponse) ToBytes() []byte {
	return append([]byte{byte(FnWriteSingleCoil)}, put(4, r.Address, r.Value)...)
}

func (r *WriteSingleCoilResponse) String() string {
	return fmt.Sprintf("WriteSingleCoilResponse(address=%d, value=%v)", r.Address, r.Value)
}

func writeSingleCoilResponseFromBytes(buf []byte) (*WriteSingleCoilResponse, error) {
	if err := checkFunctionCode(buf, FnWriteSingleCoil, 5); err != nil {
		return nil, err
	}
	value, err := decodeCoilValue(getUint16(buf, 3))
	if err != nil {
		return nil, err
	}
	return &WriteSingleCoilResponse{Address: getUint16(buf, 1), Value: value}, nil
}

func decodeCoilValue(wire uint16) (bool, *Error) {
	switch wire {
	case 0xFF00:
		return true, nil
	case 0x0000:
		return false, nil
	default:
		return false, invalidOptions("coil value 0x%04X is neither 0xFF00 nor 0x0000", wire)
	}
}

// WriteSingleRegisterRequest writes Value to the holding register at
// Address (function 0x06, spec §6).
type WriteSingleRegisterRequest struct {
	Address uint16
	Value   uint16
}

func NewWriteSingleRegisterRequest(address, value uint16) (*WriteSingleRegisterRequest, error) {
	return &WriteSingleRegisterRequest{Address: address, Value: value}, nil
}

func (r *WriteSingleRegisterRequest) FunctionCode() FunctionCode { return FnWriteSingleRegister }

func (r *WriteSingleRegisterRequest) ToBytes() []byte {
	return append([]byte{byte(FnWriteSingleRegister)}, put(4, r.Address, r.Value)...)
}

func (r *WriteSingleRegisterRequest) String() string {
	return fmt.Sprintf("WriteSingleRegister(address=%d, value=%d)", r.Address, r.Value)
}

// WriteSingleRegisterRequestFromBytes decodes a PDU into a
// WriteSingleRegisterRequest.
func WriteSingleRegisterRequestFromBytes(buf []byte) (*WriteSingleRegisterRequest, error) {
	if err := checkFunctionCode(buf, FnWriteSingleRegister, 5); err != nil {
		return nil, err
	}
	return &WriteSingleRegisterRequest{Address: getUint16(buf, 1), Value: getUint16(buf, 3)}, nil
}

func (r *WriteSingleRegisterRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return writeSingleRegisterResponseFromBytes(buf)
	})
}

// WriteSingleRegisterResponse echoes the address and value written.
type WriteSingleRegisterResponse struct {
	Address uint16
	Value   uint16
}

func (r *WriteSingleRegisterResponse) FunctionCode() FunctionCode { return FnWriteSingleRegister }

func (r *WriteSingleRegisterResponse) ToBytes() []byte {
	return append([]byte{byte(FnWriteSingleRegister)}, put(4, r.Address, r.Value)...)
}

func (r *WriteSingleRegisterResponse) String() string {
	return fmt.Sprintf("WriteSingleRegisterResponse(address=%d, value=%d)", r.Address, r.Value)
}

func writeSingleRegisterResponseFromBytes(buf []byte) (*WriteSingleRegisterResponse, error) {
	if err := checkFunctionCode(buf, FnWriteSingleRegister, 5); err != nil {
		return nil, err
	}
	return &WriteSingleRegisterResponse{Address: getUint16(buf, 1), Value: getUint16(buf, 3)}, nil
}
