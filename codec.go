package modbus

import "fmt"

// FunctionCode identifies a MODBUS request/response pair (spec §6).
type FunctionCode byte

const (
	FnReadCoils              FunctionCode = 0x01
	FnReadDiscreteInputs     FunctionCode = 0x02
	FnReadHoldingRegisters   FunctionCode = 0x03
	FnReadInputRegisters     FunctionCode = 0x04
	FnWriteSingleCoil        FunctionCode = 0x05
	FnWriteSingleRegister    FunctionCode = 0x06
	FnReadDiagnostics        FunctionCode = 0x08
	FnWriteMultipleCoils     FunctionCode = 0x0F
	FnWriteMultipleRegisters FunctionCode = 0x10
	FnReportSlaveId          FunctionCode = 0x11
	FnReadFileRecord         FunctionCode = 0x14
	FnWriteFileRecord        FunctionCode = 0x15
	FnReadFifo8              FunctionCode = 0x41
	FnWriteFifo8             FunctionCode = 0x42
	FnReadObject             FunctionCode = 0x43
	FnWriteObject            FunctionCode = 0x44
	FnReadMemory             FunctionCode = 0x45
	FnWriteMemory            FunctionCode = 0x46
	FnCommand                FunctionCode = 0x47

	// exceptionBit is OR-ed into a request's function code to form the
	// on-wire function code of its exception response (spec §6).
	exceptionBit FunctionCode = 0x80
)

func (c FunctionCode) String() string {
	return fmt.Sprintf("0x%02X", byte(c))
}

// Request is implemented by every supported function code's request type
// (spec §4.1). ToBytes/FromBytes round-trip the PDU (function code byte
// plus payload); CreateResponse demultiplexes a response buffer into
// either the paired Response type or an ExceptionResponse.
type Request interface {
	FunctionCode() FunctionCode
	// ToBytes serializes the request to a PDU: function code byte
	// followed by payload.
	ToBytes() []byte
	String() string
	// CreateResponse maps a response PDU buffer to either a concrete
	// Response or an ExceptionResponse, per spec §4.1.
	CreateResponse(buf []byte) (Response, error)
}

// Response is implemented by every supported function code's response
// type (spec §3). Immutable once constructed.
type Response interface {
	FunctionCode() FunctionCode
	ToBytes() []byte
	String() string
}

// invalidOptions builds a KindInvalidOptions *Error for a codec-level
// range check failure (spec §4.1).
func invalidOptions(format string, args ...interface{}) *Error {
	return newError(KindInvalidOptions, fmt.Sprintf(format, args...))
}

// incompletePdu builds a KindIncompletePdu *Error for a decoder that saw
// fewer bytes than required (spec §4.1).
func incompletePdu(format string, args ...interface{}) *Error {
	return newError(KindIncompletePdu, fmt.Sprintf(format, args...))
}

// invalidFunctionCode builds a KindInvalidFunctionCode *Error, e.g. when a
// from-bytes decoder sees a PDU whose function code byte does not match
// the expected request/response pair.
func invalidFunctionCode(got, want FunctionCode) *Error {
	return newError(KindInvalidFunctionCode, fmt.Sprintf("got function code %s, want %s", got, want))
}

// checkAddress validates address ∈ [0, 0xFFFF] (spec §4.1). uint16
// already bounds this; kept as a named check so callers read clearly and
// a future widened type stays protected.
func checkAddress(address uint16) *Error {
	return nil
}

// checkQuantity validates a quantity field against the function-code
// specific range in spec §4.1/§6.
func checkQuantity(quantity, min, max uint16) *Error {
	if quantity < min || quantity > max {
		return invalidOptions("quantity %d out of range [%d, %d]", quantity, min, max)
	}
	return nil
}

// checkByteCount validates byte count ∈ [1, 250] for object/memory/fifo
// operations (spec §4.1).
func checkByteCount(n int) *Error {
	if n < 1 || n > 250 {
		return invalidOptions("byte count %d out of range [1, 250]", n)
	}
	return nil
}

// createResponse is the shared implementation of Request.CreateResponse:
// it demultiplexes the response buffer into an ExceptionResponse (when the
// high bit of buf[0] is set) or calls decode to parse the paired response
// type (spec §4.1).
func createResponse(buf []byte, decode func([]byte) (Response, error)) (Response, error) {
	if len(buf) == 0 {
		return nil, incompletePdu("empty response buffer")
	}
	if IsExceptionBuffer(buf) {
		ex, err := decodeException(buf)
		if err != nil {
			return nil, err
		}
		return ex, nil
	}
	return decode(buf)
}

// checkFunctionCode validates that buf starts with the expected function
// code byte and has at least minLen bytes.
func checkFunctionCode(buf []byte, want FunctionCode, minLen int) *Error {
	if len(buf) < 1 {
		return incompletePdu("empty pdu, want function code %s", want)
	}
	if FunctionCode(buf[0]) != want {
		return invalidFunctionCode(FunctionCode(buf[0]), want)
	}
	if len(buf) < minLen {
		return incompletePdu("pdu for %s is %d bytes, want at least %d", want, len(buf), minLen)
	}
	return nil
}
