package modbus

import "fmt"

// ReadFifo8Request reads up to Max queued bytes from the FIFO identified by
// ID (function 0x41, a vendor-extension code, spec §4.1/§6).
type ReadFifo8Request struct {
	ID  byte
	Max byte
}

func NewReadFifo8Request(id, max byte) (*ReadFifo8Request, error) {
	return &ReadFifo8Request{ID: id, Max: max}, nil
}

func (r *ReadFifo8Request) FunctionCode() FunctionCode { return FnReadFifo8 }

func (r *ReadFifo8Request) ToBytes() []byte {
	return []byte{byte(FnReadFifo8), r.ID, r.Max}
}

func (r *ReadFifo8Request) String() string {
	return fmt.Sprintf("ReadFifo8(id=%d, max=%d)", r.ID, r.Max)
}

// ReadFifo8RequestFromBytes decodes a PDU into a ReadFifo8Request.
func ReadFifo8RequestFromBytes(buf []byte) (*ReadFifo8Request, error) {
	if err := checkFunctionCode(buf, FnReadFifo8, 3); err != nil {
		return nil, err
	}
	return NewReadFifo8Request(buf[1], buf[2])
}

func (r *ReadFifo8Request) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return readFifo8ResponseFromBytes(buf)
	})
}

// ReadFifo8Response carries the FIFO status and the dequeued bytes.
type ReadFifo8Response struct {
	Status byte
	Data   []byte
}

func (r *ReadFifo8Response) FunctionCode() FunctionCode { return FnReadFifo8 }

func (r *ReadFifo8Response) ToBytes() []byte {
	buf := make([]byte, 3+len(r.Data))
	buf[0] = byte(FnReadFifo8)
	buf[1] = r.Status
	buf[2] = byte(len(r.Data))
	copy(buf[3:], r.Data)
	return buf
}

func (r *ReadFifo8Response) String() string {
	return fmt.Sprintf("ReadFifo8Response(status=%d, data=%d bytes)", r.Status, len(r.Data))
}

func readFifo8ResponseFromBytes(buf []byte) (*ReadFifo8Response, error) {
	if err := checkFunctionCode(buf, FnReadFifo8, 3); err != nil {
		return nil, err
	}
	n := int(buf[2])
	if len(buf) < 3+n {
		return nil, incompletePdu("read fifo8 declares %d data bytes, got %d", n, len(buf)-3)
	}
	return &ReadFifo8Response{Status: buf[1], Data: append([]byte(nil), buf[3:3+n]...)}, nil
}

// WriteFifo8Request enqueues Data into the FIFO identified by ID (function
// 0x42, spec §4.1/§6, §9 open question on the typo'd 0x42 registry alias).
type WriteFifo8Request struct {
	ID   byte
	Data []byte
}

func NewWriteFifo8Request(id byte, data []byte) (*WriteFifo8Request, error) {
	if err := checkByteCount(len(data)); err != nil {
		return nil, err
	}
	return &WriteFifo8Request{ID: id, Data: data}, nil
}

func (r *WriteFifo8Request) FunctionCode() FunctionCode { return FnWriteFifo8 }

func (r *WriteFifo8Request) ToBytes() []byte {
	buf := make([]byte, 3+len(r.Data))
	buf[0] = byte(FnWriteFifo8)
	buf[1] = r.ID
	buf[2] = byte(len(r.Data))
	copy(buf[3:], r.Data)
	return buf
}

func (r *WriteFifo8Request) String() string {
	return fmt.Sprintf("WriteFifo8(id=%d, data=%d bytes)", r.ID, len(r.Data))
}

// WriteFifo8RequestFromBytes decodes a PDU into a WriteFifo8Request.
func WriteFifo8RequestFromBytes(buf []byte) (*WriteFifo8Request, error) {
	if err := checkFunctionCode(buf, FnWriteFifo8, 3); err != nil {
		return nil, err
	}
	n := int(buf[2])
	if len(buf) < 3+n {
		return nil, incompletePdu("write fifo8 declares %d data bytes, got %d", n, len(buf)-3)
	}
	return NewWriteFifo8Request(buf[1], buf[3:3+n])
}

func (r *WriteFifo8Request) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return writeFifo8ResponseFromBytes(buf)
	})
}

// WriteFifo8Response reports the number of bytes accepted. The source this
// spec was distilled from names the field "Code"; whether 0 means success
// exclusively is left unspecified by spec §9 — this codec treats Count as
// a plain byte count with no special-cased value.
type WriteFifo8Response struct {
	Count byte
}

func (r *WriteFifo8Response) FunctionCode() FunctionCode { return FnWriteFifo8 }

func (r *WriteFifo8Response) ToBytes() []byte {
	return []byte{byte(FnWriteFifo8), r.Count}
}

func (r *WriteFifo8Response) String() string {
	return fmt.Sprintf("WriteFifo8Response(count=%d)", r.Count)
}

func writeFifo8ResponseFromBytes(buf []byte) (*WriteFifo8Response, error) {
	if err := checkFunctionCode(buf, FnWriteFifo8, 2); err != nil {
		return nil, err
	}
	return &WriteFifo8Response{Count: buf[1]}, nil
}

// ReadObjectRequest reads the vendor object identified by ID (function
// 0x43, spec §4.1/§6).
type ReadObjectRequest struct {
	ID byte
}

func NewReadObjectRequest(id byte) (*ReadObjectRequest, error) {
	return &ReadObjectRequest{ID: id}, nil
}

func (r *ReadObjectRequest) FunctionCode() FunctionCode { return FnReadObject }

func (r *ReadObjectRequest) ToBytes() []byte {
	return []byte{byte(FnReadObject), r.ID}
}

func (r *ReadObjectRequest) String() string {
	return fmt.Sprintf("ReadObject(id=%d)", r.ID)
}

// ReadObjectRequestFromBytes decodes a PDU into a ReadObjectRequest.
func ReadObjectRequestFromBytes(buf []byte) (*ReadObjectRequest, error) {
	if err := checkFunctionCode(buf, FnReadObject, 2); err != nil {
		return nil, err
	}
	return NewReadObjectRequest(buf[1])
}

func (r *ReadObjectRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return readObjectResponseFromBytes(buf)
	})
}

// ReadObjectResponse carries the object's raw data.
type ReadObjectResponse struct {
	Data []byte
}

func (r *ReadObjectResponse) FunctionCode() FunctionCode { return FnReadObject }

func (r *ReadObjectResponse) ToBytes() []byte {
	buf := make([]byte, 2+len(r.Data))
	buf[0] = byte(FnReadObject)
	buf[1] = byte(len(r.Data))
	copy(buf[2:], r.Data)
	return buf
}

func (r *ReadObjectResponse) String() string {
	return fmt.Sprintf("ReadObjectResponse(data=%d bytes)", len(r.Data))
}

func readObjectResponseFromBytes(buf []byte) (*ReadObjectResponse, error) {
	if err := checkFunctionCode(buf, FnReadObject, 2); err != nil {
		return nil, err
	}
	n := int(buf[1])
	if len(buf) < 2+n {
		return nil, incompletePdu("read object declares %d data bytes, got %d", n, len(buf)-2)
	}
	return &ReadObjectResponse{Data: append([]byte(nil), buf[2:2+n]...)}, nil
}

// WriteObjectRequest writes Data to the vendor object identified by ID
// (function 0x44, spec §4.1/§6).
type WriteObjectRequest struct {
	ID   byte
	Data []byte
}

func NewWriteObjectRequest(id byte, data []byte) (*WriteObjectRequest, error) {
	if err := checkByteCount(len(data)); err != nil {
		return nil, err
	}
	return &WriteObjectRequest{ID: id, Data: data}, nil
}

func (r *WriteObjectRequest) FunctionCode() FunctionCode { return FnWriteObject }

func (r *WriteObjectRequest) ToBytes() []byte {
	buf := make([]byte, 3+len(r.Data))
	buf[0] = byte(FnWriteObject)
	buf[1] = r.ID
	buf[2] = byte(len(r.Data))
	copy(buf[3:], r.Data)
	return buf
}

func (r *WriteObjectRequest) String() string {
	return fmt.Sprintf("WriteObject(id=%d, data=%d bytes)", r.ID, len(r.Data))
}

// WriteObjectRequestFromBytes decodes a PDU into a WriteObjectRequest.
func WriteObjectRequestFromBytes(buf []byte) (*WriteObjectRequest, error) {
	if err := checkFunctionCode(buf, FnWriteObject, 3); err != nil {
		return nil, err
	}
	n := int(buf[2])
	if len(buf) < 3+n {
		return nil, incompletePdu("write object declares %d data bytes, got %d", n, len(buf)-3)
	}
	return NewWriteObjectRequest(buf[1], buf[3:3+n])
}

func (r *WriteObjectRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return writeObjectResponseFromBytes(buf)
	})
}

// WriteObjectResponse reports a vendor status byte.
type WriteObjectResponse struct {
	Status byte
}

func (r *WriteObjectResponse) FunctionCode() FunctionCode { return FnWriteObject }

func (r *WriteObjectResponse) ToBytes() []byte {
	return []byte{byte(FnWriteObject), r.Status}
}

func (r *WriteObjectResponse) String() string {
	return fmt.Sprintf("WriteObjectResponse(status=%d)", r.Status)
}

func writeObjectResponseFromBytes(buf []byte) (*WriteObjectResponse, error) {
	if err := checkFunctionCode(buf, FnWriteObject, 2); err != nil {
		return nil, err
	}
	return &WriteObjectResponse{Status: buf[1]}, nil
}

// ReadMemoryRequest reads Count bytes of raw memory starting at Address
// (function 0x45, spec §4.1/§6).
type ReadMemoryRequest struct {
	Address uint16
	Count   byte
}

func NewReadMemoryRequest(address uint16, count byte) (*ReadMemoryRequest, error) {
	if err := checkByteCount(int(count)); err != nil {
		return nil, err
	}
	return &ReadMemoryRequest{Address: address, Count: count}, nil
}

func (r *ReadMemoryRequest) FunctionCode() FunctionCode { return FnReadMemory }

func (r *ReadMemoryRequest) ToBytes() []byte {
	buf := make([]byte, 4)
	buf[0] = byte(FnReadMemory)
	copy(buf[1:], put(2, r.Address))
	buf[3] = r.Count
	return buf
}

func (r *ReadMemoryRequest) String() string {
	return fmt.Sprintf("ReadMemory(address=%d, count=%d)", r.Address, r.Count)
}

// ReadMemoryRequestFromBytes decodes a PDU into a ReadMemoryRequest.
func ReadMemoryRequestFromBytes(buf []byte) (*ReadMemoryRequest, error) {
	if err := checkFunctionCode(buf, FnReadMemory, 4); err != nil {
		return nil, err
	}
	return NewReadMemoryRequest(getUint16(buf, 1), buf[3])
}

func (r *ReadMemoryRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return readMemoryResponseFromBytes(buf, r.Count)
	})
}

// ReadMemoryResponse carries the raw memory bytes. Its length is implied
// by the request's Count, since the wire layout has no length prefix
// (spec §6).
type ReadMemoryResponse struct {
	Data []byte
}

func (r *ReadMemoryResponse) FunctionCode() FunctionCode { return FnReadMemory }

func (r *ReadMemoryResponse) ToBytes() []byte {
	return append([]byte{byte(FnReadMemory)}, r.Data...)
}

func (r *ReadMemoryResponse) String() string {
	return fmt.Sprintf("ReadMemoryResponse(data=%d bytes)", len(r.Data))
}

func readMemoryResponseFromBytes(buf []byte, count byte) (*ReadMemoryResponse, error) {
	if err := checkFunctionCode(buf, FnReadMemory, 1+int(count)); err != nil {
		return nil, err
	}
	return &ReadMemoryResponse{Data: append([]byte(nil), buf[1:1+int(count)]...)}, nil
}

// WriteMemoryRequest writes Data to raw memory starting at Address
// (function 0x46, spec §4.1/§6).
type WriteMemoryRequest struct {
	Address uint16
	Data    []byte
}

func NewWriteMemoryRequest(address uint16, data []byte) (*WriteMemoryRequest, error) {
	if err := checkByteCount(len(data)); err != nil {
		return nil, err
	}
	return &WriteMemoryRequest{Address: address, Data: data}, nil
}

func (r *WriteMemoryRequest) FunctionCode() FunctionCode { return FnWriteMemory }

func (r *WriteMemoryRequest) ToBytes() []byte {
	buf := make([]byte, 3+len(r.Data))
	buf[0] = byte(FnWriteMemory)
	copy(buf[1:], put(2, r.Address))
	copy(buf[3:], r.Data)
	return buf
}

func (r *WriteMemoryRequest) String() string {
	return fmt.Sprintf("WriteMemory(address=%d, data=%d bytes)", r.Address, len(r.Data))
}

// WriteMemoryRequestFromBytes decodes a PDU into a WriteMemoryRequest.
// The data length is taken as whatever remains after the address field,
// since the wire layout carries no explicit byte count (spec §6).
func WriteMemoryRequestFromBytes(buf []byte) (*WriteMemoryRequest, error) {
	if err := checkFunctionCode(buf, FnWriteMemory, 4); err != nil {
		return nil, err
	}
	return NewWriteMemoryRequest(getUint16(buf, 1), buf[3:])
}

func (r *WriteMemoryRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return writeMemoryResponseFromBytes(buf)
	})
}

// WriteMemoryResponse reports a vendor status byte.
type WriteMemoryResponse struct {
	Status byte
}

func (r *WriteMemoryResponse) FunctionCode() FunctionCode { return FnWriteMemory }

func (r *WriteMemoryResponse) ToBytes() []byte {
	return []byte{byte(FnWriteMemory), r.Status}
}

func (r *WriteMemoryResponse) String() string {
	return fmt.Sprintf("WriteMemoryResponse(status=%d)", r.Status)
}

func writeMemoryResponseFromBytes(buf []byte) (*WriteMemoryResponse, error) {
	if err := checkFunctionCode(buf, FnWriteMemory, 2); err != nil {
		return nil, err
	}
	return &WriteMemoryResponse{Status: buf[1]}, nil
}

// CommandRequest sends a vendor command identified by ID with opaque Data
// (function 0x47, spec §4.1/§6). This is also the PDU shape the Tunnel
// transport (C5) piggybacks SLAVE_COMMAND polls on.
type CommandRequest struct {
	ID   byte
	Data []byte
}

func NewCommandRequest(id byte, data []byte) (*CommandRequest, error) {
	return &CommandRequest{ID: id, Data: data}, nil
}

func (r *CommandRequest) FunctionCode() FunctionCode { return FnCommand }

func (r *CommandRequest) ToBytes() []byte {
	buf := make([]byte, 2+len(r.Data))
	buf[0] = byte(FnCommand)
	buf[1] = r.ID
	copy(buf[2:], r.Data)
	return buf
}

func (r *CommandRequest) String() string {
	return fmt.Sprintf("Command(id=%d, data=%d bytes)", r.ID, len(r.Data))
}

// CommandRequestFromBytes decodes a PDU into a CommandRequest.
func CommandRequestFromBytes(buf []byte) (*CommandRequest, error) {
	if err := checkFunctionCode(buf, FnCommand, 2); err != nil {
		return nil, err
	}
	return NewCommandRequest(buf[1], append([]byte(nil), buf[2:]...))
}

func (r *CommandRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return commandResponseFromBytes(buf)
	})
}

// CommandResponse echoes the command id with the vendor's reply data.
type CommandResponse struct {
	ID   byte
	Data []byte
}

func (r *CommandResponse) FunctionCode() FunctionCode { return FnCommand }

func (r *CommandResponse) ToBytes() []byte {
	buf := make([]byte, 2+len(r.Data))
	buf[0] = byte(FnCommand)
	buf[1] = r.ID
	copy(buf[2:], r.Data)
	return buf
}

func (r *CommandResponse) String() string {
	return fmt.Sprintf("CommandResponse(id=%d, data=%d bytes)", r.ID, len(r.Data))
}

func commandResponseFromBytes(buf []byte) (*CommandResponse, error) {
	if err := checkFunctionCode(buf, FnCommand, 2); err != nil {
		return nil, err
	}
	return &CommandResponse{ID: buf[1], Data: append([]byte(nil), buf[2:]...)}, nil
}
