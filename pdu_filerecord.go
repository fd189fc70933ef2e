package modbus

import "fmt"

// fileRecordRefType is the reference type byte MODBUS mandates for every
// file record sub-request (always 6).
const fileRecordRefType = 6

// ReadFileRecordRequest reads RecordLength registers from RecordNumber
// within FileNumber (function 0x14, spec §6). The MODBUS standard allows
// a batch of sub-requests per PDU; this codec supports the common single
// sub-request case (spec's SUPPLEMENTED FEATURES note in SPEC_FULL.md).
type ReadFileRecordRequest struct {
	FileNumber   uint16
	RecordNumber uint16
	RecordLength uint16
}

func NewReadFileRecordRequest(fileNumber, recordNumber, recordLength uint16) (*ReadFileRecordRequest, error) {
	if err := checkQuantity(recordLength, 1, 122); err != nil {
		return nil, err
	}
	return &ReadFileRecordRequest{FileNumber: fileNumber, RecordNumber: recordNumber, RecordLength: recordLength}, nil
}

func (r *ReadFileRecordRequest) FunctionCode() FunctionCode { return FnReadFileRecord }

func (r *ReadFileRecordRequest) ToBytes() []byte {
	buf := make([]byte, 2+7)
	buf[0] = byte(FnReadFileRecord)
	buf[1] = 7
	buf[2] = fileRecordRefType
	copy(buf[3:], put(6, r.FileNumber, r.RecordNumber, r.RecordLength))
	return buf
}

func (r *ReadFileRecordRequest) String() string {
	return fmt.Sprintf("ReadFileRecord(file=%d, record=%d, length=%d)", r.FileNumber, r.RecordNumber, r.RecordLength)
}

// ReadFileRecordRequestFromBytes decodes a single-sub-request PDU into a
// ReadFileRecordRequest.
func ReadFileRecordRequestFromBytes(buf []byte) (*ReadFileRecordRequest, error) {
	if err := checkFunctionCode(buf, FnReadFileRecord, 9); err != nil {
		return nil, err
	}
	if buf[2] != fileRecordRefType {
		return nil, invalidOptions("file record reference type %d, want %d", buf[2], fileRecordRefType)
	}
	return NewReadFileRecordRequest(getUint16(buf, 3), getUint16(buf, 5), getUint16(buf, 7))
}

func (r *ReadFileRecordRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return readFileRecordResponseFromBytes(buf, r.RecordLength)
	})
}

// ReadFileRecordResponse carries the RecordLength registers decoded from
// the single sub-response (spec §6, per-standard layout).
type ReadFileRecordResponse struct {
	Values []uint16
}

func (r *ReadFileRecordResponse) FunctionCode() FunctionCode { return FnReadFileRecord }

func (r *ReadFileRecordResponse) ToBytes() []byte {
	data := registersToBytes(r.Values)
	subLen := 1 + len(data)
	buf := make([]byte, 3+len(data))
	buf[0] = byte(FnReadFileRecord)
	buf[1] = byte(subLen)
	buf[2] = fileRecordRefType
	copy(buf[3:], data)
	return buf
}

func (r *ReadFileRecordResponse) String() string {
	return fmt.Sprintf("ReadFileRecordResponse(values=%v)", r.Values)
}

func readFileRecordResponseFromBytes(buf []byte, recordLength uint16) (*ReadFileRecordResponse, error) {
	if err := checkFunctionCode(buf, FnReadFileRecord, 3); err != nil {
		return nil, err
	}
	subLen := int(buf[1])
	if len(buf) < 2+subLen {
		return nil, incompletePdu("file record response declares %d bytes, got %d", subLen, len(buf)-2)
	}
	if buf[2] != fileRecordRefType {
		return nil, newError(KindInvalidResponseData, fmt.Sprintf("file record response reference type %d, want %d", buf[2], fileRecordRefType))
	}
	data := buf[3 : 2+subLen]
	if len(data) != 2*int(recordLength) {
		return nil, newError(KindInvalidResponseData, fmt.Sprintf("file record response carries %d bytes, want %d for length %d", len(data), 2*recordLength, recordLength))
	}
	return &ReadFileRecordResponse{Values: bytesToRegisters(data)}, nil
}

// WriteFileRecordRequest writes Values to RecordNumber within FileNumber
// (function 0x15, spec §6). Single sub-request, as ReadFileRecordRequest.
type WriteFileRecordRequest struct {
	FileNumber   uint16
	RecordNumber uint16
	Values       []uint16
}

func NewWriteFileRecordRequest(fileNumber, recordNumber uint16, values []uint16) (*WriteFileRecordRequest, error) {
	if err := checkQuantity(uint16(len(values)), 1, 122); err != nil {
		return nil, err
	}
	return &WriteFileRecordRequest{FileNumber: fileNumber, RecordNumber: recordNumber, Values: values}, nil
}

func (r *WriteFileRecordRequest) FunctionCode() FunctionCode { return FnWriteFileRecord }

func (r *WriteFileRecordRequest) ToBytes() []byte {
	data := registersToBytes(r.Values)
	subLen := 7 + len(data)
	buf := make([]byte, 2+subLen)
	buf[0] = byte(FnWriteFileRecord)
	buf[1] = byte(subLen)
	buf[2] = fileRecordRefType
	copy(buf[3:], put(6, r.FileNumber, r.RecordNumber, uint16(len(r.Values))))
	copy(buf[9:], data)
	return buf
}

func (r *WriteFileRecordRequest) String() string {
	return fmt.Sprintf("WriteFileRecord(file=%d, record=%d, quantity=%d)", r.FileNumber, r.RecordNumber, len(r.Values))
}

// WriteFileRecordRequestFromBytes decodes a single-sub-request PDU into a
// WriteFileRecordRequest.
func WriteFileRecordRequestFromBytes(buf []byte) (*WriteFileRecordRequest, error) {
	if err := checkFunctionCode(buf, FnWriteFileRecord, 10); err != nil {
		return nil, err
	}
	subLen := int(buf[1])
	if len(buf) < 2+subLen {
		return nil, incompletePdu("write file record declares %d bytes, got %d", subLen, len(buf)-2)
	}
	if buf[2] != fileRecordRefType {
		return nil, invalidOptions("file record reference type %d, want %d", buf[2], fileRecordRefType)
	}
	recordLength := getUint16(buf, 7)
	data := buf[9 : 2+subLen]
	if len(data) != 2*int(recordLength) {
		return nil, invalidOptions("write file record carries %d bytes, want %d for length %d", len(data), 2*recordLength, recordLength)
	}
	return NewWriteFileRecordRequest(getUint16(buf, 3), getUint16(buf, 5), bytesToRegisters(data))
}

func (r *WriteFileRecordRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return writeFileRecordResponseFromBytes(buf, r)
	})
}

// WriteFileRecordResponse echoes the request's sub-request verbatim, as
// the MODBUS standard requires.
type WriteFileRecordResponse struct {
	FileNumber   uint16
	RecordNumber uint16
	Values       []uint16
}

func (r *WriteFileRecordResponse) FunctionCode() FunctionCode { return FnWriteFileRecord }

func (r *WriteFileRecordResponse) ToBytes() []byte {
	req := &WriteFileRecordRequest{FileNumber: r.FileNumber, RecordNumber: r.RecordNumber, Values: r.Values}
	return req.ToBytes()
}

func (r *WriteFileRecordResponse) String() string {
	return fmt.Sprintf("WriteFileRecordResponse(file=%d, record=%d, quantity=%d)", r.FileNumber, r.RecordNumber, len(r.Values))
}

func writeFileRecordResponseFromBytes(buf []byte, req *WriteFileRecordRequest) (*WriteFileRecordResponse, error) {
	echoed, err := WriteFileRecordRequestFromBytes(buf)
	if err != nil {
		return nil, err
	}
	if echoed.FileNumber != req.FileNumber || echoed.RecordNumber != req.RecordNumber || len(echoed.Values) != len(req.Values) {
		return nil, newError(KindInvalidResponseData, "write file record echo does not match request")
	}
	return &WriteFileRecordResponse{FileNumber: echoed.FileNumber, RecordNumber: echoed.RecordNumber, Values: echoed.Values}, nil
}
