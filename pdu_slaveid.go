package modbus

import "fmt"

// ReportSlaveIdRequest carries no payload beyond the function code
// (function 0x11, spec §4.1, §6).
type ReportSlaveIdRequest struct{}

func NewReportSlaveIdRequest() (*ReportSlaveIdRequest, error) {
	return &ReportSlaveIdRequest{}, nil
}

func (r *ReportSlaveIdRequest) FunctionCode() FunctionCode { return FnReportSlaveId }

func (r *ReportSlaveIdRequest) ToBytes() []byte {
	return []byte{byte(FnReportSlaveId)}
}

func (r *ReportSlaveIdRequest) String() string {
	return "ReportSlaveId()"
}

// ReportSlaveIdRequestFromBytes decodes a PDU into a ReportSlaveIdRequest.
func ReportSlaveIdRequestFromBytes(buf []byte) (*ReportSlaveIdRequest, error) {
	if err := checkFunctionCode(buf, FnReportSlaveId, 1); err != nil {
		return nil, err
	}
	return &ReportSlaveIdRequest{}, nil
}

func (r *ReportSlaveIdRequest) CreateResponse(buf []byte) (Response, error) {
	return createResponse(buf, func(buf []byte) (Response, error) {
		return reportSlaveIdResponseFromBytes(buf)
	})
}

// ReportSlaveIdResponse carries the product id, run indicator, a 3-byte
// version triple, and an optional 0-243 byte additional-values buffer
// (function 0x11, spec §4.1).
type ReportSlaveIdResponse struct {
	ProductID byte
	Running   bool
	Version   [3]byte
	Extra     []byte
}

func (r *ReportSlaveIdResponse) FunctionCode() FunctionCode { return FnReportSlaveId }

func (r *ReportSlaveIdResponse) ToBytes() []byte {
	run := byte(0x00)
	if r.Running {
		run = 0xFF
	}
	n := 5 + len(r.Extra)
	buf := make([]byte, 2+n)
	buf[0] = byte(FnReportSlaveId)
	buf[1] = byte(n)
	buf[2] = r.ProductID
	buf[3] = run
	copy(buf[4:7], r.Version[:])
	copy(buf[7:], r.Extra)
	return buf
}

func (r *ReportSlaveIdResponse) String() string {
	return fmt.Sprintf("ReportSlaveIdResponse(productId=%d, running=%v, version=%v, extra=%d bytes)", r.ProductID, r.Running, r.Version, len(r.Extra))
}

func reportSlaveIdResponseFromBytes(buf []byte) (*ReportSlaveIdResponse, error) {
	if err := checkFunctionCode(buf, FnReportSlaveId, 2); err != nil {
		return nil, err
	}
	n := int(buf[1])
	if n < 5 {
		return nil, newError(KindInvalidResponseData, fmt.Sprintf("report slave id declares %d bytes, want at least 5", n))
	}
	if len(buf) < 2+n {
		return nil, incompletePdu("report slave id declares %d data bytes, got %d", n, len(buf)-2)
	}
	resp := &ReportSlaveIdResponse{
		ProductID: buf[2],
		Running:   buf[3] != 0x00,
	}
	copy(resp.Version[:], buf[4:7])
	if extra := n - 5; extra > 0 {
		resp.Extra = append([]byte(nil), buf[7:7+extra]...)
	}
	return resp, nil
}
