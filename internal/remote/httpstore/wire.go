package httpstore

import (
	"errors"
	"net/http"

	"github.com/balkashynov/crewclock/internal/remote"
)

// Error codes carried in ErrorBody.Code
const (
	CodeNamespaceMissing = "namespace_missing"
	CodeRecordNotFound   = "record_not_found"
	CodeMemberNotFound   = "member_not_found"
	CodeConflict         = "conflict"
	CodeEncoding         = "encoding"
	CodePartialBatch     = "partial_batch"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

// LookupRequest is the body of POST /zones/{zone}/lookup
type LookupRequest struct {
	IDs []string `json:"ids"`
}

// RecordsResponse answers lookup and query
type RecordsResponse struct {
	Records []remote.Record `json:"records"`
}

// FailedRecord is one entry of a partial batch failure
type FailedRecord struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorBody is the JSON body of every non-2xx response and of 207
type ErrorBody struct {
	Error  string               `json:"error"`
	Code   string               `json:"code"`
	ID     string               `json:"id,omitempty"`
	Failed []FailedRecord       `json:"failed,omitempty"`
	Result *remote.ModifyResult `json:"result,omitempty"`
}

// CodeFor classifies an error from a backend
func CodeFor(err error) string {
	switch {
	case errors.Is(err, remote.ErrPartialBatch):
		return CodePartialBatch
	case errors.Is(err, remote.ErrNamespaceMissing):
		return CodeNamespaceMissing
	case errors.Is(err, remote.ErrRecordNotFound):
		return CodeRecordNotFound
	case errors.Is(err, remote.ErrMemberNotFound):
		return CodeMemberNotFound
	case errors.Is(err, remote.ErrConflict):
		return CodeConflict
	case errors.Is(err, remote.ErrEncoding):
		return CodeEncoding
	case errors.Is(err, remote.ErrNetworkUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// StatusFor maps an error code onto an HTTP status
func StatusFor(code string) int {
	switch code {
	case CodePartialBatch:
		return http.StatusMultiStatus
	case CodeNamespaceMissing, CodeRecordNotFound, CodeMemberNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeEncoding:
		return http.StatusBadRequest
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func sentinelFor(code string) error {
	switch code {
	case CodeNamespaceMissing:
		return remote.ErrNamespaceMissing
	case CodeRecordNotFound:
		return remote.ErrRecordNotFound
	case CodeMemberNotFound:
		return remote.ErrMemberNotFound
	case CodeConflict:
		return remote.ErrConflict
	case CodeEncoding:
		return remote.ErrEncoding
	case CodeUnavailable:
		return remote.ErrNetworkUnavailable
	default:
		return nil
	}
}

// EncodeError turns a backend error into a status and body
func EncodeError(err error) (int, ErrorBody) {
	code := CodeFor(err)
	body := ErrorBody{Error: err.Error(), Code: code}

	var pe *remote.PartialBatchError
	if errors.As(err, &pe) {
		for _, f := range pe.Failed {
			body.Failed = append(body.Failed, FailedRecord{ID: f.ID, Code: CodeFor(f.Err), Message: f.Err.Error()})
		}
		return StatusFor(code), body
	}
	var re *remote.RecordError
	if errors.As(err, &re) {
		body.ID = re.ID
	}
	return StatusFor(code), body
}

// remoteError is a server-reported failure that still matches its sentinel
type remoteError struct {
	msg      string
	sentinel error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }

// DecodeError rebuilds a typed error from a response body
func DecodeError(body ErrorBody) error {
	if body.Code == CodePartialBatch {
		pe := &remote.PartialBatchError{}
		if body.Result != nil {
			for _, rec := range body.Result.Saved {
				pe.Saved = append(pe.Saved, rec.ID)
			}
			pe.Deleted = body.Result.Deleted
		}
		for _, f := range body.Failed {
			pe.Failed = append(pe.Failed, remote.RecordError{ID: f.ID, Err: &remoteError{msg: f.Message, sentinel: sentinelFor(f.Code)}})
		}
		return pe
	}

	err := error(&remoteError{msg: body.Error, sentinel: sentinelFor(body.Code)})
	if body.ID != "" {
		err = &remote.RecordError{ID: body.ID, Err: err}
	}
	return err
}
