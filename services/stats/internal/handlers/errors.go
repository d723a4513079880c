package handlers

import (
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/streamd/internal/platform/api"
)

// writeGRPCError maps a status error onto the platform JSON envelope,
// using ErrorInfo.Reason as the error code when present.
func writeGRPCError(w http.ResponseWriter, requestID string, err error) {
	st, ok := status.FromError(err)
	if !ok {
		api.Internal(w, requestID)
		return
	}

	code := "INTERNAL"
	var details map[string]any
	for _, d := range st.Details() {
		if v, ok := d.(*errdetails.ErrorInfo); ok {
			if v.GetReason() != "" {
				code = v.GetReason()
			}
			if md := v.GetMetadata(); len(md) > 0 {
				details = make(map[string]any, len(md))
				for k, val := range md {
					details[k] = val
				}
			}
		}
	}

	switch st.Code() {
	case codes.InvalidArgument:
		api.BadRequest(w, code, st.Message(), requestID, details)
	case codes.Unauthenticated:
		api.Unauthorized(w, code, st.Message(), requestID)
	case codes.PermissionDenied:
		api.Forbidden(w, code, st.Message(), requestID)
	case codes.NotFound:
		api.NotFound(w, code, st.Message(), requestID)
	case codes.ResourceExhausted:
		api.RateLimited(w, code, st.Message(), requestID, details)
	case codes.Unavailable:
		api.Unavailable(w, code, st.Message(), requestID)
	default:
		if code == "INTERNAL" {
			api.Internal(w, requestID)
			return
		}
		api.InternalWithMessage(w, code, st.Message(), requestID)
	}
}
