package grpcpool

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"indyforge.dev/forge/forgeerr"
)

// ledgerFailure extracts a ledger-reported refusal. The server uses
// FailedPrecondition for those and for nothing else on Submit.
func ledgerFailure(err error) (string, bool) {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.FailedPrecondition {
		return "", false
	}
	return st.Message(), true
}

func mapRPC(err error, msg string) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Unreachable, msg, err)
	}

	switch st.Code() {
	case codes.DeadlineExceeded, codes.Canceled:
		return forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Timeout, msg, err)
	case codes.InvalidArgument:
		// Open uses InvalidArgument for genesis the gateway cannot use.
		return forgeerr.Wrap(forgeerr.KindConfig, forgeerr.PoolBuild, msg, err)
	case codes.NotFound:
		// The gateway forgot our handle, e.g. after a restart.
		return forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Unreachable, msg+": pool handle expired", err)
	default:
		return forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Unreachable, msg, err)
	}
}
