package utils

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/lewisedginton/aiboy_relay/pkg/logger"
)

// Listen binds srv.Addr and serves srv in the background. It returns the bound
// address, which differs from srv.Addr when port 0 was requested. Serve errors
// other than http.ErrServerClosed are sent on the returned channel, which is
// closed when the server exits.
//
//	addr, errChan, err := Listen(srv, log)
//	if err != nil {
//		return err
//	}
//	defer srv.Shutdown(ctx)
func Listen(srv *http.Server, log logger.Logger) (net.Addr, <-chan error, error) {
	lis, err := net.Listen("tcp", srv.Addr) //nolint:noctx // server manages listener lifecycle
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}

	errorChannel := make(chan error, 1)
	go func() {
		defer close(errorChannel)
		log.Info("Starting HTTP server", logger.StringField("address", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- fmt.Errorf("http server: %w", err)
		}
	}()
	return lis.Addr(), errorChannel, nil
}
