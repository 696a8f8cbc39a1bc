package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

type server struct {
	httpSrv *http.Server
	log     *zap.Logger
}

func newServer(log *zap.Logger, conf Config, handler http.Handler) *server {
	return &server{
		httpSrv: &http.Server{
			Addr:              ":" + strconv.Itoa(conf.Port),
			Handler:           handler,
			ReadHeaderTimeout: conf.Connection.ReadHeaderTimeout,
			ReadTimeout:       conf.Connection.ReadTimeout,
			WriteTimeout:      conf.Connection.WriteTimeout,
			IdleTimeout:       conf.Connection.IdleTimeout,
			MaxHeaderBytes:    conf.Connection.MaxHeaderBytes,
		},
		log: log,
	}
}

// listen binds the port so a bad address fails the start hook.
func (s *server) listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return nil, err
	}
	s.log.Info("http server listening", zap.String("addr", ln.Addr().String()))
	return ln, nil
}

func (s *server) serve(ln net.Listener) error {
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
