package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
	"yappy/config"
	"yappy/entity"
	"yappy/services"
)

const (
	startPayment   = "/payments"
	getPayment     = "/payments/:order_id"
	getPaymentQr   = "/payments/:order_id/qr"
	cancelPayment  = "/payments/:order_id"
	putCredentials = "/credentials"
	refreshConfig  = "/config/refresh"

	maxBodySize = 1 << 20
)

type Server struct {
	conf        *config.Config
	httpServer  *http.Server
	payments    services.Payments
	credentials services.Credentials
	refresher   services.ConfigRefresher
	logger      services.LogHandler
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf: conf,
	}

	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler:           otelhttp.NewHandler(requestID(router), "yappy-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.POST(startPayment, s.startPayment)
	router.GET(getPayment, s.getPayment)
	router.GET(getPaymentQr, s.getPaymentQr)
	router.DELETE(cancelPayment, s.cancelPayment)
	router.PUT(putCredentials, s.putCredentials)
	router.POST(refreshConfig, s.refreshConfig)
}

// Handler exposes the routed handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) SetPaymentsService(payments services.Payments) {
	s.payments = payments
}

func (s *Server) SetCredentials(credentials services.Credentials) {
	s.credentials = credentials
}

func (s *Server) SetConfigRefresher(refresher services.ConfigRefresher) {
	s.refresher = refresher
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) startPayment(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	var request entity.PaymentRequest
	if err := readJSON(r, &request); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] start payment: %v", reqID, err))
		s.writeError(w, reqID, &ValidationError{Reason: err.Error()})
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] processing request: start payment, order %s, amount %.2f", reqID, request.OrderId, request.Amount))
	record, err := s.payments.StartPayment(ctx, request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] start payment", reqID), err)
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, reqID, http.StatusCreated, record)
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	record, err := s.payments.GetPayment(ctx, ps.ByName("order_id"))
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, reqID, http.StatusOK, record)
}

func (s *Server) getPaymentQr(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	record, err := s.payments.GetPayment(ctx, ps.ByName("order_id"))
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	if record.Hash == "" {
		s.writeError(w, reqID, fmt.Errorf("qr for order %s: %w", record.OrderId, ErrNotFound))
		return
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	image, err := RenderQr(record.Hash, size)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] render qr", reqID), err)
		s.writeError(w, reqID, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(image); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] write qr", reqID), err)
	}
}

func (s *Server) cancelPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	orderId := ps.ByName("order_id")
	s.logger.Info(fmt.Sprintf("[%s] processing request: cancel payment %s", reqID, orderId))
	record, err := s.payments.CancelPayment(ctx, orderId)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, reqID, http.StatusOK, record)
}

func (s *Server) putCredentials(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	var credentials entity.Credentials
	if err := readJSON(r, &credentials); err != nil {
		s.writeError(w, reqID, &ValidationError{Reason: err.Error()})
		return
	}
	if err := s.credentials.Save(ctx, credentials); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] save credentials", reqID), err)
		s.writeError(w, reqID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	reqID := GetRequestID(ctx)

	credentials, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] refresh config", reqID), err)
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, reqID, http.StatusOK, map[string]string{
		"device_id": credentials.DeviceId,
		"group_id":  credentials.GroupId,
		"base_url":  credentials.BaseUrl,
	})
}

func readJSON(r *http.Request, target interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if err = json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, reqID string, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] write response", reqID), err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, reqID string, err error) {
	s.writeJSON(w, reqID, httpStatus(err), map[string]string{
		"error":      err.Error(),
		"request_id": reqID,
	})
}

func httpStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNoCredentials):
		return http.StatusServiceUnavailable
	case IsNetwork(err):
		return http.StatusGatewayTimeout
	case IsVendor(err):
		return http.StatusBadGateway
	}
	var sessionErr *SessionError
	var qrErr *QrError
	if errors.As(err, &sessionErr) || errors.As(err, &qrErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
