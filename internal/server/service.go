package server

import (
	"context"
	"encoding/hex"

	"VammLedger/internal/errs"
	"VammLedger/internal/ingestion"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/state"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const serviceName = "vammledger.v1.LedgerService"

// Engine is the live state the service reads. *core.Engine satisfies it.
type Engine interface {
	ingestion.Processor
	Market(marketIndex uint16) (state.Market, error)
	Markets() []state.Market
	Account(userID uuid.UUID) (*state.UserAccount, error)
	Margin(userID uuid.UUID) (state.MarginSummary, error)
	FundingHistory(marketIndex uint16, limit int) []state.FundingRecord
	OraclePrice(marketIndex uint16) (state.OraclePrice, bool)
	InsuranceVault() state.InsuranceVault
	GetSequence() int64
}

// LedgerServer is the gRPC surface of the ledger.
type LedgerServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	GetMarket(context.Context, *GetMarketRequest) (*MarketView, error)
	GetPosition(context.Context, *GetPositionRequest) (*PositionView, error)
	GetMargin(context.Context, *GetMarginRequest) (*MarginView, error)
	ListFundingHistory(context.Context, *ListFundingHistoryRequest) (*ListFundingHistoryResponse, error)
}

// LedgerServiceDesc is registered by hand; messages travel as JSON.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", LedgerServer.Submit),
		unary("GetMarket", LedgerServer.GetMarket),
		unary("GetPosition", LedgerServer.GetPosition),
		unary("GetMargin", LedgerServer.GetMargin),
		unary("ListFundingHistory", LedgerServer.ListFundingHistory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vammledger/v1/ledger.proto",
}

func unary[Req, Resp any](method string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*Req))
			})
		},
	}
}

// FullMethod returns the invoke path of a LedgerService method.
func FullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

type ledgerService struct {
	engine Engine
	ingest *ingestion.GRPCIngestService
}

// NewLedgerService serves live engine state.
func NewLedgerService(engine Engine) LedgerServer {
	return &ledgerService{engine: engine, ingest: ingestion.NewGRPCIngestService(engine)}
}

func (s *ledgerService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if req.EventType == "" {
		return nil, status.Error(codes.InvalidArgument, "event_type is required")
	}
	res, err := s.ingest.Submit(ctx, req.EventType, req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &SubmitResponse{Sequence: res.Sequence, Duplicate: res.Duplicate, Result: res}
	if !res.Duplicate {
		resp.StateHash = hex.EncodeToString(res.StateHash[:])
	}
	return resp, nil
}

func (s *ledgerService) GetMarket(_ context.Context, req *GetMarketRequest) (*MarketView, error) {
	m, err := s.engine.Market(req.MarketIndex)
	if err != nil {
		return nil, toStatus(err)
	}
	v, err := s.marketView(m)
	if err != nil {
		return nil, toStatus(err)
	}
	return v, nil
}

func (s *ledgerService) marketView(m state.Market) (*MarketView, error) {
	mark, err := m.AMM.MarkPrice()
	if err != nil {
		return nil, err
	}
	bid, ask, err := m.AMM.BidAskPrice()
	if err != nil {
		return nil, err
	}
	v := &MarketView{
		Market:       m,
		MarkPrice:    fpmath.FormatPrice(mark),
		BidPrice:     fpmath.FormatPrice(bid),
		AskPrice:     fpmath.FormatPrice(ask),
		AsOfSequence: s.engine.GetSequence(),
	}
	if o, ok := s.engine.OraclePrice(m.MarketIndex); ok {
		v.OraclePrice = fpmath.FormatPrice(o.Price)
	}
	return v, nil
}

func (s *ledgerService) listMarkets() (*ListMarketsResponse, error) {
	resp := &ListMarketsResponse{AsOfSequence: s.engine.GetSequence()}
	for _, m := range s.engine.Markets() {
		v, err := s.marketView(m)
		if err != nil {
			return nil, toStatus(err)
		}
		resp.Markets = append(resp.Markets, *v)
	}
	return resp, nil
}

func (s *ledgerService) GetPosition(_ context.Context, req *GetPositionRequest) (*PositionView, error) {
	userID, err := parseUUID(req.UserID)
	if err != nil {
		return nil, err
	}
	acct, err := s.engine.Account(userID)
	if err != nil {
		return nil, toStatus(err)
	}
	pos := acct.Position(req.MarketIndex)
	if pos == nil {
		return nil, status.Errorf(codes.NotFound, "no position for user %s in market %d", req.UserID, req.MarketIndex)
	}
	m, err := s.engine.Market(req.MarketIndex)
	if err != nil {
		return nil, toStatus(err)
	}
	mark, err := m.AMM.MarkPrice()
	if err != nil {
		return nil, toStatus(err)
	}
	upnl, err := pos.UnrealizedPnL(mark)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PositionView{
		Position:      *pos,
		BaseDisplay:   fpmath.FormatBase(pos.BaseAssetAmount),
		UnrealizedPnl: upnl,
		AsOfSequence:  s.engine.GetSequence(),
	}, nil
}

func (s *ledgerService) GetMargin(_ context.Context, req *GetMarginRequest) (*MarginView, error) {
	userID, err := parseUUID(req.UserID)
	if err != nil {
		return nil, err
	}
	m, err := s.engine.Margin(userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MarginView{
		Margin:            m,
		CollateralDisplay: fpmath.FormatQuote(m.TotalCollateral),
		FreeCollateral:    m.FreeCollateral(),
		Status:            m.Status().String(),
		AsOfSequence:      s.engine.GetSequence(),
	}, nil
}

func (s *ledgerService) ListFundingHistory(_ context.Context, req *ListFundingHistoryRequest) (*ListFundingHistoryResponse, error) {
	if _, err := s.engine.Market(req.MarketIndex); err != nil {
		return nil, toStatus(err)
	}
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return &ListFundingHistoryResponse{
		Records:      s.engine.FundingHistory(req.MarketIndex, limit),
		AsOfSequence: s.engine.GetSequence(),
	}, nil
}

// ============================================================================
// Helpers
// ============================================================================

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid user_id: %v", err)
	}
	return id, nil
}

// GRPCCode maps a ledger error code to a gRPC status code.
func GRPCCode(c errs.Code) codes.Code {
	switch c {
	case errs.CodeInvalidArgument, errs.CodeTradeSizeTooSmall, errs.CodeTradeSizeTooLarge:
		return codes.InvalidArgument
	case errs.CodeMarketNotFound, errs.CodeUserAccountNotFound, errs.CodeOrderDoesNotExist:
		return codes.NotFound
	case errs.CodeMarketAlreadyExists, errs.CodeUserAccountAlreadyExists:
		return codes.AlreadyExists
	case errs.CodeArithmeticOverflow:
		return codes.OutOfRange
	case errs.CodeCollateralTransferFailed:
		return codes.Unavailable
	case errs.CodeUnknown:
		return codes.Internal
	default:
		return codes.FailedPrecondition
	}
}

// toStatus passes gRPC statuses through and codes ledger errors.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := errs.CodeOf(err)
	if code == errs.CodeUnknown {
		return status.Error(codes.Internal, err.Error())
	}
	return status.Errorf(GRPCCode(code), "%s: %v", code, err)
}
