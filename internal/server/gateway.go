package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"VammLedger/internal/query"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Snapshotter takes an on-demand engine snapshot and returns its sequence.
type Snapshotter func(ctx context.Context) (int64, error)

// Gateway serves the HTTP/JSON mirror of LedgerService plus the projection
// reads. Routes are registered on a grpc-gateway ServeMux.
type Gateway struct {
	svc      *ledgerService
	queries  *query.QueryService
	snapshot Snapshotter
}

func newGateway(svc LedgerServer, queries *query.QueryService, snapshot Snapshotter) *Gateway {
	return &Gateway{svc: svc.(*ledgerService), queries: queries, snapshot: snapshot}
}

// Mux builds the route table.
func (g *Gateway) Mux() (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	routes := []struct {
		method, pattern string
		h               runtime.HandlerFunc
	}{
		{"POST", "/v1/commands/{event_type}", g.submit},
		{"GET", "/v1/markets", g.listMarkets},
		{"GET", "/v1/markets/{market_index}", g.getMarket},
		{"GET", "/v1/markets/{market_index}/funding", g.listFunding},
		{"GET", "/v1/users/{user_id}/margin", g.getMargin},
		{"GET", "/v1/users/{user_id}/positions/{market_index}", g.getPosition},
		{"GET", "/v1/users/{user_id}/account", g.getAccount},
		{"GET", "/v1/users/{user_id}/journals", g.listJournals},
		{"GET", "/v1/insurance", g.getInsurance},
		{"GET", "/v1/admin/integrity", g.verifyIntegrity},
		{"GET", "/v1/admin/balances", g.systemBalances},
		{"POST", "/v1/admin/snapshot", g.takeSnapshot},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.h); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (g *Gateway) submit(w http.ResponseWriter, r *http.Request, p map[string]string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, status.Error(codes.InvalidArgument, "read body"))
		return
	}
	resp, err := g.svc.Submit(r.Context(), &SubmitRequest{EventType: p["event_type"], Payload: body})
	respond(w, resp, err)
}

func (g *Gateway) listMarkets(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	resp, err := g.svc.listMarkets()
	respond(w, resp, err)
}

func (g *Gateway) getMarket(w http.ResponseWriter, r *http.Request, p map[string]string) {
	mi, err := marketIndex(p)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := g.svc.GetMarket(r.Context(), &GetMarketRequest{MarketIndex: mi})
	respond(w, resp, err)
}

func (g *Gateway) listFunding(w http.ResponseWriter, r *http.Request, p map[string]string) {
	mi, err := marketIndex(p)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	// projected history pages further back than the in-memory ring
	if before := r.URL.Query().Get("before_epoch"); before != "" && g.queries != nil {
		epoch, err := strconv.ParseInt(before, 10, 64)
		if err != nil {
			writeError(w, status.Error(codes.InvalidArgument, "invalid before_epoch"))
			return
		}
		resp, err := g.queries.GetFundingHistory(r.Context(), mi, limit, &epoch)
		respond(w, resp, err)
		return
	}
	resp, err := g.svc.ListFundingHistory(r.Context(), &ListFundingHistoryRequest{MarketIndex: mi, Limit: limit})
	respond(w, resp, err)
}

func (g *Gateway) getMargin(w http.ResponseWriter, r *http.Request, p map[string]string) {
	resp, err := g.svc.GetMargin(r.Context(), &GetMarginRequest{UserID: p["user_id"]})
	respond(w, resp, err)
}

func (g *Gateway) getPosition(w http.ResponseWriter, r *http.Request, p map[string]string) {
	mi, err := marketIndex(p)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := g.svc.GetPosition(r.Context(), &GetPositionRequest{UserID: p["user_id"], MarketIndex: mi})
	respond(w, resp, err)
}

func (g *Gateway) getAccount(w http.ResponseWriter, r *http.Request, p map[string]string) {
	userID, ok := g.userID(w, p)
	if !ok {
		return
	}
	resp, err := g.queries.GetAccount(r.Context(), userID)
	respond(w, resp, err)
}

func (g *Gateway) listJournals(w http.ResponseWriter, r *http.Request, p map[string]string) {
	userID, ok := g.userID(w, p)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var before *int64
	if s := r.URL.Query().Get("before_sequence"); s != "" {
		seq, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, status.Error(codes.InvalidArgument, "invalid before_sequence"))
			return
		}
		before = &seq
	}
	resp, err := g.queries.GetJournalHistory(r.Context(), userID, limit, before)
	respond(w, resp, err)
}

func (g *Gateway) getInsurance(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if g.queries == nil {
		respond(w, g.svc.engine.InsuranceVault(), nil)
		return
	}
	resp, err := g.queries.GetInsuranceVault(r.Context())
	respond(w, resp, err)
}

func (g *Gateway) verifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if g.queries == nil {
		writeError(w, status.Error(codes.Unavailable, "projections are not configured"))
		return
	}
	resp, err := g.queries.VerifyIntegrity(r.Context())
	respond(w, resp, err)
}

// systemBalances lists the market pnl pools and the insurance vault.
func (g *Gateway) systemBalances(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if g.queries == nil {
		writeError(w, status.Error(codes.Unavailable, "projections are not configured"))
		return
	}
	resp, err := g.queries.GetSystemBalances(r.Context())
	respond(w, resp, err)
}

func (g *Gateway) takeSnapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if g.snapshot == nil {
		writeError(w, status.Error(codes.Unavailable, "snapshots are not configured"))
		return
	}
	seq, err := g.snapshot(r.Context())
	respond(w, map[string]int64{"sequence": seq}, err)
}

// userID also guards the projection routes, which need a database.
func (g *Gateway) userID(w http.ResponseWriter, p map[string]string) (uuid.UUID, bool) {
	if g.queries == nil {
		writeError(w, status.Error(codes.Unavailable, "projections are not configured"))
		return uuid.Nil, false
	}
	id, err := parseUUID(p["user_id"])
	if err != nil {
		writeError(w, err)
		return uuid.Nil, false
	}
	return id, true
}

func marketIndex(p map[string]string) (uint16, error) {
	v, err := strconv.ParseUint(p["market_index"], 10, 16)
	if err != nil {
		return 0, status.Error(codes.InvalidArgument, "invalid market_index")
	}
	return uint16(v), nil
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	st, _ := status.FromError(toStatus(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(runtime.HTTPStatusFromCode(st.Code()))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    st.Code().String(),
		"message": st.Message(),
	})
}
